package invoker

import (
	"strings"
	"sync"
)

// LineBuffer is a bounded FIFO of text lines. When full, the oldest line is
// evicted to make room for new ones.
type LineBuffer struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

// NewLineBuffer creates a buffer holding at most capacity lines.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LineBuffer{
		lines: make([]string, 0, capacity),
		cap:   capacity,
	}
}

// Add appends a line, evicting the oldest one if the buffer is full.
func (b *LineBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) >= b.cap {
		copy(b.lines, b.lines[1:])
		b.lines[len(b.lines)-1] = line
	} else {
		b.lines = append(b.lines, line)
	}
}

// String joins the buffered lines with " | ".
func (b *LineBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, " | ")
}

// Len returns the number of buffered lines.
func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
