package dispatcher

import (
	"sync"

	"github.com/google/uuid"
)

// Ticket is one caller's place in the dispatch queue. It is granted the turn
// exactly once and released exactly once.
type Ticket struct {
	ID  uuid.UUID
	Seq uint64

	ready   chan struct{}
	awaited bool
}

// Queue serializes callers in submission order. At most one ticket holds the
// turn at any time; the next waiter is woken only when the holder releases.
//
// Waiters block on a per-ticket channel, so waiting costs no CPU.
type Queue struct {
	mu      sync.Mutex
	seq     uint64
	waiting []*Ticket
	active  *Ticket
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Submit registers a new waiter and returns its ticket immediately.
func (q *Queue) Submit() *Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	t := &Ticket{
		ID:    uuid.New(),
		Seq:   q.seq,
		ready: make(chan struct{}),
	}
	q.waiting = append(q.waiting, t)
	q.advanceLocked()
	return t
}

// AwaitTurn blocks until t is the oldest outstanding ticket and no other
// ticket holds the turn. There is no timeout and no cancellation.
// Awaiting the same ticket twice panics.
func (q *Queue) AwaitTurn(t *Ticket) {
	q.mu.Lock()
	if t.awaited {
		q.mu.Unlock()
		panic("dispatcher: ticket awaited twice")
	}
	t.awaited = true
	q.mu.Unlock()

	<-t.ready
}

// Release ends t's turn and hands the turn to the next waiter. Releasing a
// ticket that does not hold the turn panics.
func (q *Queue) Release(t *Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active != t {
		panic("dispatcher: release of a ticket that does not hold the turn")
	}
	q.active = nil
	q.advanceLocked()
}

// Pending returns how many tickets are waiting for the turn.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Active returns the ticket currently holding the turn.
func (q *Queue) Active() (uuid.UUID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil {
		return uuid.Nil, false
	}
	return q.active.ID, true
}

// advanceLocked grants the turn to the oldest waiter if nobody holds it.
// Caller holds q.mu.
func (q *Queue) advanceLocked() {
	if q.active != nil || len(q.waiting) == 0 {
		return
	}
	next := q.waiting[0]
	q.waiting[0] = nil
	q.waiting = q.waiting[1:]
	q.active = next
	close(next.ready)
}
