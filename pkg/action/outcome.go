package action

import (
	"strconv"
	"strings"

	"msgbridge/pkg/protocol"
)

// Shape tells apart the three forms an Outcome can take.
type Shape int

const (
	// None means the script reported no result.
	None Shape = iota
	// Single means the script reported exactly one result code.
	Single
	// Multiple means the script reported an ordered list of sub-results.
	Multiple
)

func (s Shape) String() string {
	switch s {
	case Single:
		return "single"
	case Multiple:
		return "multiple"
	default:
		return "none"
	}
}

// Outcome is the decoded result of one action. The zero value is an absent
// outcome.
type Outcome struct {
	codes []ResultCode
}

// NewOutcome builds an Outcome from decoded codes, preserving their order.
func NewOutcome(codes ...ResultCode) Outcome {
	if len(codes) == 0 {
		return Outcome{}
	}
	cp := make([]ResultCode, len(codes))
	copy(cp, codes)
	return Outcome{codes: cp}
}

// Shape reports whether the outcome is absent, single or multiple.
func (o Outcome) Shape() Shape {
	switch len(o.codes) {
	case 0:
		return None
	case 1:
		return Single
	default:
		return Multiple
	}
}

// Absent reports whether the script produced no result.
func (o Outcome) Absent() bool { return len(o.codes) == 0 }

// Single returns the only code of a single outcome.
func (o Outcome) Single() (ResultCode, bool) {
	if len(o.codes) != 1 {
		return 0, false
	}
	return o.codes[0], true
}

// Codes returns the decoded codes in script order. It returns nil for an
// absent outcome.
func (o Outcome) Codes() []ResultCode {
	if len(o.codes) == 0 {
		return nil
	}
	out := make([]ResultCode, len(o.codes))
	copy(out, o.codes)
	return out
}

// Contains reports whether any decoded code equals c.
func (o Outcome) Contains(c ResultCode) bool {
	for _, code := range o.codes {
		if code == c {
			return true
		}
	}
	return false
}

func (o Outcome) String() string {
	if len(o.codes) == 0 {
		return ""
	}
	names := make([]string, len(o.codes))
	for i, c := range o.codes {
		names[i] = c.String()
	}
	return strings.Join(names, ",")
}

// Encode renders o in the script result protocol.
func (o Outcome) Encode() string {
	parts := make([]string, len(o.codes))
	for i, c := range o.codes {
		parts[i] = strconv.Itoa(c.Int())
	}
	return strings.Join(parts, protocol.ResultSeparator)
}

// Decode parses a script result line. An empty line decodes to an absent
// outcome; otherwise every ", "-separated token must be a known result code
// or the whole line is rejected with *protocol.MalformedResultError.
func Decode(raw string) (Outcome, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Outcome{}, nil
	}

	tokens := strings.Split(line, protocol.ResultSeparator)
	codes := make([]ResultCode, 0, len(tokens))
	for _, tok := range tokens {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return Outcome{}, &protocol.MalformedResultError{Raw: raw, Token: tok, Err: err}
		}
		code, err := CodeFromInt(n)
		if err != nil {
			return Outcome{}, &protocol.MalformedResultError{Raw: raw, Token: tok, Err: err}
		}
		codes = append(codes, code)
	}
	return Outcome{codes: codes}, nil
}
