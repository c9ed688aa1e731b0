package action

import "fmt"

// ResultCode is the outcome of a single script execution as reported on the
// script's last output line.
type ResultCode int

// Result codes. The integer values are the wire values printed by scripts.
const (
	ActionPerformed         ResultCode = 0
	UiError                 ResultCode = 1 //nolint:revive // wire name
	ServiceNotAvailable     ResultCode = 2
	NotRegistered           ResultCode = 3
	ChatNotFound            ResultCode = 4
	HandleNotFound          ResultCode = 5
	AlreadyMember           ResultCode = 6
	NotMember               ResultCode = 7
	FileNotFound            ResultCode = 8
	NullMessage             ResultCode = 9
	AssistiveAccessDisabled ResultCode = 10
	UnknownError            ResultCode = 11
)

//nolint:gochecknoglobals // immutable lookup table
var codeNames = map[ResultCode]string{
	ActionPerformed:         "action_performed",
	UiError:                 "ui_error",
	ServiceNotAvailable:     "service_not_available",
	NotRegistered:           "not_registered",
	ChatNotFound:            "chat_not_found",
	HandleNotFound:          "handle_not_found",
	AlreadyMember:           "already_member",
	NotMember:               "not_member",
	FileNotFound:            "file_not_found",
	NullMessage:             "null_message",
	AssistiveAccessDisabled: "assistive_access_disabled",
	UnknownError:            "unknown_error",
}

// CodeFromInt maps a wire integer to its ResultCode. Unknown integers are an
// error, never a default.
func CodeFromInt(n int) (ResultCode, error) {
	c := ResultCode(n)
	if _, ok := codeNames[c]; !ok {
		return 0, fmt.Errorf("unknown result code %d", n)
	}
	return c, nil
}

// Codes returns all known result codes in ascending wire order.
func Codes() []ResultCode {
	out := make([]ResultCode, 0, len(codeNames))
	for c := ActionPerformed; c <= UnknownError; c++ {
		out = append(out, c)
	}
	return out
}

// Int returns the wire value of c.
func (c ResultCode) Int() int { return int(c) }

func (c ResultCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("result_code(%d)", int(c))
}
