// Package action defines the actions msgbridge can drive against the target
// messaging application, the result codes its automation scripts report,
// and the decoder for the script result protocol.
package action

import (
	"fmt"
	"sort"

	"msgbridge/pkg/protocol"
)

// Kind identifies an operation against the target application.
type Kind string

// Action kinds.
const (
	SendMessage       Kind = "send-message"
	SendGroupMessage  Kind = "send-group-message"
	RenameGroup       Kind = "rename-group"
	AddParticipant    Kind = "add-participant"
	RemoveParticipant Kind = "remove-participant"
	CreateGroup       Kind = "create-group"
	LeaveGroup        Kind = "leave-group"
	SetupCheck        Kind = "setup-check"
)

// kindDef describes the script and argument vector of a Kind.
type kindDef struct {
	prefix string
	args   []string
}

//nolint:gochecknoglobals // immutable lookup table
var kindDefs = map[Kind]kindDef{
	SendMessage:       {prefix: "SendMessage", args: []string{"handle", "message", "service"}},
	SendGroupMessage:  {prefix: "SendGroupMessage", args: []string{"chat-guid", "chat-name", "participants", "attachment", "message"}},
	RenameGroup:       {prefix: "RenameGroup", args: []string{"chat-guid", "chat-name", "participants", "new-name"}},
	AddParticipant:    {prefix: "AddParticipant", args: []string{"chat-guid", "chat-name", "participants", "handle"}},
	RemoveParticipant: {prefix: "RemoveParticipant", args: []string{"chat-guid", "chat-name", "participants", "handle"}},
	CreateGroup:       {prefix: "CreateGroup", args: []string{"group-name", "participants", "message"}},
	LeaveGroup:        {prefix: "LeaveGroup", args: []string{"chat-guid", "chat-name", "participants"}},
	SetupCheck:        {prefix: "Setup"},
}

// Kinds returns every known kind in name order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindDefs))
	for k := range kindDefs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind maps a canonical kind name to its Kind.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if _, ok := kindDefs[k]; !ok {
		return "", fmt.Errorf("%w %q", protocol.ErrUnknownAction, name)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindDefs[k]
	return ok
}

// ScriptPrefix returns the file name prefix of the script implementing k.
func (k Kind) ScriptPrefix() string {
	return kindDefs[k].prefix
}

// Arity returns the number of arguments the script for k expects.
func (k Kind) Arity() int {
	return len(kindDefs[k].args)
}

// ArgNames returns the ordered argument names for k.
func (k Kind) ArgNames() []string {
	names := kindDefs[k].args
	out := make([]string, len(names))
	copy(out, names)
	return out
}

func (k Kind) String() string { return string(k) }
