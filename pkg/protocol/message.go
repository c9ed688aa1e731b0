package protocol

// MessageType identifies a control-socket message.
type MessageType string

// Message type constants.
const (
	MsgAction   MessageType = "ACTION"   // client -> server: dispatch an action
	MsgStatus   MessageType = "STATUS"   // client -> server: report queue state
	MsgCheck    MessageType = "CHECK"    // client -> server: run the setup probe
	MsgResult   MessageType = "RESULT"   // server -> client: action outcome
	MsgSnapshot MessageType = "SNAPSHOT" // server -> client: status snapshot
)

// Request is one line-delimited JSON message sent to the control socket.
type Request struct {
	Type   MessageType `json:"type"`
	ID     string      `json:"id"`
	Action string      `json:"action,omitempty"`
	Args   []string    `json:"args,omitempty"`
}

// Response answers a Request with the same ID.
type Response struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Shape     string      `json:"shape,omitempty"` // none | single | multiple
	Codes     []int       `json:"codes,omitempty"`
	Names     []string    `json:"names,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Status    *Status     `json:"status,omitempty"`
}

// Status is a point-in-time snapshot of the dispatch queue.
type Status struct {
	PID           int     `json:"pid"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Pending       int     `json:"pending"`
	ActiveTicket  string  `json:"active_ticket,omitempty"`
	Dispatched    int64   `json:"dispatched"`
	Failed        int64   `json:"failed"`
	Restarts      int64   `json:"restarts"`
	Configured    *bool   `json:"configured,omitempty"`
}
