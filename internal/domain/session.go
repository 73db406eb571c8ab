package domain

// Status is the lifecycle state of the chat session controller.
type Status string

const (
	StatusUninitialized    Status = "uninitialized"
	StatusIdle             Status = "idle"
	StatusAwaitingResponse Status = "awaiting-response"
)

// Snapshot is a read-only projection of the controller state handed to
// presentation layers.
type Snapshot struct {
	Messages  []Message `json:"messages"`
	Status    Status    `json:"status"`
	Loading   bool      `json:"loading"`
	LastError string    `json:"lastError,omitempty"`
}

// Last returns the most recent message, if any.
func (s Snapshot) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
