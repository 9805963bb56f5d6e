package agent

import "github.com/ravi-parthasarathy/agenttrace/pkg/trace"

// EventType identifies the kind of chat event.
type EventType string

const (
	EventTypeUpload  EventType = "upload"
	EventTypeTrace   EventType = "trace"
	EventTypeWarning EventType = "warning"
	EventTypeReply   EventType = "reply"
	EventTypeError   EventType = "error"
)

// Event is emitted by Chat while a message is processed, for live display.
type Event struct {
	Type    EventType    `json:"type"`
	Content string       `json:"content,omitempty"`
	Entry   *trace.Entry `json:"entry,omitempty"`
	IsError bool         `json:"is_error,omitempty"`
}

// eventFromNotice converts an interpreter notice.
func eventFromNotice(n trace.Notice) Event {
	if n.Entry != nil {
		return Event{Type: EventTypeTrace, Content: n.Entry.Text, Entry: n.Entry, IsError: n.Entry.IsError}
	}
	return Event{Type: EventTypeWarning, Content: n.Warning}
}
