package types

import (
	"encoding/json"
	"fmt"
)

// EventKind tags a progress event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Event is an advisory status notification emitted by a session.
// Done and Error events are terminal; a session emits exactly one of them.
type Event struct {
	Kind  EventKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Count int       `json:"count,omitempty"`
}

type donePayload struct {
	Kind  EventKind `json:"kind"`
	Count int       `json:"count"`
}

type textPayload struct {
	Kind EventKind `json:"kind"`
	Text string    `json:"text"`
}

// MarshalJSON encodes done events as {kind, count} and progress and error
// events as {kind, text}. Both fields are written even when zero.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == EventDone {
		return json.Marshal(donePayload{Kind: e.Kind, Count: e.Count})
	}
	return json.Marshal(textPayload{Kind: e.Kind, Text: e.Text})
}

// Progress builds a progress event.
func Progress(format string, args ...any) Event {
	return Event{Kind: EventProgress, Text: fmt.Sprintf(format, args...)}
}

// Done builds a terminal done event.
func Done(count int) Event {
	return Event{Kind: EventDone, Count: count}
}

// Failed builds a terminal error event.
func Failed(text string) Event {
	return Event{Kind: EventError, Text: text}
}

// IsTerminal reports whether the event ends a session.
func (e Event) IsTerminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

func (e Event) String() string {
	switch e.Kind {
	case EventDone:
		return fmt.Sprintf("done: %d", e.Count)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Text)
	}
}
