// Package progress delivers advisory session events to a listener.
//
// Delivery is fire-and-forget: a Reporter never blocks the session and
// never reports back, and a progress event may be dropped by a slow
// listener. Terminal events are always delivered.
package progress

import (
	"log/slog"

	"github.com/IshaanNene/markbook/internal/types"
)

// Reporter receives session events.
type Reporter interface {
	Report(ev types.Event)
}

// Func adapts a plain function to Reporter.
type Func func(ev types.Event)

func (f Func) Report(ev types.Event) { f(ev) }

// Discard drops every event.
var Discard Reporter = Func(func(types.Event) {})

// Channel forwards events to a buffered channel without blocking. One
// slot beyond the progress buffer is reserved for the terminal event, so
// a session's done or error event is never dropped. Report must be called
// from a single goroutine.
type Channel struct {
	ch     chan types.Event
	buffer int
	logger *slog.Logger
}

// NewChannel creates a channel reporter that holds up to buffer progress
// events.
func NewChannel(buffer int, logger *slog.Logger) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{
		ch:     make(chan types.Event, buffer+1),
		buffer: buffer,
		logger: logger.With("component", "progress_channel"),
	}
}

// Events returns the receive side for the listener.
func (c *Channel) Events() <-chan types.Event {
	return c.ch
}

// Report sends ev if the buffer has room and drops it otherwise. A
// terminal event may use the reserved slot.
func (c *Channel) Report(ev types.Event) {
	if !ev.IsTerminal() && len(c.ch) >= c.buffer {
		c.logger.Debug("event dropped", "kind", ev.Kind)
		return
	}
	select {
	case c.ch <- ev:
	default:
		c.logger.Warn("event dropped", "kind", ev.Kind)
	}
}

// Close ends the event stream. Report must not be called afterwards.
func (c *Channel) Close() {
	close(c.ch)
}

// Log writes events to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a reporter that logs each event.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("component", "progress")}
}

func (l *Log) Report(ev types.Event) {
	switch ev.Kind {
	case types.EventError:
		l.logger.Error("session failed", "error", ev.Text)
	case types.EventDone:
		l.logger.Info("session done", "count", ev.Count)
	default:
		l.logger.Info(ev.Text)
	}
}

// Multi fans every event out to all reporters in order.
type Multi []Reporter

func (m Multi) Report(ev types.Event) {
	for _, r := range m {
		r.Report(ev)
	}
}
