// Package notify defines the typed event stream through which the import and
// delivery pipeline reports progress to the presentation layer. Sinks are
// fire-and-forget: the orchestrator never blocks on, nor sees errors from,
// notification delivery.
package notify

import "log/slog"

// Kind classifies an event.
type Kind string

const (
	// KindAdvisory is a non-error heads-up, e.g. "provider downloads need
	// a manual click per item".
	KindAdvisory Kind = "advisory"
	// KindError reports a per-item failure alongside whatever succeeded.
	// Never rendered as a blocking dialog.
	KindError Kind = "error"
)

// Event is one discrete notification.
type Event struct {
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	ItemName string `json:"itemName,omitempty"`
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Notify(Event)
}

// LogSink writes events to a structured logger. Advisory events log at Info,
// error events at Warn — batch failures are expected partial outcomes, not
// terminal conditions.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{slog.String("kind", string(ev.Kind))}
	if ev.ItemName != "" {
		attrs = append(attrs, slog.String("item", ev.ItemName))
	}

	if ev.Kind == KindError {
		logger.Warn(ev.Message, attrs...)

		return
	}

	logger.Info(ev.Message, attrs...)
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (s MultiSink) Notify(ev Event) {
	for _, sink := range s {
		sink.Notify(ev)
	}
}

// MemorySink records events for test assertions.
type MemorySink struct {
	Events []Event
}

func (s *MemorySink) Notify(ev Event) {
	s.Events = append(s.Events, ev)
}

// Advisories returns the recorded advisory events.
func (s *MemorySink) Advisories() []Event {
	return s.filter(KindAdvisory)
}

// Errors returns the recorded error events.
func (s *MemorySink) Errors() []Event {
	return s.filter(KindError)
}

func (s *MemorySink) filter(kind Kind) []Event {
	var out []Event

	for _, ev := range s.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}

	return out
}
