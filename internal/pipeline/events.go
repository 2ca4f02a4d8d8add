package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle position of a stage transition
type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
)

// Event type names sent to subscribers
const (
	EventTypeStage = "pipeline:stage"
)

// Event describes one stage transition for status subscribers
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Domain     Domain      `json:"domain"`
	Key        string      `json:"key"`
	Operation  Operation   `json:"operation"`
	Status     EventStatus `json:"status"`
	Version    uint64      `json:"version,omitempty"`
	ErrorKind  ErrorKind   `json:"error_kind,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// EventSink receives stage events. Publish must not block for long.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(Event)

// Publish calls f(e)
func (f EventSinkFunc) Publish(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Publish(Event) {}

func newEvent(d Domain, key string, op Operation, status EventStatus) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventTypeStage,
		Domain:    d,
		Key:       key,
		Operation: op,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}
