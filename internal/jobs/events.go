package jobs

import (
	"sync"
	"time"

	"imagemeta/internal/domain"
)

// EventType classifies messages emitted during a batch session.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeItem     EventType = "item"
	EventTypeFinished EventType = "finished"
	EventTypeStopped  EventType = "stopped"
	EventTypeError    EventType = "error"
	EventTypeLog      EventType = "log"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq       int64               `json:"seq"`
	Timestamp time.Time           `json:"timestamp"`
	SessionID string              `json:"sessionId"`
	Type      EventType           `json:"type"`
	State     domain.SessionState `json:"state,omitempty"`
	Record    *domain.FileRecord  `json:"record,omitempty"`
	Processed int                 `json:"processed"`
	Total     int                 `json:"total"`
	Message   string              `json:"message,omitempty"`
}

// EventBus stores recent events and provides incremental reads. Publish never
// blocks on readers; the oldest events are dropped once the buffer is full.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	listeners []func(Event)
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Subscribe registers fn to receive each event after it is stored.
// fn runs on the publishing goroutine and must not block.
func (b *EventBus) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	listeners := b.listeners
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence number of the newest event.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
