package marketplace

import (
	"sync"
	"time"
)

// EventLog keeps a bounded in-process activity feed. Surfaces (HTTP, MCP)
// read it; the engine appends to it on every state change.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewEventLog returns a log that retains at most max entries.
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = 256
	}
	return &EventLog{max: max}
}

// Append records an activity entry, evicting the oldest past capacity.
func (l *EventLog) Append(eventType, entityID, actor, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{
		Type:      eventType,
		EntityID:  entityID,
		Actor:     actor,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	if len(l.events) > l.max {
		l.events = l.events[len(l.events)-l.max:]
	}
}

// Recent returns up to limit entries, newest last.
func (l *EventLog) Recent(limit int) []Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]Event, limit)
	copy(out, l.events[len(l.events)-limit:])
	return out
}
