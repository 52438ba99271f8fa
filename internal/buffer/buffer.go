// Package buffer holds the bounded, time-windowed log of behavior events that
// every producer appends to and both detection loops read from.
package buffer

import (
	"sync"
	"time"

	"github.com/actionsum/nudge/internal/models"
)

const (
	DefaultMaxEvents = 400
	DefaultMaxAge    = 600 * time.Second
)

// EventBuffer is safe for concurrent use by any number of producers and
// readers. Both bounds are enforced on every Append.
type EventBuffer struct {
	mu        sync.RWMutex
	events    []models.BehaviorEvent
	maxEvents int
	maxAge    time.Duration
	now       func() time.Time

	// oldest is a lower bound on every retained timestamp.
	oldest time.Time
}

// Option customises an EventBuffer.
type Option func(*EventBuffer)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *EventBuffer) {
		b.now = now
	}
}

// New creates a buffer. Non-positive bounds fall back to the defaults.
func New(maxEvents int, maxAge time.Duration, opts ...Option) *EventBuffer {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	b := &EventBuffer{
		events:    make([]models.BehaviorEvent, 0, maxEvents),
		maxEvents: maxEvents,
		maxAge:    maxAge,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append records an event, then drops expired entries and, if still over
// capacity, the oldest ones by arrival. Events may arrive out of timestamp
// order; one that is already expired is not stored.
func (b *EventBuffer) Append(event models.BehaviorEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.maxAge)
	if event.Timestamp.Before(cutoff) {
		b.expire(cutoff)
		return
	}

	if len(b.events) == 0 || event.Timestamp.Before(b.oldest) {
		b.oldest = event.Timestamp
	}
	b.events = append(b.events, event)

	b.expire(cutoff)
	if over := len(b.events) - b.maxEvents; over > 0 {
		b.events = b.events[over:]
	}
}

// expire removes every entry older than cutoff, wherever it sits.
func (b *EventBuffer) expire(cutoff time.Time) {
	if len(b.events) == 0 || !b.oldest.Before(cutoff) {
		return
	}

	kept := make([]models.BehaviorEvent, 0, cap(b.events))
	var oldest time.Time
	for _, e := range b.events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if len(kept) == 0 || e.Timestamp.Before(oldest) {
			oldest = e.Timestamp
		}
		kept = append(kept, e)
	}
	b.events = kept
	b.oldest = oldest
}

// Snapshot returns a copy, in arrival order, of every event inside the last
// window. A non-positive window means the whole retained history. Entries
// older than the buffer's max age are never returned.
func (b *EventBuffer) Snapshot(window time.Duration) []models.BehaviorEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := b.now()
	cutoff := now.Add(-b.maxAge)
	if window > 0 && window < b.maxAge {
		cutoff = now.Add(-window)
	}

	out := make([]models.BehaviorEvent, 0, len(b.events))
	for _, e := range b.events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of retained events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Stats counts the retained events per kind.
func (b *EventBuffer) Stats() map[models.EventKind]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := make(map[models.EventKind]int)
	for _, e := range b.events {
		stats[e.Kind]++
	}
	return stats
}

// MaxEvents returns the capacity bound.
func (b *EventBuffer) MaxEvents() int { return b.maxEvents }

// MaxAge returns the age bound.
func (b *EventBuffer) MaxAge() time.Duration { return b.maxAge }
