// Package memory implements an in-memory event publisher for tests.
package memory

import (
	"context"
	"sync"

	"github.com/rentradar/rentradar/internal/notify"
)

// Publisher records published events. Safe for concurrent use.
type Publisher struct {
	mu     sync.RWMutex
	events []notify.Event

	// Err, when set, is returned by every Publish call.
	Err error
}

// New creates an empty in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event.
func (p *Publisher) Publish(_ context.Context, ev notify.Event) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

// Events returns a copy of all recorded events.
func (p *Publisher) Events() []notify.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]notify.Event, len(p.events))
	copy(out, p.events)
	return out
}
