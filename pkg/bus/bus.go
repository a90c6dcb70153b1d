// Package bus is the in-process publish/subscribe channel the image panes
// and transcription panes use to keep each other in step.
package bus

import (
	"log/slog"
	"sync"
)

// Event is a message on the bus. Sender identifies the publishing pane so
// it never receives its own events.
type Event interface {
	Sender() string
}

// Handler receives events.
type Handler func(Event)

type subscriber struct {
	id  string
	seq uint64
	fn  Handler
}

// Bus delivers each published event synchronously, in subscription order,
// to every subscriber other than the sender. It is safe for concurrent use;
// handlers may publish further events.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	seq    uint64
	logger *slog.Logger
}

// New returns an empty bus. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn under id and returns a function that removes it.
func (b *Bus) Subscribe(id string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.subs = append(b.subs, subscriber{id: id, seq: seq, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.seq == seq {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber whose id differs from ev.Sender().
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.RUnlock()

	b.logger.Debug("bus publish", "event", Name(ev), "sender", ev.Sender())
	for _, s := range subs {
		if s.id == ev.Sender() {
			continue
		}
		s.fn(ev)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
