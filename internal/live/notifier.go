// Package live turns store change notifications into subscriptions that
// re-run a query whenever the underlying data changes.
package live

import (
	"sync"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

// Emitter is implemented by anything that wants to hear about writes.
// Stores call Emit after every successful mutation.
type Emitter interface {
	Emit(topic string)
}

// NoopEmitter discards every signal
type NoopEmitter struct{}

// Emit implements Emitter as a no-op
func (NoopEmitter) Emit(string) {}

// Notifier fans change signals out to subscribers. Each subscriber has a
// one-slot buffer so a burst of writes collapses into a single wake-up and a
// slow subscriber never blocks the writer.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	logger *logger.Logger
}

type subscription struct {
	topics map[string]struct{}
	ch     chan struct{}
}

// NewNotifier creates an empty notifier
func NewNotifier(log *logger.Logger) *Notifier {
	return &Notifier{
		subs:   make(map[uint64]*subscription),
		logger: log,
	}
}

// Emit wakes every subscriber watching topic (or watching everything)
func (n *Notifier) Emit(topic string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var woken int
	for _, sub := range n.subs {
		if len(sub.topics) > 0 {
			if _, ok := sub.topics[topic]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- struct{}{}:
			woken++
		default:
			// already pending
		}
	}

	n.logger.Debug("Change emitted", map[string]interface{}{
		"topic":       topic,
		"subscribers": len(n.subs),
		"woken":       woken,
	})
}

// Subscribe registers for change signals on the given topics, or on every
// topic when none are given. The returned cancel func must be called to release
// the subscription.
func (n *Notifier) Subscribe(topics ...string) (<-chan struct{}, func()) {
	sub := &subscription{
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan struct{}, 1),
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = sub
	n.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Len returns the number of active subscriptions
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
