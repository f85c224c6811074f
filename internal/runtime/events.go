package runtime

import (
	"sync"

	"go.uber.org/zap"
)

// EventType identifies what changed.
type EventType string

const (
	// EventStateChanged fires after any state-changing command has settled;
	// every observer surface re-fetches on it.
	EventStateChanged EventType = "state-changed"
	// EventKernelConnected fires when control-plane health transitions from
	// unreachable to reachable.
	EventKernelConnected EventType = "kernel-connected"
	// EventKernelDisconnected fires on the opposite transition.
	EventKernelDisconnected EventType = "kernel-disconnected"
	// EventProfilesChanged fires when the profile list or active profile
	// changes.
	EventProfilesChanged EventType = "profiles-changed"
)

// Event is one notification delivered to observer surfaces.
type Event struct {
	Type EventType `json:"type"`
}

// Bus fans events out to subscribers. Delivery is non-blocking: a subscriber
// that stops draining loses events rather than stalling the publisher.
type Bus struct {
	logger *zap.SugaredLogger

	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates an event bus.
func NewBus(logger *zap.SugaredLogger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new subscriber channel.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers ev to every current subscriber. Sends happen under the
// read lock so Unsubscribe cannot close a channel mid-delivery.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debugw("Dropping event for slow subscriber", "type", ev.Type)
		}
	}
}
