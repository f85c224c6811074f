package stream

import "sync"

// Ring is a fixed-capacity buffer of log events. When full, the oldest
// event is evicted. Safe for concurrent use.
type Ring struct {
	mu   sync.RWMutex
	buf  []LogEvent
	next int
	full bool
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 500
	}
	return &Ring{buf: make([]LogEvent, capacity)}
}

// Push appends an event, evicting the oldest when at capacity.
func (r *Ring) Push(ev LogEvent) {
	r.mu.Lock()
	r.buf[r.next] = ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Len returns the number of retained events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Snapshot returns the retained events, oldest first.
func (r *Ring) Snapshot() []LogEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]LogEvent, r.next)
		copy(out, r.buf[:r.next])
		return out
	}

	out := make([]LogEvent, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}
