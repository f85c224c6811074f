package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// historyLength is the number of instantaneous rate points retained for the
// UI traffic chart.
const historyLength = 60

// trafficMessage is the wire shape of one kernel traffic frame.
type trafficMessage struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
}

// TrafficStream consumes the kernel's /traffic websocket and fans
// instantaneous up/down rates out to subscribers. It keeps a short rolling
// history for chart rendering but persists nothing itself; windowed traffic
// persistence is the sampler's concern.
type TrafficStream struct {
	consumer *Consumer
	logger   *zap.SugaredLogger
	clock    func() time.Time

	mu      sync.RWMutex
	history []TrafficPoint
	subs    map[chan TrafficPoint]struct{}
}

// NewTrafficStream creates the traffic stream consumer. urlFn must yield
// the authenticated websocket URL for /traffic.
func NewTrafficStream(urlFn func() string, logger *zap.SugaredLogger) *TrafficStream {
	s := &TrafficStream{
		logger: logger,
		clock:  time.Now,
		subs:   make(map[chan TrafficPoint]struct{}),
	}
	s.consumer = NewConsumer("traffic", urlFn, s.handleMessage, logger)
	return s
}

// Run pumps the stream until ctx is cancelled or Close is called.
func (s *TrafficStream) Run(ctx context.Context) {
	s.consumer.Run(ctx)
}

// Close shuts the stream down for good.
func (s *TrafficStream) Close() {
	s.consumer.Close()
}

func (s *TrafficStream) handleMessage(msg []byte) {
	var m trafficMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return
	}

	point := TrafficPoint{Up: m.Up, Down: m.Down, Time: s.clock()}

	s.mu.Lock()
	s.history = append(s.history, point)
	if len(s.history) > historyLength {
		s.history = s.history[len(s.history)-historyLength:]
	}
	s.mu.Unlock()

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-delivery.
	s.mu.RLock()
	for ch := range s.subs {
		select {
		case ch <- point:
		default:
		}
	}
	s.mu.RUnlock()
}

// History returns the retained rate points, oldest first.
func (s *TrafficStream) History() []TrafficPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrafficPoint, len(s.history))
	copy(out, s.history)
	return out
}

// Subscribe registers a new subscriber for live rate points.
func (s *TrafficStream) Subscribe() chan TrafficPoint {
	ch := make(chan TrafficPoint, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (s *TrafficStream) Unsubscribe(ch chan TrafficPoint) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}
