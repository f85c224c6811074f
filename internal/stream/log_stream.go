package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// connPattern matches connection-establishment lines emitted by the kernel,
// e.g. "[TCP] 192.168.1.5:52814 --> example.com:443 match RuleSet(...)".
// The capture is the destination host up to the first colon or whitespace.
var connPattern = regexp.MustCompile(`\[(?:TCP|UDP)\]\s.*?-->\s*([^:\s]+)`)

// ExtractHost returns the destination host of a connection-establishment
// log line, or "" when the line is not one.
func ExtractHost(payload string) string {
	m := connPattern.FindStringSubmatch(payload)
	if m == nil {
		return ""
	}
	return m[1]
}

// DomainRecorder receives extracted destination hosts for aggregation.
type DomainRecorder interface {
	RecordDomain(host string)
}

// logMessage is the wire shape of one kernel log frame.
type logMessage struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// LogStream consumes the kernel's /logs websocket: ring-buffers events,
// records them to day files, feeds connection hosts to the aggregator and
// fans events out to subscribers. One physical connection, shared.
type LogStream struct {
	consumer *Consumer
	ring     *Ring
	recorder *Recorder
	domains  DomainRecorder
	logger   *zap.SugaredLogger
	clock    func() time.Time
	seq      atomic.Int64

	subMu sync.RWMutex
	subs  map[chan LogEvent]struct{}
}

// NewLogStream creates the log stream consumer. urlFn must yield the
// authenticated websocket URL for /logs.
func NewLogStream(urlFn func() string, ringCapacity int, recorder *Recorder, domains DomainRecorder, logger *zap.SugaredLogger) *LogStream {
	s := &LogStream{
		ring:     NewRing(ringCapacity),
		recorder: recorder,
		domains:  domains,
		logger:   logger,
		clock:    time.Now,
		subs:     make(map[chan LogEvent]struct{}),
	}
	s.consumer = NewConsumer("logs", urlFn, s.handleMessage, logger)
	return s
}

// Run pumps the stream until ctx is cancelled or Close is called.
func (s *LogStream) Run(ctx context.Context) {
	s.consumer.Run(ctx)
}

// Close shuts the stream down for good and releases the day file.
func (s *LogStream) Close() {
	s.consumer.Close()
	s.recorder.Close()
}

// handleMessage processes one inbound frame. A frame that does not parse is
// discarded silently; a single corrupt frame must not kill the connection.
func (s *LogStream) handleMessage(msg []byte) {
	var m logMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return
	}

	now := s.clock()
	ev := LogEvent{
		ID:      s.seq.Add(1),
		Time:    now,
		Level:   m.Type,
		Payload: m.Payload,
	}

	s.ring.Push(ev)
	s.recorder.Append(now, fmt.Sprintf("%s [%s] %s",
		now.Format("2006-01-02 15:04:05"), ev.Level, ev.Payload))

	if host := ExtractHost(m.Payload); host != "" && s.domains != nil {
		s.domains.RecordDomain(host)
	}

	s.publish(ev)
}

// Recent returns the ring-buffered events, oldest first.
func (s *LogStream) Recent() []LogEvent {
	return s.ring.Snapshot()
}

// Subscribe registers a new subscriber. Events are dropped, not buffered,
// for subscribers that fall behind.
func (s *LogStream) Subscribe() chan LogEvent {
	ch := make(chan LogEvent, 64)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (s *LogStream) Unsubscribe(ch chan LogEvent) {
	s.subMu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.subMu.Unlock()
}

func (s *LogStream) publish(ev LogEvent) {
	s.subMu.RLock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.subMu.RUnlock()
}
