// Package stream maintains resilient websocket connections to the kernel's
// streaming endpoints and fans parsed events out to subscribers. Each
// endpoint gets exactly one physical connection regardless of subscriber
// count, so durable side effects (disk logging, counter increments) happen
// exactly once per delivered message.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	dialTimeout           = 10 * time.Second
	defaultReconnectDelay = 5 * time.Second
)

// Consumer owns one websocket connection to a streaming endpoint. It
// reconnects after a fixed delay on any non-intentional closure and stops
// for good once Close is called or its context is cancelled.
type Consumer struct {
	name           string
	urlFn          func() string
	sink           func([]byte)
	logger         *zap.SugaredLogger
	reconnectDelay time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewConsumer creates a consumer for the endpoint addressed by urlFn. The
// URL is re-evaluated on every (re)connect so a rotated auth token is picked
// up without restarting the consumer.
func NewConsumer(name string, urlFn func() string, sink func([]byte), logger *zap.SugaredLogger) *Consumer {
	return &Consumer{
		name:           name,
		urlFn:          urlFn,
		sink:           sink,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}
}

// Run connects and pumps messages until the context is cancelled or Close
// is called. Blocks; run it on its own goroutine.
func (c *Consumer) Run(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}

	for {
		if ctx.Err() != nil || c.isClosed() {
			return
		}

		conn, _, err := dialer.DialContext(ctx, c.urlFn(), nil)
		if err != nil {
			c.logger.Debugw("Stream dial failed", "stream", c.name, "error", err)
			if !c.waitReconnect(ctx) {
				return
			}
			continue
		}

		c.setConn(conn)
		c.logger.Infow("Stream connected", "stream", c.name)
		c.readPump(conn)
		c.setConn(nil)
		conn.Close()

		// An intentional shutdown must never resurrect the connection.
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		c.logger.Warnw("Stream disconnected, scheduling reconnect",
			"stream", c.name, "delay", c.reconnectDelay)
		if !c.waitReconnect(ctx) {
			return
		}
	}
}

// readPump delivers messages in transport order until the connection fails.
func (c *Consumer) readPump(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.sink(msg)
	}
}

func (c *Consumer) waitReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.reconnectDelay):
		return !c.isClosed()
	}
}

// Close marks the consumer as intentionally shut down and drops the live
// connection, unblocking the read pump.
func (c *Consumer) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Consumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Consumer) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}
