package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wsTestServer upgrades every request, sends the configured frames, then
// drops the connection abruptly (non-clean closure).
type wsTestServer struct {
	srv      *httptest.Server
	frames   []string
	dials    atomic.Int32
	upgrader websocket.Upgrader
}

func newWSTestServer(t *testing.T, frames []string) *wsTestServer {
	t.Helper()
	s := &wsTestServer{frames: frames}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.dials.Add(1)
		for _, f := range s.frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// Abrupt close, no close handshake.
		conn.Close()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func TestConsumerDeliversMessagesInOrder(t *testing.T) {
	server := newWSTestServer(t, []string{"one", "two", "three"})

	var mu sync.Mutex
	var got []string
	c := NewConsumer("test", server.wsURL, func(msg []byte) {
		mu.Lock()
		got = append(got, string(msg))
		mu.Unlock()
	}, zap.NewNop().Sugar())
	c.reconnectDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 3
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"one", "two", "three"}, got[:3])
	mu.Unlock()
	c.Close()
}

func TestConsumerReconnectsAfterDrop(t *testing.T) {
	server := newWSTestServer(t, []string{"ping"})

	c := NewConsumer("test", server.wsURL, func([]byte) {}, zap.NewNop().Sugar())
	c.reconnectDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	// The server drops every connection after one frame; the consumer must
	// keep coming back.
	require.Eventually(t, func() bool {
		return server.dials.Load() >= 3
	}, 3*time.Second, 10*time.Millisecond)

	c.Close()
}

func TestCloseStopsReconnecting(t *testing.T) {
	server := newWSTestServer(t, []string{"ping"})

	c := NewConsumer("test", server.wsURL, func([]byte) {}, zap.NewNop().Sugar())
	c.reconnectDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return server.dials.Load() >= 1
	}, 3*time.Second, 10*time.Millisecond)

	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	// No resurrection after an intentional shutdown.
	dialsAtClose := server.dials.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, dialsAtClose, server.dials.Load())
}

func TestContextCancelStopsConsumer(t *testing.T) {
	server := newWSTestServer(t, nil)

	c := NewConsumer("test", server.wsURL, func([]byte) {}, zap.NewNop().Sugar())
	c.reconnectDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
