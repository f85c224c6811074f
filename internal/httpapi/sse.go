package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sseHeartbeat = 30 * time.Second

// handleSSEEvents streams runtime events and live traffic points to the
// dashboard. The feed mirrors what the tray sees on the in-process bus, so
// both surfaces refresh on the same transitions.
func (s *Server) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.logger.Warn("ResponseWriter does not support flushing, SSE degraded")
	}

	fmt.Fprintf(w, ": connected\nretry: 5000\n\n")
	if canFlush {
		flusher.Flush()
	}

	events := s.controller.Bus().Subscribe()
	defer s.controller.Bus().Unsubscribe(events)
	traffic := s.controller.Traffic().Subscribe()
	defer s.controller.Traffic().Unsubscribe(traffic)

	// Initial snapshot so a freshly opened dashboard renders immediately.
	if err := s.writeSSEEvent(w, flusher, canFlush, "status", s.controller.Status(r.Context())); err != nil {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := s.writeSSEEvent(w, flusher, canFlush, "ping",
				map[string]int64{"timestamp": time.Now().Unix()}); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeSSEEvent(w, flusher, canFlush, string(ev.Type),
				s.controller.Status(r.Context())); err != nil {
				return
			}
		case point, ok := <-traffic:
			if !ok {
				return
			}
			if err := s.writeSSEEvent(w, flusher, canFlush, "traffic", point); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, canFlush bool, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if canFlush {
		flusher.Flush()
	}
	return nil
}
