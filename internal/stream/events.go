package stream

import "time"

// LogEvent is one structured record parsed from the kernel log stream.
// Events are ephemeral: only the most recent ring-buffer window is kept in
// memory, with per-domain counts aggregated separately.
type LogEvent struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Payload string    `json:"payload"`
}

// TrafficPoint is one instantaneous up/down rate sample from the traffic
// stream, in bytes per second.
type TrafficPoint struct {
	Up   int64     `json:"up"`
	Down int64     `json:"down"`
	Time time.Time `json:"time"`
}
