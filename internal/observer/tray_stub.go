//go:build nogui || headless

package observer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Coordinator is the system tray application (stub version).
type Coordinator struct {
	logger *zap.SugaredLogger
}

// New creates the tray coordinator (stub version).
func New(_ Controller, _ string, _ time.Duration, logger *zap.SugaredLogger, _ func()) *Coordinator {
	return &Coordinator{logger: logger}
}

// Run blocks until ctx is cancelled (stub version - no tray).
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("Tray disabled (nogui/headless build)")
	<-ctx.Done()
	return ctx.Err()
}
