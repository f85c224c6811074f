//go:build nogui || headless

package main

import (
	"context"

	"go.uber.org/zap"

	"clashflux-go/internal/config"
	"clashflux-go/internal/runtime"
)

// StubTray is a no-op TrayInterface for headless builds.
type StubTray struct {
	logger *zap.SugaredLogger
}

// Run blocks until ctx is cancelled.
func (s *StubTray) Run(ctx context.Context) error {
	s.logger.Info("Tray functionality disabled (nogui/headless build)")
	<-ctx.Done()
	return ctx.Err()
}

// createTray creates a stub tray for headless builds.
func createTray(_ *runtime.Runtime, _ *config.Config, logger *zap.SugaredLogger, _ func()) TrayInterface {
	return &StubTray{logger: logger}
}
