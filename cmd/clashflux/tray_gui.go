//go:build !nogui && !headless

package main

import (
	"go.uber.org/zap"

	"clashflux-go/internal/config"
	"clashflux-go/internal/observer"
	"clashflux-go/internal/runtime"
)

// createTray creates the tray application for GUI platforms.
func createTray(rt *runtime.Runtime, cfg *config.Config, logger *zap.SugaredLogger, shutdownFunc func()) TrayInterface {
	return observer.New(rt, cfg.Listen, cfg.TrayPollInterval, logger, shutdownFunc)
}
