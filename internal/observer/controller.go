package observer

import (
	"context"

	"clashflux-go/internal/control"
	apprt "clashflux-go/internal/runtime"
)

// Controller is the slice of the application runtime the tray drives.
type Controller interface {
	Status(ctx context.Context) *apprt.Status
	Proxies(ctx context.Context) (map[string]control.Proxy, error)
	SetMode(ctx context.Context, mode string) error
	SetTun(ctx context.Context, enable bool) error
	SetSystemProxy(enable bool) error
	SelectProxy(ctx context.Context, group, name string) error
	RestartKernel() error
	Bus() *apprt.Bus
}
