// Package sysproxy toggles the operating system's global proxy setting so
// that it points at the kernel's mixed listener.
package sysproxy

import "go.uber.org/zap"

// Manager flips the OS proxy configuration on and off.
type Manager struct {
	logger *zap.SugaredLogger
}

// NewManager creates a system proxy manager.
func NewManager(logger *zap.SugaredLogger) *Manager {
	return &Manager{logger: logger}
}

// Enable routes system traffic through 127.0.0.1:port.
func (m *Manager) Enable(port int) error {
	return m.enable(port)
}

// Disable restores direct system connectivity. Safe to call when the proxy
// was never enabled.
func (m *Manager) Disable() error {
	return m.disable()
}
