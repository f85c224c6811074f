//go:build !windows

package sysproxy

func (m *Manager) enable(port int) error {
	m.logger.Infow("System proxy toggling is not implemented on this platform", "port", port)
	return nil
}

func (m *Manager) disable() error {
	return nil
}
