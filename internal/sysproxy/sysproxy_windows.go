//go:build windows

package sysproxy

import (
	"fmt"
	"os/exec"
)

const internetSettingsKey = `HKCU\Software\Microsoft\Windows\CurrentVersion\Internet Settings`

func (m *Manager) enable(port int) error {
	server := fmt.Sprintf("127.0.0.1:%d", port)
	if err := regAdd("ProxyServer", "REG_SZ", server); err != nil {
		return fmt.Errorf("failed to set proxy server: %w", err)
	}
	if err := regAdd("ProxyEnable", "REG_DWORD", "1"); err != nil {
		return fmt.Errorf("failed to enable system proxy: %w", err)
	}
	m.logger.Infow("System proxy enabled", "server", server)
	return nil
}

func (m *Manager) disable() error {
	if err := regAdd("ProxyEnable", "REG_DWORD", "0"); err != nil {
		return fmt.Errorf("failed to disable system proxy: %w", err)
	}
	m.logger.Info("System proxy disabled")
	return nil
}

func regAdd(name, typ, value string) error {
	cmd := exec.Command("reg", "add", internetSettingsKey,
		"/v", name, "/t", typ, "/d", value, "/f")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("reg add %s failed: %w (%s)", name, err, string(out))
	}
	return nil
}
