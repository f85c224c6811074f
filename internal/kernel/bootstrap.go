package kernel

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// secretDoc extracts only the control-plane secret from a configuration
// document; everything else is ignored.
type secretDoc struct {
	Secret string `yaml:"secret"`
}

// EnsureBootstrapConfig guarantees a kernel configuration document exists at
// path, writing the fixed control-plane block when absent. Creation failure
// is fatal: the supervisor cannot reach a kernel started without it.
func EnsureBootstrapConfig(path, fixedBlock string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat bootstrap config %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(fixedBlock), 0o644); err != nil {
		return fmt.Errorf("failed to write bootstrap config %s: %w", path, err)
	}
	return nil
}

// ReadSecret derives the auth token from the bootstrap config's secret
// field. A missing file or missing field yields an empty token, matching the
// kernel's own behavior of running without auth when no secret is set.
func ReadSecret(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc secretDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return doc.Secret
}
