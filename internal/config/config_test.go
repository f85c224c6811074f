package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mihomo", cfg.KernelBin)
	assert.Equal(t, DefaultControllerAddr, cfg.ControllerAddr)
	assert.Equal(t, DefaultMixedPort, cfg.MixedPort)
	assert.True(t, cfg.EnableTray)
	require.NotNil(t, cfg.Logging)
	require.NotNil(t, cfg.Stats)
	assert.Equal(t, 90, cfg.Stats.RetentionDays)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KernelBin = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MixedPort = 70000
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ControllerAddr = ""
	assert.Error(t, cfg.Validate())
}

func TestFixedBlockPinsControlPlane(t *testing.T) {
	// The appended block must always override whatever a profile sets for
	// the controller address, auth and listener ports.
	assert.Contains(t, FixedBlock, "external-controller: 127.0.0.1:9097")
	assert.Contains(t, FixedBlock, `secret: ""`)
	assert.Contains(t, FixedBlock, "mixed-port: 7890")
	assert.Contains(t, FixedBlock, "port: 0")
	assert.Contains(t, FixedBlock, "socks-port: 0")
	assert.True(t, strings.HasPrefix(FixedBlock, "\n"), "block must start on a fresh line")
}

func TestPathHelpers(t *testing.T) {
	cfg := &Config{DataDir: filepath.Join("tmp", "flux")}

	assert.Equal(t, filepath.Join("tmp", "flux", "config.yaml"), cfg.BootstrapConfigPath())
	assert.Equal(t, filepath.Join("tmp", "flux", "profiles.json"), cfg.ProfilesPath())
	assert.Equal(t, filepath.Join("tmp", "flux", "abc.yaml"), cfg.ProfilePath("abc"))
	assert.Equal(t, filepath.Join("tmp", "flux", "stats.json"), cfg.StatsPath())
	assert.Equal(t, filepath.Join("tmp", "flux", "traffic.json"), cfg.TrafficPath())
	assert.Equal(t, filepath.Join("tmp", "flux", "state.db"), cfg.StateDBPath())
	assert.Equal(t, filepath.Join("tmp", "flux", "logs"), cfg.KernelLogsDir())
	assert.Equal(t, "http://127.0.0.1:9097", cfg.ControllerBaseURL())
}

func TestLoadMergesConfigFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clashflux.yaml")
	doc := "data-dir: " + dir + "\nkernel-bin: mihomo-alpha\nmixed-port: 7895\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "mihomo-alpha", cfg.KernelBin)
	assert.Equal(t, 7895, cfg.MixedPort)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultControllerAddr, cfg.ControllerAddr)
	require.NotNil(t, cfg.Logging)
	require.NotNil(t, cfg.Stats)
}

func TestLoadDoesNotCreateDataDir(t *testing.T) {
	// Flags can still override data-dir after Load, so Load must not create
	// the configured directory. That is the caller's job once the final
	// value is known.
	dir := t.TempDir()
	path := filepath.Join(dir, "clashflux.yaml")
	dataDir := filepath.Join(dir, "unused-data-dir")
	doc := "data-dir: " + dataDir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)

	_, err = os.Stat(dataDir)
	assert.True(t, os.IsNotExist(err), "Load must not create the data directory")
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
