package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load builds the configuration from defaults, an optional config file and
// CLASHFLUX_* environment variables, in increasing precedence. Command-line
// flags are applied by the caller on top of the result.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("CLASHFLUX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Logging == nil {
		cfg.Logging = DefaultConfig().Logging
	}
	if cfg.Stats == nil {
		cfg.Stats = DefaultConfig().Stats
	}

	// No EnsureDataDir here: the caller may still override DataDir with a
	// flag, and creating the default directory first would leave it behind.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
