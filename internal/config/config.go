package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDataDir is the per-user directory holding the bootstrap config,
	// profiles, statistics documents and daily logs.
	DefaultDataDir = ".clashflux"

	// DefaultControllerAddr is the fixed control-plane bind address written
	// into every active configuration document.
	DefaultControllerAddr = "127.0.0.1:9097"

	// DefaultMixedPort is the fixed local mixed proxy listener port.
	DefaultMixedPort = 7890

	// BootstrapConfigName is the on-disk name of the runtime config document
	// the kernel is launched against.
	BootstrapConfigName = "config.yaml"

	ProfilesFileName = "profiles.json"
	StatsFileName    = "stats.json"
	TrafficFileName  = "traffic.json"
	StateDBName      = "state.db"
	LogsDirName      = "logs"
)

// FixedBlock is the control-plane block force-appended to every active
// configuration document. It pins the controller address, secret policy and
// listener ports so the supervisor and control client can always reach the
// kernel deterministically, whatever a downloaded profile says.
const FixedBlock = `
external-controller: 127.0.0.1:9097
secret: ""
bind-address: "*"
mixed-port: 7890
port: 0
socks-port: 0
geodata-mode: true
geox-url:
  geoip: "https://testingcf.jsdelivr.net/gh/MetaCubeX/meta-rules-dat@release/geoip.dat"
  geosite: "https://testingcf.jsdelivr.net/gh/MetaCubeX/meta-rules-dat@release/geosite.dat"
  mmdb: "https://testingcf.jsdelivr.net/gh/MetaCubeX/meta-rules-dat@release/country.mmdb"
`

// Config is the application configuration.
type Config struct {
	DataDir        string `json:"data_dir" mapstructure:"data-dir"`
	KernelBin      string `json:"kernel_bin" mapstructure:"kernel-bin"`
	ControllerAddr string `json:"controller_addr" mapstructure:"controller-addr"`
	MixedPort      int    `json:"mixed_port" mapstructure:"mixed-port"`

	// Listen is the bind address of the local UI bridge API.
	Listen     string `json:"listen" mapstructure:"listen"`
	EnableTray bool   `json:"enable_tray" mapstructure:"tray"`

	Logging *LogConfig   `json:"logging,omitempty" mapstructure:"logging"`
	Stats   *StatsConfig `json:"stats,omitempty" mapstructure:"stats"`

	// TrayPollInterval is how often the observers re-fetch kernel state.
	TrayPollInterval time.Duration `json:"tray_poll_interval" mapstructure:"tray-poll-interval"`

	// SettleDelay is the short wait after a state-changing command before
	// refreshing observers, giving the kernel time to apply the change.
	SettleDelay time.Duration `json:"settle_delay" mapstructure:"settle-delay"`

	// RestartDelay is the pause between stop and start during a kernel
	// restart, letting the OS reclaim the controller port.
	RestartDelay time.Duration `json:"restart_delay" mapstructure:"restart-delay"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log-dir"`
	MaxSize       int    `json:"max_size" mapstructure:"max-size"`       // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"` // files
	MaxAge        int    `json:"max_age" mapstructure:"max-age"`         // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// StatsConfig controls statistics aggregation and persistence.
type StatsConfig struct {
	FlushInterval  time.Duration `json:"flush_interval" mapstructure:"flush-interval"`
	SampleInterval time.Duration `json:"sample_interval" mapstructure:"sample-interval"`
	RetentionDays  int           `json:"retention_days" mapstructure:"retention-days"`
	RingCapacity   int           `json:"ring_capacity" mapstructure:"ring-capacity"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		KernelBin:        "mihomo",
		ControllerAddr:   DefaultControllerAddr,
		MixedPort:        DefaultMixedPort,
		Listen:           "127.0.0.1:9098",
		EnableTray:       true,
		TrayPollInterval: 3 * time.Second,
		SettleDelay:      500 * time.Millisecond,
		RestartDelay:     time.Second,
		Logging: &LogConfig{
			Level:         "info",
			EnableFile:    true,
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
		},
		Stats: &StatsConfig{
			FlushInterval:  time.Minute,
			SampleInterval: time.Minute,
			RetentionDays:  90,
			RingCapacity:   500,
		},
	}
}

// EnsureDataDir resolves and creates the data directory.
func (c *Config) EnsureDataDir() error {
	if c.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		c.DataDir = filepath.Join(homeDir, DefaultDataDir)
	}
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", c.DataDir, err)
	}
	return nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.KernelBin == "" {
		return fmt.Errorf("kernel binary path must not be empty")
	}
	if c.ControllerAddr == "" {
		return fmt.Errorf("controller address must not be empty")
	}
	if c.MixedPort <= 0 || c.MixedPort > 65535 {
		return fmt.Errorf("mixed port %d out of range", c.MixedPort)
	}
	return nil
}

// BootstrapConfigPath returns the path of the runtime kernel config document.
func (c *Config) BootstrapConfigPath() string {
	return filepath.Join(c.DataDir, BootstrapConfigName)
}

// ProfilesPath returns the path of the persisted profile list.
func (c *Config) ProfilesPath() string {
	return filepath.Join(c.DataDir, ProfilesFileName)
}

// ProfilePath returns the per-profile document path for the given id.
func (c *Config) ProfilePath(id string) string {
	return filepath.Join(c.DataDir, id+".yaml")
}

// StatsPath returns the path of the day-keyed statistics document.
func (c *Config) StatsPath() string {
	return filepath.Join(c.DataDir, StatsFileName)
}

// TrafficPath returns the path of the 24-hour traffic sample document.
func (c *Config) TrafficPath() string {
	return filepath.Join(c.DataDir, TrafficFileName)
}

// StateDBPath returns the path of the app-state key/value store.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.DataDir, StateDBName)
}

// KernelLogsDir returns the directory holding day-named kernel log files.
func (c *Config) KernelLogsDir() string {
	return filepath.Join(c.DataDir, LogsDirName)
}

// ControllerBaseURL returns the HTTP base URL of the kernel control plane.
func (c *Config) ControllerBaseURL() string {
	return "http://" + c.ControllerAddr
}
