package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	DeviceName   string            `yaml:"device_name" default:"Neuton NRF RemoteControl"`
	Backend      string            `yaml:"backend" default:"hci"` // "hci" or "tinygo"
	HCI          HCIConfig         `yaml:"hci"`
	Advertising  AdvertisingConfig `yaml:"advertising"`
	EventQueue   int               `yaml:"event_queue" default:"32"`
	RSSIInterval time.Duration     `yaml:"rssi_interval" default:"10s"` // 0 disables
	MaxPayload   int               `yaml:"max_payload" default:"20"`
	LogLevel     string            `yaml:"log_level" default:"info"`
	Monitor      MonitorConfig     `yaml:"monitor"`
}

// HCIConfig holds settings for the Linux HCI user-channel backend.
type HCIConfig struct {
	DeviceID       int `yaml:"device_id" default:"0"`
	CommandBuffers int `yaml:"command_buffers" default:"1"`
}

// AdvertisingConfig holds advertising settings.
type AdvertisingConfig struct {
	Interval            time.Duration `yaml:"interval" default:"60ms"`
	OnInit              bool          `yaml:"on_init" default:"true"`
	RestartOnDisconnect bool          `yaml:"restart_on_disconnect" default:"true"`
}

// MonitorConfig holds settings for the gesture monitor central.
type MonitorConfig struct {
	DeviceName   string        `yaml:"device_name" default:"Neuton NRF RemoteControl"`
	DeviceMAC    string        `yaml:"device_mac"` // empty: scan by name
	ScanTimeout  time.Duration `yaml:"scan_timeout" default:"5s"`
	ReconnectMax int           `yaml:"reconnect_max" default:"30"` // seconds
	QueueSize    int           `yaml:"queue_size" default:"64"`
}

// Advertising interval bounds for connectable undirected advertising.
const (
	minAdvInterval = 20 * time.Millisecond
	maxAdvInterval = 10240 * time.Millisecond
)

// maxNotifyPayload is the largest notification payload (ATT MTU 247 - 3).
const maxNotifyPayload = 244

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "neuton-ble")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. The HCI backend
// is Linux-only, so other platforms default to tinygo.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	if runtime.GOOS != "linux" {
		cfg.Backend = "tinygo"
	}
	return cfg
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}

	switch c.Backend {
	case "hci", "tinygo":
	default:
		return fmt.Errorf("backend must be \"hci\" or \"tinygo\", got %q", c.Backend)
	}

	if c.HCI.DeviceID < 0 {
		return fmt.Errorf("hci.device_id must be >= 0")
	}
	if c.HCI.CommandBuffers < 1 {
		return fmt.Errorf("hci.command_buffers must be >= 1")
	}

	if c.Advertising.Interval < minAdvInterval || c.Advertising.Interval > maxAdvInterval {
		return fmt.Errorf("advertising.interval must be between %v and %v, got %v", minAdvInterval, maxAdvInterval, c.Advertising.Interval)
	}

	if c.EventQueue < 1 {
		return fmt.Errorf("event_queue must be >= 1")
	}
	if c.RSSIInterval < 0 {
		return fmt.Errorf("rssi_interval must not be negative")
	}
	if c.MaxPayload < 1 || c.MaxPayload > maxNotifyPayload {
		return fmt.Errorf("max_payload must be between 1 and %d, got %d", maxNotifyPayload, c.MaxPayload)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Monitor.DeviceName == "" && c.Monitor.DeviceMAC == "" {
		return fmt.Errorf("monitor.device_name or monitor.device_mac must be set")
	}
	if c.Monitor.ScanTimeout <= 0 {
		return fmt.Errorf("monitor.scan_timeout must be > 0")
	}
	if c.Monitor.ReconnectMax < 1 {
		return fmt.Errorf("monitor.reconnect_max must be >= 1")
	}
	if c.Monitor.QueueSize < 1 {
		return fmt.Errorf("monitor.queue_size must be >= 1")
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// map to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# neuton-ble configuration
# backend: "hci" (Linux HCI user channel, supports RSSI) or "tinygo"
# rssi_interval: how often serve logs the link RSSI, 0 disables
`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there. It returns the written path, or "" if a config already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}
