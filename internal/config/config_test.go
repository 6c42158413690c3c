package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DeviceName != "Neuton NRF RemoteControl" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "Neuton NRF RemoteControl")
	}
	wantBackend := "hci"
	if runtime.GOOS != "linux" {
		wantBackend = "tinygo"
	}
	if cfg.Backend != wantBackend {
		t.Errorf("Backend = %q, want %q", cfg.Backend, wantBackend)
	}
	if cfg.HCI.DeviceID != 0 {
		t.Errorf("HCI.DeviceID = %d, want 0", cfg.HCI.DeviceID)
	}
	if cfg.HCI.CommandBuffers != 1 {
		t.Errorf("HCI.CommandBuffers = %d, want 1", cfg.HCI.CommandBuffers)
	}
	if cfg.Advertising.Interval != 60*time.Millisecond {
		t.Errorf("Advertising.Interval = %v, want 60ms", cfg.Advertising.Interval)
	}
	if !cfg.Advertising.OnInit || !cfg.Advertising.RestartOnDisconnect {
		t.Errorf("Advertising = %+v, want on_init and restart_on_disconnect set", cfg.Advertising)
	}
	if cfg.EventQueue != 32 {
		t.Errorf("EventQueue = %d, want 32", cfg.EventQueue)
	}
	if cfg.MaxPayload != 20 {
		t.Errorf("MaxPayload = %d, want 20", cfg.MaxPayload)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Monitor.ScanTimeout != 5*time.Second {
		t.Errorf("Monitor.ScanTimeout = %v, want 5s", cfg.Monitor.ScanTimeout)
	}
	if cfg.Monitor.ReconnectMax != 30 {
		t.Errorf("Monitor.ReconnectMax = %d, want 30", cfg.Monitor.ReconnectMax)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device_name: Bench Rig
backend: tinygo
hci:
  device_id: 1
  command_buffers: 2
advertising:
  interval: 100ms
  on_init: false
  restart_on_disconnect: false
event_queue: 8
rssi_interval: 2s
max_payload: 60
log_level: debug
monitor:
  device_name: Bench
  device_mac: "AA:BB:CC:DD:EE:FF"
  scan_timeout: 3s
  reconnect_max: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DeviceName != "Bench Rig" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "Bench Rig")
	}
	if cfg.Backend != "tinygo" {
		t.Errorf("Backend = %q, want %q", cfg.Backend, "tinygo")
	}
	if cfg.HCI.DeviceID != 1 || cfg.HCI.CommandBuffers != 2 {
		t.Errorf("HCI = %+v, want device 1 with 2 buffers", cfg.HCI)
	}
	if cfg.Advertising.Interval != 100*time.Millisecond {
		t.Errorf("Advertising.Interval = %v, want 100ms", cfg.Advertising.Interval)
	}
	if cfg.Advertising.OnInit || cfg.Advertising.RestartOnDisconnect {
		t.Errorf("Advertising = %+v, want both flags cleared", cfg.Advertising)
	}
	if cfg.EventQueue != 8 {
		t.Errorf("EventQueue = %d, want 8", cfg.EventQueue)
	}
	if cfg.RSSIInterval != 2*time.Second {
		t.Errorf("RSSIInterval = %v, want 2s", cfg.RSSIInterval)
	}
	if cfg.MaxPayload != 60 {
		t.Errorf("MaxPayload = %d, want 60", cfg.MaxPayload)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Monitor.DeviceMAC != "AA:BB:CC:DD:EE:FF" || cfg.Monitor.ScanTimeout != 3*time.Second || cfg.Monitor.ReconnectMax != 10 {
		t.Errorf("Monitor = %+v", cfg.Monitor)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
advertising:
  interval: 200ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Advertising.Interval != 200*time.Millisecond {
		t.Errorf("Advertising.Interval = %v, want 200ms", cfg.Advertising.Interval)
	}
	if !cfg.Advertising.OnInit {
		t.Error("Advertising.OnInit should keep its default")
	}
	if cfg.DeviceName != "Neuton NRF RemoteControl" {
		t.Errorf("DeviceName = %q, want default", cfg.DeviceName)
	}
	if cfg.MaxPayload != 20 {
		t.Errorf("MaxPayload = %d, want default 20", cfg.MaxPayload)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "advertising: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "empty device name", modify: func(c *Config) { c.DeviceName = "" }, wantErr: true},
		{name: "unknown backend", modify: func(c *Config) { c.Backend = "bluez" }, wantErr: true},
		{name: "negative hci device", modify: func(c *Config) { c.HCI.DeviceID = -1 }, wantErr: true},
		{name: "zero command buffers", modify: func(c *Config) { c.HCI.CommandBuffers = 0 }, wantErr: true},
		{name: "advertising too fast", modify: func(c *Config) { c.Advertising.Interval = 10 * time.Millisecond }, wantErr: true},
		{name: "advertising too slow", modify: func(c *Config) { c.Advertising.Interval = 11 * time.Second }, wantErr: true},
		{name: "advertising at minimum", modify: func(c *Config) { c.Advertising.Interval = 20 * time.Millisecond }},
		{name: "zero event queue", modify: func(c *Config) { c.EventQueue = 0 }, wantErr: true},
		{name: "rssi disabled", modify: func(c *Config) { c.RSSIInterval = 0 }},
		{name: "negative rssi interval", modify: func(c *Config) { c.RSSIInterval = -time.Second }, wantErr: true},
		{name: "zero max payload", modify: func(c *Config) { c.MaxPayload = 0 }, wantErr: true},
		{name: "max payload above ATT limit", modify: func(c *Config) { c.MaxPayload = 245 }, wantErr: true},
		{name: "invalid log level", modify: func(c *Config) { c.LogLevel = "invalid" }, wantErr: true},
		{name: "monitor without target", modify: func(c *Config) { c.Monitor.DeviceName = "" }, wantErr: true},
		{name: "monitor by address only", modify: func(c *Config) {
			c.Monitor.DeviceName = ""
			c.Monitor.DeviceMAC = "AA:BB:CC:DD:EE:FF"
		}},
		{name: "zero scan timeout", modify: func(c *Config) { c.Monitor.ScanTimeout = 0 }, wantErr: true},
		{name: "zero reconnect max", modify: func(c *Config) { c.Monitor.ReconnectMax = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "neuton-ble", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# neuton-ble") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Advertising.Interval != 60*time.Millisecond {
		t.Errorf("written config Advertising.Interval = %v, want 60ms", cfg.Advertising.Interval)
	}
	if cfg.DeviceName != "Neuton NRF RemoteControl" {
		t.Errorf("written config DeviceName = %q", cfg.DeviceName)
	}

	// The written file loads back into a valid config.
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "neuton-ble")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("device_name: Custom\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
