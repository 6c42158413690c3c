package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/neuton-ble/internal/config"
	"github.com/chaz8081/neuton-ble/internal/monitor"
)

var (
	configPath string
	logLevel   string
	deviceMAC  string
)

var rootCmd = &cobra.Command{
	Use:   "gesture-monitor",
	Short: "Companion central for the Neuton gesture peripheral",
	Long: `Finds a Neuton peripheral by name, prints the gesture predictions it
notifies and writes data to its inbound characteristic.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sendCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/neuton-ble/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&deviceMAC, "device", "", "peripheral address (default: scan for monitor.device_name)")
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else if _, statErr := os.Stat(config.DefaultConfigPath()); statErr == nil {
		cfg, err = config.Load(config.DefaultConfigPath())
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if deviceMAC != "" {
		cfg.Monitor.DeviceMAC = deviceMAC
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// resolveDevice returns the configured address, or scans for the
// configured name.
func resolveDevice(adapter monitor.Adapter, cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.Monitor.DeviceMAC != "" {
		return cfg.Monitor.DeviceMAC, nil
	}
	logger.Info("[MON] scanning", "name", cfg.Monitor.DeviceName, "timeout", cfg.Monitor.ScanTimeout)
	d, err := monitor.FindDevice(adapter, cfg.Monitor.DeviceName, cfg.Monitor.ScanTimeout)
	if err != nil {
		return "", err
	}
	logger.Info("[MON] device found", "name", d.Name, "mac", d.MAC, "rssi", d.RSSI)
	return d.MAC, nil
}

func newClient(adapter monitor.Adapter, mac string, cfg *config.Config, logger *slog.Logger, handler monitor.PredictionHandler) (*monitor.Client, error) {
	opts := monitor.DefaultClientOptions()
	opts.ReconnectMax = cfg.Monitor.ReconnectMax
	opts.QueueSize = cfg.Monitor.QueueSize
	opts.MaxPayload = cfg.MaxPayload
	opts.Logger = logger
	return monitor.NewClient(adapter, mac, handler, opts)
}
