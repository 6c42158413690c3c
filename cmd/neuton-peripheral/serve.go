package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/neuton-ble/internal/ble"
	"github.com/chaz8081/neuton-ble/internal/ble/protocol"
	"github.com/chaz8081/neuton-ble/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the peripheral",
	Long: `Brings up the Bluetooth stack and advertises the Neuton service.

Each line read from stdin is sent to the subscribed central, split into
notification frames of at most max_payload bytes. Inbound writes are logged.

Example:
  neuton-peripheral serve
  printf '2,97\n' | neuton-peripheral serve --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	printBanner(cmd.OutOrStdout(), cfg)

	stack, ctrl, err := newStack(cfg, logger)
	if err != nil {
		return err
	}

	opts := ble.Options{
		DeviceName:          cfg.DeviceName,
		AdvertisingInterval: cfg.Advertising.Interval,
		AdvertiseOnInit:     cfg.Advertising.OnInit,
		EventQueue:          cfg.EventQueue,
		CommandBuffers:      cfg.HCI.CommandBuffers,
		Logger:              logger,
	}
	p := ble.NewPeripheral(stack, ctrl, opts)
	defer p.Close()

	// Callbacks run on the peripheral's event loop; advertising restarts
	// are handed to the main loop.
	restart := make(chan struct{}, 1)
	onConn := func(connected bool) {
		if connected {
			logger.Info("[APP] central connected")
			return
		}
		logger.Info("[APP] central disconnected")
		if cfg.Advertising.RestartOnDisconnect {
			select {
			case restart <- struct{}{}:
			default:
			}
		}
	}
	onData := func(data []byte) {
		logger.Info("[APP] received", "len", len(data), "data", fmt.Sprintf("%q", data))
	}

	if err := p.Init(onConn, onData); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := readLines(ctx, cmd.InOrStdin())

	var rssiTick <-chan time.Time
	if cfg.RSSIInterval > 0 {
		ticker := time.NewTicker(cfg.RSSIInterval)
		defer ticker.Stop()
		rssiTick = ticker.C
	}

	logger.Info("[APP] ready, Ctrl+C to quit")
	for {
		select {
		case <-ctx.Done():
			logger.Info("[APP] shutting down")
			return nil

		case line, ok := <-lines:
			if !ok {
				logger.Debug("[APP] stdin closed")
				lines = nil
				continue
			}
			sendLine(p, logger, line, cfg.MaxPayload)

		case <-rssiTick:
			logRSSI(p, logger)

		case <-restart:
			if err := p.StartAdvertising(); err != nil {
				logger.Warn("[APP] failed to restart advertising", "error", err)
				continue
			}
			logger.Info("[APP] advertising restarted")
		}
	}
}

// newStack selects the Bluetooth backend. Both backends serve as their own
// HCI controller; only hci can execute commands.
func newStack(cfg *config.Config, logger *slog.Logger) (ble.Stack, ble.Controller, error) {
	switch cfg.Backend {
	case "hci":
		s := ble.NewHCIStack(ble.HCIOptions{
			DeviceID:            cfg.HCI.DeviceID,
			AdvertisingInterval: cfg.Advertising.Interval,
			Logger:              logger,
		})
		return s, s, nil
	case "tinygo":
		s := ble.NewTinyGoStack(logger)
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func sendLine(p *ble.Peripheral, logger *slog.Logger, line []byte, maxPayload int) {
	for _, chunk := range protocol.ChunkPayload(line, maxPayload) {
		if err := p.Send(chunk); err != nil {
			logger.Warn("[APP] send failed", "error", err)
			return
		}
	}
	logger.Debug("[APP] sent", "len", len(line))
}

func logRSSI(p *ble.Peripheral, logger *slog.Logger) {
	rssi, err := p.RSSI()
	switch {
	case err == nil:
		logger.Info("[APP] link RSSI", "dbm", rssi)
	case errors.Is(err, ble.ErrNoConnection):
		// Nothing to measure.
	default:
		logger.Warn("[APP] RSSI unavailable", "error", err)
	}
}

// readLines streams stdin lines until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan []byte {
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			if len(line) == 0 {
				continue
			}
			select {
			case ch <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// printBanner displays the startup configuration summary.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "=== neuton-peripheral ===")
	fmt.Fprintf(w, "  Name:     %s\n", cfg.DeviceName)
	fmt.Fprintf(w, "  Backend:  %s\n", cfg.Backend)
	fmt.Fprintf(w, "  Interval: %s\n", cfg.Advertising.Interval)
	fmt.Fprintf(w, "  Payload:  %d bytes\n", cfg.MaxPayload)
	fmt.Fprintf(w, "  Log:      %s\n", cfg.LogLevel)
	fmt.Fprintln(w, "=========================")
}
