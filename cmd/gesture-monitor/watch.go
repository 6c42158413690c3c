package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/neuton-ble/internal/ble/protocol"
	"github.com/chaz8081/neuton-ble/internal/monitor"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print gesture predictions from the peripheral",
	Long: `Connects to the peripheral, subscribes to its outbound characteristic and
prints every decoded prediction. The link is re-established with exponential
backoff if it drops.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		adapter := monitor.NewTinyGoAdapter()
		mac, err := resolveDevice(adapter, cfg, logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		client, err := newClient(adapter, mac, cfg, logger, func(p protocol.Prediction) {
			fmt.Fprintf(out, "%s  %-16s %3d%%\n", time.Now().Format("15:04:05.000"), p.Gesture(), p.Probability)
		})
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Connect(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		logger.Info("[MON] shutting down")
		return nil
	},
}
