package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaz8081/neuton-ble/internal/monitor"
)

var sendCmd = &cobra.Command{
	Use:   "send <text>...",
	Short: "Write text to the peripheral's inbound characteristic",
	Example: `  gesture-monitor send reset
  gesture-monitor --device AA:BB:CC:DD:EE:FF send "mode 2"`,
	Args: cobra.MinimumNArgs(1),
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

		client, err := newClient(adapter, mac, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Connect(); err != nil {
			return err
		}
		if err := client.Send([]byte(strings.Join(args, " "))); err != nil {
			return err
		}
		logger.Info("[MON] sent", "mac", mac)
		return nil
	},
}
