package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chaz8081/neuton-ble/internal/monitor"
)

var scanAll bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List advertising Neuton peripherals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		name := cfg.Monitor.DeviceName
		if scanAll {
			name = ""
		}

		devices, err := monitor.ScanForDevices(monitor.NewTinyGoAdapter(), name, cfg.Monitor.ScanTimeout)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No devices found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tRSSI\tNAME")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%d\t%s\n", d.MAC, d.RSSI, d.Name)
		}
		return w.Flush()
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "list every named device, not only Neuton peripherals")
}
