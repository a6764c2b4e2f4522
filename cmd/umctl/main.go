package main

import (
	"os"

	"codeberg.org/mutker/umctl/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "umctl",
	Short: "Live telemetry for UM24C/UM25C/UM34C USB power meters",
	Long: `umctl connects to a UM24C, UM25C or UM34C USB power meter over
Bluetooth LE or an rfcomm serial port, polls it for snapshots and shows
the readings live. Snapshots can optionally be recorded to SQLite.`,
	SilenceUsage: true,
	RunE:         runMonitor,
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(monitorCmd, decodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
