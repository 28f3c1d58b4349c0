package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	debugLog bool

	rootCmd = &cobra.Command{
		Use:   "vahti",
		Short: "Host update enforcement watchdog",
		Long: `Vahti - Host Update Enforcement Watchdog

Vahti watches a host's managed software update state: the installed
version, the enforcement deadlines the update system appends to its
log, staged update payloads, disk headroom, and uptime.

Run it once for a scriptable status check, or as a daemon that
refreshes on an interval, reacts to file changes, keeps snapshot
history, and serves status over a local HTTP/WebSocket API.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugLog {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Vahti {{.Version}} - Host Update Enforcement Watchdog
`)
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging")
}
