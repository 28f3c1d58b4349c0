package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/vahti/config"
	"github.com/yairfalse/vahti/history"
	"github.com/yairfalse/vahti/types"
)

var (
	historyConfigPath string
	historyDir        string
	historySince      time.Duration
	historyLimit      int
	historyOutput     string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List snapshots from the local history store",
	Long: `List the snapshots the daemon has persisted, oldest first.

Each refresh stores one snapshot, so the history shows how the host
drifted: when an enforcement deadline appeared, when severity
escalated, when the update finally landed.

The store is locked while the daemon runs; query the daemon's
/api/v1/history endpoint instead of this command in that case.`,
	Example: `  vahti history                     # Last 7 days of snapshots
  vahti history --since 24h         # Snapshots from the last day
  vahti history --limit 10          # Cap the listing
  vahti history --output json       # Machine-readable output`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyConfigPath, "config", "c", "", "Config file path")
	historyCmd.Flags().StringVar(&historyDir, "dir", "", "History directory (overrides config)")
	historyCmd.Flags().DurationVar(&historySince, "since", 7*24*time.Hour, "How far back to list")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum snapshots to list, oldest first")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table, json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyOutput != "table" && historyOutput != "json" {
		return fmt.Errorf("invalid output format: %s (must be table or json)", historyOutput)
	}

	cfg, err := config.Load(historyConfigPath)
	if err != nil {
		return err
	}
	dir := cfg.History.Dir
	if historyDir != "" {
		dir = historyDir
	}

	store, err := history.Open(dir)
	if err != nil {
		if strings.Contains(err.Error(), "timeout") {
			return fmt.Errorf("history store at %s is locked, is the daemon running? query its /api/v1/history endpoint instead", dir)
		}
		return err
	}
	defer func() { _ = store.Close() }()

	snaps, err := store.List(time.Now().Add(-historySince), historyLimit)
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}

	if historyOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snaps)
	}

	if len(snaps) == 0 {
		fmt.Println("No snapshots in the selected window.")
		return nil
	}
	printHistoryTable(snaps)
	return nil
}

func printHistoryTable(snaps []types.Snapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REVISION\tTIME\tSEVERITY\tVERSION\tSTATUS")
	_, _ = fmt.Fprintln(w, "--------\t----\t--------\t-------\t------")

	for _, s := range snaps {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			s.Revision,
			s.Timestamp.Format("2006-01-02 15:04"),
			s.Severity,
			s.Facts.InstalledVersion,
			s.Summary(),
		)
	}
	_ = w.Flush()

	fmt.Printf("\n%d snapshot(s)\n", len(snaps))
}
