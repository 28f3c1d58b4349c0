package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vahti/config"
	"github.com/yairfalse/vahti/enforce"
	"github.com/yairfalse/vahti/facts"
	"github.com/yairfalse/vahti/types"
)

var (
	statusConfigPath string
	statusOutput     string
	statusExitCode   bool
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the host once and print its update status",
	Long: `Probe the host once, evaluate the update log's enforcement records,
and print the result.

The table output is meant for humans. Use --output json to get the full
snapshot for scripts, and --exit-code to branch on the result in shell
without parsing anything: exit 1 means an update is pending, exit 2
means its deadline has passed.`,
	Example: `  vahti status                                 # Human-readable table
  vahti status --output json                   # Full snapshot as JSON
  vahti status --exit-code                     # 0 ok, 1 pending, 2 overdue
  vahti status --config /etc/vahti/config.yaml # Explicit config file`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusConfigPath, "config", "c", "", "Config file path")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format: table, json")
	statusCmd.Flags().BoolVar(&statusExitCode, "exit-code", false, "Exit 1 when an update is pending, 2 when overdue")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusOutput != "table" && statusOutput != "json" {
		return fmt.Errorf("invalid output format: %s (must be table or json)", statusOutput)
	}

	cfg, err := config.Load(statusConfigPath)
	if err != nil {
		return err
	}

	snap, probeErrors := observeOnce(cmd.Context(), cfg)

	for _, pe := range probeErrors {
		fmt.Fprintf(os.Stderr, "Warning: %s probe failed: %v\n", pe.Probe, pe.Err)
	}

	if statusOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
	} else {
		printStatusTable(snap)
	}

	if statusExitCode {
		switch {
		case snap.Status.Overdue():
			os.Exit(2)
		case !snap.Status.UpToDate:
			os.Exit(1)
		}
	}
	return nil
}

// observeOnce runs the same probe-and-evaluate pass the daemon runs on
// every refresh, without persistence or publication
func observeOnce(ctx context.Context, cfg *config.Config) (types.Snapshot, []facts.ProbeError) {
	collector := facts.NewCollector(cfg.Probes)
	report := collector.Collect(ctx)

	status := enforce.Evaluate(report.Facts.InstalledVersion, report.UpdateLog, report.Facts.CollectedAt)
	severity := types.DeriveSeverity(status, cfg.Thresholds.CriticalDays)

	snap := types.NewSnapshot(report.Facts, status, severity, report.Facts.CollectedAt)
	snap.LowDisk = report.Facts.DiskBelow(cfg.Thresholds.MinDiskFreeBytes)
	snap.LongUptime = report.Facts.UptimeExceeds(cfg.Thresholds.LongUptime)
	snap.ProbeDuration = report.Duration
	return snap, report.Errors
}

func printStatusTable(snap types.Snapshot) {
	fmt.Printf("Host Update Status:\n")
	fmt.Printf("   Severity: %s\n", snap.Severity)
	fmt.Printf("   %s\n", snap.Summary())
	fmt.Printf("\n")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if snap.Facts.Hostname != "" {
		_, _ = fmt.Fprintf(w, "Host\t%s\n", snap.Facts.Hostname)
	}
	_, _ = fmt.Fprintf(w, "Installed version\t%s\n", snap.Facts.InstalledVersion)
	if snap.Status.Pending() {
		_, _ = fmt.Fprintf(w, "Required version\t%s\n", snap.Status.RequiredVersion)
		_, _ = fmt.Fprintf(w, "Deadline\t%s\n", snap.Status.Deadline.Format("2006-01-02"))
	}
	_, _ = fmt.Fprintf(w, "Update staged\t%s\n", yesNo(snap.Facts.UpdateStaged))
	if snap.Facts.DiskTotalBytes > 0 {
		_, _ = fmt.Fprintf(w, "Disk free\t%s of %s%s\n",
			humanize.IBytes(snap.Facts.DiskFreeBytes),
			humanize.IBytes(snap.Facts.DiskTotalBytes),
			lowDiskNote(snap.LowDisk))
	}
	if snap.Facts.Uptime > 0 {
		_, _ = fmt.Fprintf(w, "Uptime\t%s%s\n", formatUptime(snap.Facts.Uptime), longUptimeNote(snap.LongUptime))
	}
	_ = w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func lowDiskNote(low bool) string {
	if low {
		return " (low)"
	}
	return ""
}

func longUptimeNote(long bool) string {
	if long {
		return " (restart recommended)"
	}
	return ""
}

// formatUptime renders uptime at day/hour/minute granularity; seconds
// add nothing for a figure that grows for months
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
