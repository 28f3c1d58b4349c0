package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yairfalse/vahti/config"
	"github.com/yairfalse/vahti/internal/daemon"
	"github.com/yairfalse/vahti/telemetry"
)

var (
	daemonConfigPath string
	daemonInterval   time.Duration
	daemonAddr       string
	daemonNoServer   bool
	daemonHistoryDir string
	daemonOTLP       string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the continuous update watchdog",
	Long: `Run vahti in daemon mode for continuous update watching.

The daemon refreshes the host's update status on an interval and
whenever a watched file changes, persists every snapshot to the local
history store, and serves the current status over HTTP and WebSocket.

Features:
- Interval refresh plus file-change triggered refresh (fsnotify)
- Enforcement deadline evaluation with severity escalation
- Snapshot history with scheduled retention pruning
- Status API: /api/v1/status, /api/v1/history, /api/v1/watch (WebSocket)
- Prometheus metrics on /metrics, OTLP traces when a collector is up
- Config hot-reload on config file change
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  vahti daemon                                 # Run with defaults
  vahti daemon --config /etc/vahti/config.yaml # Explicit config file
  vahti daemon --interval 30s                  # Refresh every 30 seconds
  vahti daemon --addr 127.0.0.1:9750           # Status API address
  vahti daemon --no-server                     # Disable the status API`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	registerDaemonFlags(daemonCmd.Flags())
}

func registerDaemonFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&daemonConfigPath, "config", "c", "", "Config file path")
	flags.DurationVar(&daemonInterval, "interval", time.Minute, "Refresh interval")
	flags.StringVar(&daemonAddr, "addr", "127.0.0.1:9750", "Status API listen address")
	flags.BoolVar(&daemonNoServer, "no-server", false, "Disable the status API server")
	flags.StringVar(&daemonHistoryDir, "history-dir", "/var/lib/vahti", "Snapshot history directory")
	flags.StringVar(&daemonOTLP, "otlp-endpoint", "", "OTLP collector endpoint (e.g. localhost:4317)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig(cmd)
	if err != nil {
		return err
	}

	applyLogLevel(cfg.LogLevel)

	logger := telemetry.NewLogger("vahti")

	shutdown, err := telemetry.InitOTEL(cmd.Context(), telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTELEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	d, err := daemon.New(cfg, daemonConfigPath, logger)
	if err != nil {
		return fmt.Errorf("creating daemon: %w", err)
	}
	defer func() { _ = d.Close() }()

	fmt.Printf("🚀 Starting vahti daemon...\n")
	fmt.Printf("   Interval: %s\n", cfg.Interval)
	fmt.Printf("   Update log: %s\n", cfg.Probes.UpdateLog)
	fmt.Printf("   History: %s\n", cfg.History.Dir)
	if cfg.Server.Enabled {
		fmt.Printf("   Status API: http://%s/api/v1/status\n", cfg.Server.Addr)
	}
	fmt.Printf("\n✨ Daemon running (Ctrl+C to stop)...\n")

	if err := d.Run(cmd.Context()); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	fmt.Println("\n👋 Daemon stopped")
	return nil
}

// loadDaemonConfig reads the config file and lets explicitly passed
// flags override it
func loadDaemonConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(daemonConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Interval = daemonInterval
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = daemonAddr
	}
	if flags.Changed("no-server") {
		cfg.Server.Enabled = !daemonNoServer
	}
	if flags.Changed("history-dir") {
		cfg.History.Dir = daemonHistoryDir
	}
	if flags.Changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint = daemonOTLP
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyLogLevel maps the configured level onto the zerolog global,
// unless --debug already forced debug
func applyLogLevel(level string) {
	if debugLog || level == "" {
		return
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return
	}
	zerolog.SetGlobalLevel(parsed)
}
