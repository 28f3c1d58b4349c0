// Package daemon runs the refresh loop and everything attached to it:
// the status API, file-change triggers, scheduled retention pruning,
// and signal handling.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yairfalse/vahti/config"
	"github.com/yairfalse/vahti/facts"
	"github.com/yairfalse/vahti/history"
	"github.com/yairfalse/vahti/internal/api"
	"github.com/yairfalse/vahti/internal/events"
	"github.com/yairfalse/vahti/journal"
	"github.com/yairfalse/vahti/telemetry"
	"github.com/yairfalse/vahti/watch"
)

const (
	watchDebounce   = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Daemon owns the long-running pieces and coordinates refreshes
// between them.
type Daemon struct {
	configPath string
	logger     *telemetry.Logger

	cfgMu     sync.RWMutex
	cfg       *config.Config
	collector *facts.Collector

	store   *history.Store
	journal *journal.Journal
	broker  *events.Broker
	watcher *watch.Watcher
	pruner  *Pruner

	refreshMu    sync.Mutex
	lastSeverity string

	intervalCh chan time.Duration
}

// New wires a daemon from configuration. configPath is kept for hot
// reload and may be empty when running on pure defaults.
func New(cfg *config.Config, configPath string, logger *telemetry.Logger) (*Daemon, error) {
	store, err := history.Open(cfg.History.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	jnl, err := journal.Open(cfg.History.Dir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	d := &Daemon{
		configPath: configPath,
		logger:     logger,
		cfg:        cfg,
		collector:  facts.NewCollector(cfg.Probes),
		store:      store,
		journal:    jnl,
		intervalCh: make(chan time.Duration, 1),
	}
	d.broker = events.NewBroker(logger.Logger, func() { recordSnapshotDropped(context.Background()) })
	d.pruner = NewPruner(store, jnl, cfg.History, logger)

	watchPaths := []string{cfg.Probes.UpdateLog, cfg.Probes.VersionFile, cfg.Probes.StagedPath}
	if configPath != "" {
		watchPaths = append(watchPaths, configPath)
	}
	watcher, err := watch.New(watchPaths, watchDebounce, logger.Logger)
	if err != nil {
		logger.Warn().Err(err).Msg("file watching disabled")
	} else {
		d.watcher = watcher
	}

	return d, nil
}

// Close releases the daemon's stores. Call after Run has returned.
func (d *Daemon) Close() error {
	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	errJournal := d.journal.Close()
	errStore := d.store.Close()
	if errJournal != nil {
		return errJournal
	}
	return errStore
}

// Broker exposes the snapshot stream, used by the CLI when embedding
// the daemon.
func (d *Daemon) Broker() *events.Broker {
	return d.broker
}

// Run performs the initial refresh and then runs all actors until a
// signal arrives or the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if _, err := d.Refresh(ctx, TriggerStartup); err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}

	cfg, _ := d.currentConfig()

	var g run.Group

	{
		tickCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.runTicker(tickCtx)
		}, func(error) {
			cancel()
		})
	}

	if cfg.Server.Enabled {
		// The registry exists only once telemetry is initialized; a nil
		// Gatherer makes the API skip the /metrics route.
		var gatherer prometheus.Gatherer
		if telemetry.PrometheusRegistry != nil {
			gatherer = telemetry.PrometheusRegistry
		}
		app := api.NewApp(d.logger.Logger, d.broker, d.store, d, gatherer)
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           app.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Add(func() error {
			d.logger.Info().Str("addr", cfg.Server.Addr).Msg("status API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	if d.watcher != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			// A host without the probe directories runs on the
			// ticker alone.
			if err := d.watcher.Run(watchCtx, d.handleFileChange); err != nil {
				d.logger.Warn().Err(err).Msg("file watching disabled")
			}
			<-watchCtx.Done()
			return nil
		}, func(error) {
			cancel()
		})
	}

	{
		stopped := make(chan struct{})
		g.Add(func() error {
			if err := d.pruner.Start(ctx); err != nil {
				d.logger.Warn().Err(err).Msg("retention pruning disabled")
			}
			<-stopped
			return nil
		}, func(error) {
			d.pruner.Stop()
			close(stopped)
		})
	}

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err := g.Run()

	var sig run.SignalError
	if errors.As(err, &sig) {
		d.logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) runTicker(ctx context.Context) error {
	cfg, _ := d.currentConfig()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.Refresh(ctx, TriggerInterval); err != nil {
				d.logger.Error().Err(err).Msg("scheduled refresh failed")
			}
		case interval := <-d.intervalCh:
			ticker.Reset(interval)
			d.logger.Info().Dur("interval", interval).Msg("refresh interval updated")
		}
	}
}

// handleFileChange routes watcher triggers: the config file reloads
// configuration, everything else refreshes host status.
func (d *Daemon) handleFileChange(path string) {
	ctx := context.Background()
	recordWatchTrigger(ctx, path)

	if d.configPath != "" && path == filepath.Clean(d.configPath) {
		d.reloadConfig(ctx)
		return
	}

	d.logger.Info().Str("path", path).Msg("host state changed")
	if _, err := d.Refresh(ctx, TriggerWatch); err != nil {
		d.logger.Error().Err(err).Msg("triggered refresh failed")
	}
}

// reloadConfig applies an edited config file to the next refresh. A
// file that no longer parses keeps the running configuration.
func (d *Daemon) reloadConfig(ctx context.Context) {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		d.logger.Error().Err(err).Msg("config reload failed, keeping previous config")
		d.journalError(ctx, journal.EntryReloaded, "", d.configPath, err)
		return
	}

	d.cfgMu.Lock()
	previousInterval := d.cfg.Interval
	d.cfg = cfg
	d.collector = facts.NewCollector(cfg.Probes)
	d.cfgMu.Unlock()

	d.journalAppend(ctx, journal.EntryReloaded, "", cfg.Thresholds)
	d.logger.Info().
		Dur("interval", cfg.Interval).
		Int("critical_days", cfg.Thresholds.CriticalDays).
		Msg("configuration reloaded")

	if cfg.Interval != previousInterval {
		select {
		case d.intervalCh <- cfg.Interval:
		default:
		}
	}
}

func (d *Daemon) currentConfig() (*config.Config, *facts.Collector) {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg, d.collector
}
