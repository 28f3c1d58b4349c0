package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vahti/config"
	"github.com/yairfalse/vahti/telemetry"
)

const deadlineLayout = "2006-01-02T15:04:05"

func enforcementLine(deadline time.Time, version string) string {
	return fmt.Sprintf("|EnforcedInstallDate:%s|VersionString:%s|\n", deadline.Format(deadlineLayout), version)
}

type testHost struct {
	cfg        *config.Config
	versionPth string
	logPath    string
	stagedPath string
}

// newTestHost lays out a fake host: version file, update log with an
// enforcement record ten days out, no staged payload.
func newTestHost(t *testing.T) *testHost {
	t.Helper()

	probeDir := t.TempDir()
	h := &testHost{
		versionPth: filepath.Join(probeDir, "version"),
		logPath:    filepath.Join(probeDir, "updated.log"),
		stagedPath: filepath.Join(probeDir, "staged"),
	}

	require.NoError(t, os.WriteFile(h.versionPth, []byte("26.2\n"), 0o644))
	deadline := time.Now().Add(10 * 24 * time.Hour)
	require.NoError(t, os.WriteFile(h.logPath, []byte(enforcementLine(deadline, "26.3")), 0o644))

	cfg := config.Default()
	cfg.Interval = time.Hour
	cfg.Probes.VersionFile = h.versionPth
	cfg.Probes.UpdateLog = h.logPath
	cfg.Probes.StagedPath = h.stagedPath
	cfg.Probes.DiskMount = "/"
	cfg.Server.Enabled = false
	cfg.History.Dir = t.TempDir()
	h.cfg = cfg

	return h
}

func testLogger() *telemetry.Logger {
	return &telemetry.Logger{Logger: zerolog.Nop()}
}

func newTestDaemon(t *testing.T, h *testHost) *Daemon {
	t.Helper()
	d, err := New(h.cfg, "", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestNew(t *testing.T) {
	h := newTestHost(t)
	d := newTestDaemon(t, h)

	assert.NotNil(t, d.store)
	assert.NotNil(t, d.journal)
	assert.NotNil(t, d.broker)
	assert.NotNil(t, d.pruner)
	assert.NotNil(t, d.watcher)
	assert.NotNil(t, d.collector)
}

func TestDaemon_Refresh(t *testing.T) {
	h := newTestHost(t)
	d := newTestDaemon(t, h)

	snap, err := d.Refresh(context.Background(), TriggerStartup)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "26.2", snap.Facts.InstalledVersion)
	assert.False(t, snap.Status.UpToDate)
	assert.True(t, snap.Status.Pending())
	assert.Equal(t, "26.3", snap.Status.RequiredVersion)
	assert.Equal(t, "warning", snap.Severity)
	assert.Equal(t, int64(1), snap.Revision)

	stored, err := d.store.Latest()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, snap.ID, stored.ID)

	published := d.broker.Latest()
	require.NotNil(t, published)
	assert.Equal(t, snap.ID, published.ID)
}

func TestDaemon_RefreshUpToDate(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, os.WriteFile(h.versionPth, []byte("26.3\n"), 0o644))

	d := newTestDaemon(t, h)

	snap, err := d.Refresh(context.Background(), TriggerInterval)
	require.NoError(t, err)

	assert.True(t, snap.Status.UpToDate)
	assert.Equal(t, "ok", snap.Severity)
	require.NotNil(t, snap.Status.DaysRemaining)
	assert.Greater(t, *snap.Status.DaysRemaining, 0)
}

func TestDaemon_RefreshSurvivesProbeFailure(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, os.Remove(h.versionPth))

	d := newTestDaemon(t, h)

	snap, err := d.Refresh(context.Background(), TriggerStartup)
	require.NoError(t, err)

	// Unreadable version degrades to the all-zero placeholder, which
	// always compares behind the required version.
	assert.Equal(t, "0", snap.Facts.InstalledVersion)
	assert.False(t, snap.Status.UpToDate)
}

func TestDaemon_RefreshAssignsRevisions(t *testing.T) {
	h := newTestHost(t)
	d := newTestDaemon(t, h)

	ctx := context.Background()
	first, err := d.Refresh(ctx, TriggerStartup)
	require.NoError(t, err)
	second, err := d.Refresh(ctx, TriggerInterval)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Revision)
	assert.Equal(t, int64(2), second.Revision)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDaemon_Run_StartsAndStops(t *testing.T) {
	h := newTestHost(t)
	d := newTestDaemon(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	select {
	case err := <-errCh:
		t.Fatalf("daemon exited early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	stored, err := d.store.Latest()
	require.NoError(t, err)
	require.NotNil(t, stored, "initial refresh should have recorded a snapshot")
}

func TestDaemon_HandleFileChange_Refreshes(t *testing.T) {
	h := newTestHost(t)
	d := newTestDaemon(t, h)

	ctx := context.Background()
	_, err := d.Refresh(ctx, TriggerStartup)
	require.NoError(t, err)

	d.handleFileChange(h.logPath)

	assert.Equal(t, int64(2), d.store.CurrentRevision())
}

func TestDaemon_HandleFileChange_ReloadsConfig(t *testing.T) {
	h := newTestHost(t)
	configPath := filepath.Join(t.TempDir(), "vahti.yaml")
	writeConfig := func(criticalDays int, interval string) {
		content := fmt.Sprintf(
			"interval: %s\nthresholds:\n  critical_days: %d\nprobes:\n  version_file: %s\n  update_log: %s\nhistory:\n  dir: %s\nserver:\n  enabled: false\n",
			interval, criticalDays, h.versionPth, h.logPath, h.cfg.History.Dir,
		)
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	}
	writeConfig(3, "1h")

	d, err := New(h.cfg, configPath, testLogger())
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	writeConfig(10, "30m")
	d.handleFileChange(configPath)

	cfg, _ := d.currentConfig()
	assert.Equal(t, 10, cfg.Thresholds.CriticalDays)
	assert.Equal(t, 30*time.Minute, cfg.Interval)

	select {
	case interval := <-d.intervalCh:
		assert.Equal(t, 30*time.Minute, interval)
	default:
		t.Error("interval change was not signalled to the ticker")
	}
}

func TestDaemon_ReloadConfig_KeepsPreviousOnError(t *testing.T) {
	h := newTestHost(t)
	configPath := filepath.Join(t.TempDir(), "vahti.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("interval: [broken\n"), 0o644))

	d, err := New(h.cfg, configPath, testLogger())
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	before, _ := d.currentConfig()
	d.reloadConfig(context.Background())
	after, _ := d.currentConfig()

	assert.Equal(t, before, after)
}

func TestDaemon_SeverityTransition(t *testing.T) {
	h := newTestHost(t)
	d := newTestDaemon(t, h)

	ctx := context.Background()
	_, err := d.Refresh(ctx, TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, "warning", d.lastSeverity)

	require.NoError(t, os.WriteFile(h.versionPth, []byte("26.3\n"), 0o644))
	_, err = d.Refresh(ctx, TriggerWatch)
	require.NoError(t, err)
	assert.Equal(t, "ok", d.lastSeverity)
}

func TestMetricRecordersNoopWithoutInit(t *testing.T) {
	ctx := context.Background()
	snap, err := newTestDaemon(t, newTestHost(t)).Refresh(ctx, TriggerStartup)
	require.NoError(t, err)

	// Instruments are nil until InitOTEL runs; recording must not panic.
	recordRefreshMetrics(ctx, TriggerInterval, snap, 0.1, 1, 1)
	recordWatchTrigger(ctx, "/var/log/updated/updated.log")
	recordSnapshotDropped(ctx)
	recordPruneMetrics(ctx, 3)
}
