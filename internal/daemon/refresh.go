package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vahti/enforce"
	"github.com/yairfalse/vahti/journal"
	"github.com/yairfalse/vahti/telemetry"
	"github.com/yairfalse/vahti/types"
)

// Refresh triggers, named for the thing that asked.
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerWatch    = "watch"
	TriggerAPI      = "api"
)

type evaluatedEntry struct {
	Status   enforce.Status `json:"status"`
	Severity string         `json:"severity"`
	LowDisk  bool           `json:"low_disk"`
	Uptime   bool           `json:"long_uptime"`
}

type publishedEntry struct {
	Revision int64  `json:"revision"`
	Severity string `json:"severity"`
}

// Refresh runs one full pass: probe the host, evaluate enforcement,
// persist and publish the snapshot. Passes are serialized; concurrent
// triggers queue up rather than probing in parallel.
func (d *Daemon) Refresh(ctx context.Context, trigger string) (*types.Snapshot, error) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	ctx, span := telemetry.Tracer.Start(ctx, "daemon.refresh",
		trace.WithAttributes(attribute.String("refresh.trigger", trigger)))
	defer span.End()

	start := time.Now()
	d.logger.LogRefreshStart(ctx, trigger)

	cfg, collector := d.currentConfig()

	report := collector.Collect(ctx)
	for _, pe := range report.Errors {
		d.logger.LogProbeFailure(ctx, pe.Probe, pe.Err)
		d.journalError(ctx, journal.EntryFailed, "", pe.Probe, pe.Err)
	}
	d.journalAppend(ctx, journal.EntryObserved, "", report.Facts)

	status := enforce.Evaluate(report.Facts.InstalledVersion, report.UpdateLog, report.Facts.CollectedAt)
	severity := types.DeriveSeverity(status, cfg.Thresholds.CriticalDays)

	snap := types.NewSnapshot(report.Facts, status, severity, report.Facts.CollectedAt)
	snap.LowDisk = report.Facts.DiskBelow(cfg.Thresholds.MinDiskFreeBytes)
	snap.LongUptime = report.Facts.UptimeExceeds(cfg.Thresholds.LongUptime)
	snap.ProbeDuration = report.Duration

	d.journalAppend(ctx, journal.EntryEvaluated, snap.ID, evaluatedEntry{
		Status:   status,
		Severity: severity,
		LowDisk:  snap.LowDisk,
		Uptime:   snap.LongUptime,
	})

	if status.Pending() {
		days := int64(0)
		if status.DaysRemaining != nil {
			days = int64(*status.DaysRemaining)
		}
		telemetry.RecordEnforcementDetectedEvent(span,
			status.RequiredVersion, report.Facts.InstalledVersion, days, snap.Summary())
	}

	// Persistence failure degrades to in-memory status instead of
	// failing the refresh; the renderer still needs an answer.
	revision, err := d.store.Record(snap)
	if err != nil {
		d.logger.LogStoreError(ctx, "record", err)
		d.journalError(ctx, journal.EntryFailed, snap.ID, "history", err)
	} else {
		snap.Revision = revision
	}

	d.noteSeverityChange(ctx, span, &snap)

	d.broker.Publish(snap)
	d.journalAppend(ctx, journal.EntryPublished, snap.ID, publishedEntry{
		Revision: snap.Revision,
		Severity: severity,
	})

	duration := time.Since(start)
	recordRefreshMetrics(ctx, trigger, &snap, duration.Seconds(), len(report.Errors), revision)
	telemetry.RecordRefreshCompletedEvent(span, trigger, severity, status.UpToDate,
		int64(len(report.Errors)), duration.Seconds(), snap.Summary())
	d.logger.LogRefreshComplete(ctx, severity, status.UpToDate, float64(duration.Milliseconds()))

	return &snap, nil
}

// noteSeverityChange logs and journals transitions between severities.
// The first refresh after start establishes a baseline silently.
func (d *Daemon) noteSeverityChange(ctx context.Context, span trace.Span, snap *types.Snapshot) {
	previous := d.lastSeverity
	d.lastSeverity = snap.Severity

	if previous == "" || previous == snap.Severity {
		return
	}

	d.logger.WithContext(ctx).Info().
		Str("from", previous).
		Str("to", snap.Severity).
		Str("summary", snap.Summary()).
		Msg("severity changed")
	telemetry.RecordSeverityChangedEvent(span, previous, snap.Severity, snap.Summary())
}

func (d *Daemon) journalAppend(ctx context.Context, entryType journal.EntryType, snapshotID string, data interface{}) {
	if err := d.journal.Append(entryType, snapshotID, data); err != nil {
		d.logger.LogStoreError(ctx, "journal", err)
	}
}

func (d *Daemon) journalError(ctx context.Context, entryType journal.EntryType, snapshotID string, data interface{}, cause error) {
	if err := d.journal.AppendError(entryType, snapshotID, data, cause); err != nil {
		d.logger.LogStoreError(ctx, "journal", err)
	}
}
