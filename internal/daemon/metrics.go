package daemon

import (
	"context"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/vahti/telemetry"
	"github.com/yairfalse/vahti/types"
)

// metricsReady reports whether InitOTEL has installed the instruments.
// They are created all-or-nothing, so one check covers them.
func metricsReady() bool {
	return telemetry.RefreshesRun != nil
}

func recordRefreshMetrics(ctx context.Context, trigger string, snap *types.Snapshot, durationSeconds float64, probeErrors int, revision int64) {
	if !metricsReady() {
		return
	}

	telemetry.RefreshesRun.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("severity", snap.Severity),
	))
	telemetry.RefreshDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("trigger", trigger),
	))

	if probeErrors > 0 {
		telemetry.ProbeErrors.Add(ctx, int64(probeErrors))
	}

	upToDate := int64(0)
	if snap.Status.UpToDate {
		upToDate = 1
	}
	telemetry.HostUpToDate.Record(ctx, upToDate)

	if snap.Status.DaysRemaining != nil {
		telemetry.DaysRemaining.Record(ctx, int64(*snap.Status.DaysRemaining))
	}

	if revision > 0 {
		telemetry.SnapshotsStored.Add(ctx, 1)
		telemetry.HistoryRevision.Record(ctx, revision)
	}
}

func recordWatchTrigger(ctx context.Context, path string) {
	if !metricsReady() {
		return
	}
	telemetry.WatchTriggers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", filepath.Base(path)),
	))
}

func recordSnapshotDropped(ctx context.Context) {
	if !metricsReady() {
		return
	}
	telemetry.EventsDropped.Add(ctx, 1)
}

func recordPruneMetrics(ctx context.Context, snapshots int) {
	if !metricsReady() {
		return
	}
	telemetry.SnapshotsPruned.Add(ctx, int64(snapshots))
}
