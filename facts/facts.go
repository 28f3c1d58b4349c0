// Package facts gathers the raw host observations each refresh feeds into
// evaluation: installed version, update log text, uptime, disk headroom,
// and whether an update sits staged for install.
package facts

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yairfalse/vahti/config"
	"github.com/yairfalse/vahti/types"
)

// UnknownVersion stands in for the installed version when the version
// file cannot be read. It compares older than every real version, so an
// unreadable host shows as pending rather than silently healthy.
const UnknownVersion = "0"

// VersionSource reads the installed software version
type VersionSource interface {
	Version(ctx context.Context) (string, error)
}

// LogSource reads the software update log
type LogSource interface {
	LogText(ctx context.Context) (string, error)
}

// UptimeSource reads how long the host has been up
type UptimeSource interface {
	Uptime(ctx context.Context) (time.Duration, error)
}

// DiskSource reads free and total bytes for the watched mount
type DiskSource interface {
	Disk(ctx context.Context) (free, total uint64, err error)
}

// StagedSource reports whether an update payload is staged on disk
type StagedSource interface {
	Staged(ctx context.Context) (bool, error)
}

// Clock supplies the current time, swapped out in tests
type Clock interface {
	Now() time.Time
}

// ProbeError ties a probe failure to the probe that produced it
type ProbeError struct {
	Probe string
	Err   error
}

// Report bundles everything one collection pass observed. UpdateLog is
// carried separately from Facts because only its evaluation result is
// persisted, never the raw text. Duration is wall time for the whole pass.
type Report struct {
	Facts     types.Facts
	UpdateLog string
	Errors    []ProbeError
	Duration  time.Duration
}

// Collector runs all probes for one refresh. Mount names the path the
// disk source measures and is recorded on the facts as-is.
type Collector struct {
	Version VersionSource
	Log     LogSource
	Uptime  UptimeSource
	Disk    DiskSource
	Staged  StagedSource
	Clock   Clock
	Mount   string
}

// NewCollector builds a collector reading the locations named in probes
func NewCollector(probes config.Probes) *Collector {
	return &Collector{
		Version: FileVersion{Path: probes.VersionFile},
		Log:     FileLog{Path: probes.UpdateLog},
		Uptime:  ProcUptime{},
		Disk:    StatfsDisk{Mount: probes.DiskMount},
		Staged:  PathStaged{Path: probes.StagedPath},
		Clock:   SystemClock{},
		Mount:   probes.DiskMount,
	}
}

// Collect runs every probe and assembles a report. Probe failures never
// abort the pass; each failed probe leaves its zero value in the facts
// and an entry in Errors, mirrored as text on the facts themselves.
func (c *Collector) Collect(ctx context.Context) Report {
	start := time.Now()

	var report Report
	report.Facts.CollectedAt = c.Clock.Now()
	report.Facts.DiskMount = c.Mount

	hostname, err := os.Hostname()
	if err != nil {
		report.Errors = append(report.Errors, ProbeError{Probe: "hostname", Err: err})
	}
	report.Facts.Hostname = hostname

	version, err := c.Version.Version(ctx)
	if err != nil {
		report.Errors = append(report.Errors, ProbeError{Probe: "version", Err: err})
		version = UnknownVersion
	}
	report.Facts.InstalledVersion = version

	logText, err := c.Log.LogText(ctx)
	if err != nil {
		report.Errors = append(report.Errors, ProbeError{Probe: "update_log", Err: err})
	}
	report.UpdateLog = logText

	uptime, err := c.Uptime.Uptime(ctx)
	if err != nil {
		report.Errors = append(report.Errors, ProbeError{Probe: "uptime", Err: err})
	}
	report.Facts.Uptime = uptime

	free, total, err := c.Disk.Disk(ctx)
	if err != nil {
		report.Errors = append(report.Errors, ProbeError{Probe: "disk", Err: err})
	}
	report.Facts.DiskFreeBytes = free
	report.Facts.DiskTotalBytes = total

	staged, err := c.Staged.Staged(ctx)
	if err != nil {
		report.Errors = append(report.Errors, ProbeError{Probe: "staged", Err: err})
	}
	report.Facts.UpdateStaged = staged

	for _, pe := range report.Errors {
		report.Facts.ProbeErrors = append(report.Facts.ProbeErrors, fmt.Sprintf("%s: %v", pe.Probe, pe.Err))
	}
	report.Duration = time.Since(start)

	return report
}
