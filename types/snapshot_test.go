package types

import (
	"testing"
	"time"

	"github.com/yairfalse/vahti/enforce"
)

func TestNewSnapshot(t *testing.T) {
	at := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	facts := Facts{InstalledVersion: "26.2", CollectedAt: at}
	status := enforce.Status{UpToDate: false, DaysRemaining: intPtr(3), RequiredVersion: "26.3"}

	snap := NewSnapshot(facts, status, SeverityCritical, at)

	if snap.ID == "" {
		t.Error("NewSnapshot() left ID empty")
	}
	if snap.Revision != 0 {
		t.Errorf("Revision = %d, want 0 before recording", snap.Revision)
	}
	if !snap.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", snap.Timestamp, at)
	}
	if snap.Severity != SeverityCritical {
		t.Errorf("Severity = %v, want %v", snap.Severity, SeverityCritical)
	}

	other := NewSnapshot(facts, status, SeverityCritical, at)
	if other.ID == snap.ID {
		t.Error("NewSnapshot() reused snapshot ID")
	}
}

func TestSnapshot_Validate(t *testing.T) {
	at := time.Now()

	tests := []struct {
		name     string
		snapshot Snapshot
		wantErr  bool
	}{
		{
			name:     "valid snapshot",
			snapshot: Snapshot{ID: "abc", Timestamp: at, Severity: SeverityOK},
			wantErr:  false,
		},
		{
			name:     "missing ID",
			snapshot: Snapshot{Timestamp: at, Severity: SeverityOK},
			wantErr:  true,
		},
		{
			name:     "missing timestamp",
			snapshot: Snapshot{ID: "abc", Severity: SeverityOK},
			wantErr:  true,
		},
		{
			name:     "missing severity",
			snapshot: Snapshot{ID: "abc", Timestamp: at},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snapshot.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshot_Summary(t *testing.T) {
	tests := []struct {
		name   string
		status enforce.Status
		want   string
	}{
		{
			name:   "up to date",
			status: enforce.Status{UpToDate: true},
			want:   "Up to date",
		},
		{
			name: "due in several days",
			status: enforce.Status{
				UpToDate:        false,
				DaysRemaining:   intPtr(3),
				RequiredVersion: "26.3",
			},
			want: "Update to 26.3 due in 3 days",
		},
		{
			name: "due in one day",
			status: enforce.Status{
				UpToDate:        false,
				DaysRemaining:   intPtr(1),
				RequiredVersion: "26.3",
			},
			want: "Update to 26.3 due in 1 day",
		},
		{
			name: "due today",
			status: enforce.Status{
				UpToDate:        false,
				DaysRemaining:   intPtr(0),
				RequiredVersion: "26.3",
			},
			want: "Update to 26.3 due today",
		},
		{
			name: "overdue",
			status: enforce.Status{
				UpToDate:        false,
				DaysRemaining:   intPtr(-2),
				RequiredVersion: "26.3",
			},
			want: "Update to 26.3 overdue by 2 days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{Status: tt.status}
			if got := snap.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFacts_Thresholds(t *testing.T) {
	facts := Facts{
		DiskFreeBytes:  5 << 30,
		DiskTotalBytes: 100 << 30,
		Uptime:         40 * 24 * time.Hour,
	}

	if !facts.DiskBelow(10 << 30) {
		t.Error("DiskBelow() = false with 5GiB free against 10GiB floor")
	}
	if facts.DiskBelow(1 << 30) {
		t.Error("DiskBelow() = true with 5GiB free against 1GiB floor")
	}
	if facts.DiskBelow(0) {
		t.Error("DiskBelow() = true with disabled floor")
	}
	unmeasured := Facts{}
	if unmeasured.DiskBelow(10 << 30) {
		t.Error("DiskBelow() = true without a disk measurement")
	}

	if !facts.UptimeExceeds(30 * 24 * time.Hour) {
		t.Error("UptimeExceeds() = false with 40d uptime against 30d limit")
	}
	if facts.UptimeExceeds(60 * 24 * time.Hour) {
		t.Error("UptimeExceeds() = true with 40d uptime against 60d limit")
	}
	if facts.UptimeExceeds(0) {
		t.Error("UptimeExceeds() = true with disabled limit")
	}
}
