package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yairfalse/vahti/enforce"
)

// Snapshot is the full picture of the host at one refresh: what was
// observed, what the evaluation concluded, and how urgent it is.
// Revision is assigned by the history store when the snapshot is recorded.
type Snapshot struct {
	ID            string         `json:"id"`
	Revision      int64          `json:"revision,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Facts         Facts          `json:"facts"`
	Status        enforce.Status `json:"status"`
	Severity      string         `json:"severity"`
	LowDisk       bool           `json:"low_disk,omitempty"`
	LongUptime    bool           `json:"long_uptime,omitempty"`
	ProbeDuration time.Duration  `json:"probe_duration,omitempty"`
}

// NewSnapshot assembles a snapshot from one refresh's observations and
// evaluation result
func NewSnapshot(facts Facts, status enforce.Status, severity string, at time.Time) Snapshot {
	return Snapshot{
		ID:        uuid.NewString(),
		Timestamp: at,
		Facts:     facts,
		Status:    status,
		Severity:  severity,
	}
}

// Validate ensures the snapshot carries the fields every consumer relies on
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("snapshot ID cannot be empty")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot timestamp cannot be zero")
	}
	if s.Severity == "" {
		return fmt.Errorf("snapshot severity cannot be empty")
	}
	return nil
}

// Summary renders the one-line status text shown to operators
func (s *Snapshot) Summary() string {
	if s.Status.UpToDate {
		return "Up to date"
	}
	days := *s.Status.DaysRemaining
	switch {
	case days < 0:
		return fmt.Sprintf("Update to %s overdue by %s", s.Status.RequiredVersion, formatDays(-days))
	case days == 0:
		return fmt.Sprintf("Update to %s due today", s.Status.RequiredVersion)
	default:
		return fmt.Sprintf("Update to %s due in %s", s.Status.RequiredVersion, formatDays(days))
	}
}

func formatDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
