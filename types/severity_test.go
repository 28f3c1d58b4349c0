package types

import (
	"testing"

	"github.com/yairfalse/vahti/enforce"
)

func TestDeriveSeverity(t *testing.T) {
	tests := []struct {
		name         string
		status       enforce.Status
		criticalDays int
		want         string
	}{
		{
			name:         "up to date without record",
			status:       enforce.Status{UpToDate: true},
			criticalDays: 3,
			want:         SeverityOK,
		},
		{
			name: "up to date with active record",
			status: enforce.Status{
				UpToDate:      true,
				DaysRemaining: intPtr(5),
			},
			criticalDays: 3,
			want:         SeverityOK,
		},
		{
			name: "pending outside critical window",
			status: enforce.Status{
				UpToDate:      false,
				DaysRemaining: intPtr(10),
			},
			criticalDays: 3,
			want:         SeverityWarning,
		},
		{
			name: "pending at window edge",
			status: enforce.Status{
				UpToDate:      false,
				DaysRemaining: intPtr(3),
			},
			criticalDays: 3,
			want:         SeverityCritical,
		},
		{
			name: "pending due today",
			status: enforce.Status{
				UpToDate:      false,
				DaysRemaining: intPtr(0),
			},
			criticalDays: 3,
			want:         SeverityCritical,
		},
		{
			name: "overdue",
			status: enforce.Status{
				UpToDate:      false,
				DaysRemaining: intPtr(-4),
			},
			criticalDays: 3,
			want:         SeverityCritical,
		},
		{
			name: "zero critical window still escalates overdue",
			status: enforce.Status{
				UpToDate:      false,
				DaysRemaining: intPtr(-1),
			},
			criticalDays: 0,
			want:         SeverityCritical,
		},
		{
			name: "zero critical window keeps future deadline at warning",
			status: enforce.Status{
				UpToDate:      false,
				DaysRemaining: intPtr(1),
			},
			criticalDays: 0,
			want:         SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveSeverity(tt.status, tt.criticalDays); got != tt.want {
				t.Errorf("DeriveSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func intPtr(v int) *int { return &v }
