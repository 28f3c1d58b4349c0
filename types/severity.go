package types

import "github.com/yairfalse/vahti/enforce"

// Severity grades how loudly a snapshot should be surfaced
const (
	SeverityOK       = "ok"       // no update pending, nothing to do
	SeverityWarning  = "warning"  // update pending, deadline still comfortably ahead
	SeverityCritical = "critical" // deadline within the critical window or already passed
)

// DeriveSeverity maps an evaluation result onto a severity level.
// criticalDays is the size of the window before the deadline in which a
// pending update escalates from warning to critical; overdue hosts are
// always critical.
func DeriveSeverity(status enforce.Status, criticalDays int) string {
	if status.UpToDate {
		return SeverityOK
	}
	if status.DaysRemaining == nil {
		return SeverityOK
	}
	if *status.DaysRemaining <= criticalDays {
		return SeverityCritical
	}
	return SeverityWarning
}
