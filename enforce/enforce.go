// Package enforce evaluates a host's update state against managed-update
// enforcement records written to the software update log.
//
// Evaluation is pure: callers hand in the installed version, the raw log
// text, and the current time, and get back a Status. Anything ambiguous in
// the log (missing markers, unparseable dates, truncated fields) degrades
// to "up to date" rather than an error, so a broken log never raises a
// false alarm.
package enforce

import "time"

// Record is a single enforcement directive recovered from the update log:
// install RequiredVersion by Deadline.
type Record struct {
	Deadline        time.Time `json:"deadline"`
	RequiredVersion string    `json:"required_version"`
}

// Status is the outcome of one evaluation. DaysRemaining and Deadline are
// nil when the log carries no active enforcement record.
type Status struct {
	UpToDate        bool       `json:"up_to_date"`
	DaysRemaining   *int       `json:"days_remaining,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	RequiredVersion string     `json:"required_version,omitempty"`
}

// Pending reports whether an enforcement record was in effect when the
// status was computed.
func (s Status) Pending() bool {
	return s.DaysRemaining != nil
}

// Overdue reports whether the enforcement deadline date has passed.
func (s Status) Overdue() bool {
	return s.DaysRemaining != nil && *s.DaysRemaining < 0
}

// Evaluate derives the update status for installedVersion from the update
// log text. With no well-formed enforcement record in the log the host is
// reported up to date and DaysRemaining stays nil. Otherwise UpToDate
// reflects whether the installed version meets the required one, and
// DaysRemaining counts whole calendar days from now until the deadline,
// going negative once the deadline date is behind us.
func Evaluate(installedVersion, logText string, now time.Time) Status {
	rec := ParseLatest(logText)
	if rec == nil {
		return Status{UpToDate: true}
	}

	days := daysBetween(now, rec.Deadline)
	deadline := rec.Deadline
	return Status{
		UpToDate:        CompareVersions(installedVersion, rec.RequiredVersion) >= 0,
		DaysRemaining:   &days,
		Deadline:        &deadline,
		RequiredVersion: rec.RequiredVersion,
	}
}

// daysBetween counts calendar days from now's date to deadline's date,
// ignoring the time of day on both sides. Dates are rebuilt at UTC
// midnight first so a DST shift between the two instants cannot skew the
// whole-day count.
func daysBetween(now, deadline time.Time) int {
	return int(civilDate(deadline).Sub(civilDate(now)) / (24 * time.Hour))
}

func civilDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
