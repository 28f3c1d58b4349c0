package enforce

import (
	"strings"
	"time"
)

const (
	// deadlineLayout is the exact timestamp shape the updater writes:
	// no zone, no fractional seconds. Timestamps are read in local time.
	deadlineLayout = "2006-01-02T15:04:05"

	enforcementMark = "EnforcedInstallDate"
	deadlineField   = "EnforcedInstallDate:"
	versionField    = "VersionString:"
)

// ParseLatest scans log text for the most recent enforcement record.
//
// The log is processed line by line from the end; the last line mentioning
// an enforced install date decides the outcome on its own. If that line is
// malformed the result is nil even when earlier lines carry well-formed
// records, because the updater rewrites the enforcement state on every run
// and only the newest line reflects it.
func ParseLatest(text string) *Record {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.Contains(lines[i], enforcementMark) {
			continue
		}
		return parseLine(lines[i])
	}
	return nil
}

// parseLine extracts a Record from one log line, or nil when either field
// is missing or the deadline does not parse.
func parseLine(line string) *Record {
	rawDeadline, ok := deadlineValue(line)
	if !ok {
		return nil
	}
	version, ok := versionValue(line)
	if !ok {
		return nil
	}

	deadline, err := time.ParseInLocation(deadlineLayout, rawDeadline, time.Local)
	if err != nil {
		return nil
	}

	return &Record{Deadline: deadline, RequiredVersion: version}
}

// deadlineValue returns the text between "EnforcedInstallDate:" and the
// next field separator. A deadline with no closing separator is treated
// as truncated and rejected.
func deadlineValue(line string) (string, bool) {
	_, rest, found := strings.Cut(line, deadlineField)
	if !found {
		return "", false
	}
	value, _, found := strings.Cut(rest, "|")
	if !found {
		return "", false
	}
	return value, true
}

// versionValue returns the text between "VersionString:" and the next
// field separator, or the trimmed remainder of the line when the version
// is the final field.
func versionValue(line string) (string, bool) {
	_, rest, found := strings.Cut(line, versionField)
	if !found {
		return "", false
	}
	if value, _, cut := strings.Cut(rest, "|"); cut {
		return strings.TrimSpace(value), true
	}
	return strings.TrimSpace(rest), true
}
