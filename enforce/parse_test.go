package enforce

import (
	"testing"
	"time"
)

func TestParseLatest(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantRecord   bool
		wantDeadline time.Time
		wantVersion  string
	}{
		{
			name:         "well-formed line",
			text:         "2026-03-01 10:00:00 | updater | |EnforcedInstallDate:2026-03-13T12:00:00|VersionString:26.3|",
			wantRecord:   true,
			wantDeadline: time.Date(2026, time.March, 13, 12, 0, 0, 0, time.Local),
			wantVersion:  "26.3",
		},
		{
			name: "last matching line wins",
			text: "|EnforcedInstallDate:2026-01-01T00:00:00|VersionString:25.1|\n" +
				"progress: downloading\n" +
				"|EnforcedInstallDate:2026-03-13T12:00:00|VersionString:26.3|",
			wantRecord:   true,
			wantDeadline: time.Date(2026, time.March, 13, 12, 0, 0, 0, time.Local),
			wantVersion:  "26.3",
		},
		{
			name: "malformed last line suppresses earlier records",
			text: "|EnforcedInstallDate:2026-03-13T12:00:00|VersionString:26.3|\n" +
				"|EnforcedInstallDate:not-a-date|VersionString:26.4|",
			wantRecord: false,
		},
		{
			name:         "version string runs to end of line",
			text:         "|EnforcedInstallDate:2026-03-13T12:00:00|VersionString:26.3  ",
			wantRecord:   true,
			wantDeadline: time.Date(2026, time.March, 13, 12, 0, 0, 0, time.Local),
			wantVersion:  "26.3",
		},
		{
			name:       "missing version field",
			text:       "|EnforcedInstallDate:2026-03-13T12:00:00|",
			wantRecord: false,
		},
		{
			name:       "marker without field separator after date",
			text:       "|EnforcedInstallDate:2026-03-13T12:00:00 VersionString:26.3",
			wantRecord: false,
		},
		{
			name:       "unparseable date",
			text:       "|EnforcedInstallDate:2026-13-40T99:00:00|VersionString:26.3|",
			wantRecord: false,
		},
		{
			name:       "timezone suffix rejected",
			text:       "|EnforcedInstallDate:2026-03-13T12:00:00Z|VersionString:26.3|",
			wantRecord: false,
		},
		{
			name:       "marker mention without value",
			text:       "note: EnforcedInstallDate cleared by admin",
			wantRecord: false,
		},
		{
			name:       "no enforcement lines",
			text:       "2026-03-01 10:00:00 | updater | idle\n2026-03-01 11:00:00 | updater | check complete",
			wantRecord: false,
		},
		{
			name:       "empty text",
			text:       "",
			wantRecord: false,
		},
		{
			name: "windows line endings",
			text: "progress: downloading\r\n" +
				"|EnforcedInstallDate:2026-03-13T12:00:00|VersionString:26.3\r\n" +
				"progress: verifying\r\n",
			wantRecord:   true,
			wantDeadline: time.Date(2026, time.March, 13, 12, 0, 0, 0, time.Local),
			wantVersion:  "26.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ParseLatest(tt.text)
			if !tt.wantRecord {
				if rec != nil {
					t.Fatalf("ParseLatest() = %+v, want nil", rec)
				}
				return
			}
			if rec == nil {
				t.Fatal("ParseLatest() = nil, want record")
			}
			if !rec.Deadline.Equal(tt.wantDeadline) {
				t.Errorf("Deadline = %v, want %v", rec.Deadline, tt.wantDeadline)
			}
			if rec.RequiredVersion != tt.wantVersion {
				t.Errorf("RequiredVersion = %q, want %q", rec.RequiredVersion, tt.wantVersion)
			}
		})
	}
}

func TestParseLatestReadsLocalTime(t *testing.T) {
	rec := ParseLatest("|EnforcedInstallDate:2026-03-13T12:00:00|VersionString:26.3|")
	if rec == nil {
		t.Fatal("ParseLatest() = nil, want record")
	}
	if rec.Deadline.Location() != time.Local {
		t.Errorf("Deadline location = %v, want local", rec.Deadline.Location())
	}
}
