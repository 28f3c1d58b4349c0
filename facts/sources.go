package facts

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FileVersion reads the installed version from a single-line file
type FileVersion struct {
	Path string
}

func (s FileVersion) Version(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read version file: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("version file %s is empty", s.Path)
	}
	return version, nil
}

// FileLog reads the update log. A log that does not exist yet is not an
// error: the updater simply has not written anything, so there is no
// enforcement to find.
type FileLog struct {
	Path string
}

func (s FileLog) LogText(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read update log: %w", err)
	}
	return string(data), nil
}

// ProcUptime reads host uptime from /proc/uptime
type ProcUptime struct {
	Path string
}

func (s ProcUptime) Uptime(_ context.Context) (time.Duration, error) {
	path := s.Path
	if path == "" {
		path = "/proc/uptime"
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is fixed or test-injected
	if err != nil {
		return 0, fmt.Errorf("failed to read uptime: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("uptime file %s is empty", path)
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse uptime %q: %w", fields[0], err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// PathStaged reports a staged update by the presence of its payload path
type PathStaged struct {
	Path string
}

func (s PathStaged) Staged(_ context.Context) (bool, error) {
	if s.Path == "" {
		return false, nil
	}
	_, err := os.Stat(s.Path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat staged path: %w", err)
	}
	return true, nil
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// StatfsDisk measures the filesystem holding Mount. The measurement
// itself lives in platform files.
type StatfsDisk struct {
	Mount string
}
