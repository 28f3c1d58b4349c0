package types

import "time"

// Facts holds the raw host observations gathered during one refresh.
// ProbeErrors carries one line per failed probe; the corresponding fields
// hold their zero or placeholder values.
type Facts struct {
	Hostname         string        `json:"hostname,omitempty"`
	InstalledVersion string        `json:"installed_version"`
	Uptime           time.Duration `json:"uptime"`
	DiskMount        string        `json:"disk_mount,omitempty"`
	DiskFreeBytes    uint64        `json:"disk_free_bytes"`
	DiskTotalBytes   uint64        `json:"disk_total_bytes"`
	UpdateStaged     bool          `json:"update_staged"`
	CollectedAt      time.Time     `json:"collected_at"`
	ProbeErrors      []string      `json:"probe_errors,omitempty"`
}

// DiskBelow checks if free disk space is under the given floor. Facts
// without a disk measurement never trigger it.
func (f Facts) DiskBelow(minFreeBytes uint64) bool {
	if minFreeBytes == 0 || f.DiskTotalBytes == 0 {
		return false
	}
	return f.DiskFreeBytes < minFreeBytes
}

// UptimeExceeds checks if the host has been up longer than the given limit
func (f Facts) UptimeExceeds(limit time.Duration) bool {
	if limit <= 0 {
		return false
	}
	return f.Uptime > limit
}
