//go:build linux || darwin

package facts

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

func (s StatfsDisk) Disk(_ context.Context) (free, total uint64, err error) {
	mount := s.Mount
	if mount == "" {
		mount = "/"
	}
	var st unix.Statfs_t
	if err := unix.Statfs(mount, &st); err != nil {
		return 0, 0, fmt.Errorf("failed to statfs %s: %w", mount, err)
	}
	blockSize := uint64(st.Bsize)
	return st.Bavail * blockSize, st.Blocks * blockSize, nil
}
