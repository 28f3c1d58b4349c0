//go:build !linux && !darwin

package facts

import (
	"context"
	"fmt"
	"runtime"
)

func (s StatfsDisk) Disk(_ context.Context) (free, total uint64, err error) {
	return 0, 0, fmt.Errorf("disk stats not supported on %s", runtime.GOOS)
}
