//go:build !linux

package stream

import "os"

// adviseSequential is a no-op outside Linux: POSIX_FADV_SEQUENTIAL has
// no portable equivalent, so platforms without it just skip the hint.
func adviseSequential(f *os.File, offset, size int64) {}
