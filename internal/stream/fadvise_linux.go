//go:build linux

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints the kernel that the given range of the open
// data file will be read sequentially, the same unix.Fadvise idiom
// grailbio-base reaches for (alongside unix.Mmap) instead of leaving
// readahead to chance. Best-effort: a failure here never aborts a
// stream.
func adviseSequential(f *os.File, offset, size int64) {
	_ = unix.Fadvise(int(f.Fd()), offset, size, unix.FADV_SEQUENTIAL)
}
