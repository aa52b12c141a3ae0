// Package swapfile implements the atomic installation step: making a
// freshly built (data file, bucket directory) pair the live pair under
// a root.
package swapfile

import (
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// SwapFiles exchanges the names a and b via a three-rename dance: b is
// stashed under a ".tmp" name, a takes b's name, and the stashed file
// takes a's old name. It installs a as the live file at b while
// preserving b's prior contents under a, and is kept and tested in
// isolation even though merge completion itself uses the safer
// protocol below.
//
// The protocol is not crash-atomic: a failure between the first and
// second rename leaves b missing and "b.tmp" holding what used to live
// at b. Callers must tolerate that intermediate state.
func SwapFiles(a, b string) error {
	tmp := b + ".tmp"

	hadB := true
	if _, err := os.Stat(b); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("swapfile: statting %s: %w", b, err)
		}
		hadB = false
	}

	if hadB {
		if err := os.Rename(b, tmp); err != nil {
			return fmt.Errorf("swapfile: renaming %s to %s: %w", b, tmp, err)
		}
	}

	if err := os.Rename(a, b); err != nil {
		if hadB {
			_ = os.Rename(tmp, b) // best-effort restore
		}
		return fmt.Errorf("swapfile: renaming %s to %s: %w", a, b, err)
	}

	if hadB {
		if err := os.Rename(tmp, a); err != nil {
			return fmt.Errorf("swapfile: renaming %s to %s: %w", tmp, a, err)
		}
	}
	return nil
}

// Install makes (newData, newDir) the live (liveData, liveDir) pair
// using a write-new-then-rename protocol in place of the three-rename
// dance SwapFiles performs: each rename is a single atomic commit
// point, the data file first and the directory second, so a reader
// recovering after a crash between the two renames never observes a
// newer directory over an older data file.
//
// Each rename goes through github.com/natefinch/atomic.ReplaceFile,
// which removes the destination first where the platform's rename
// syscall can't overwrite it directly (Windows), falling back to a
// plain rename elsewhere.
func Install(newData, liveData, newDir, liveDir string) error {
	if err := atomic.ReplaceFile(newData, liveData); err != nil {
		return fmt.Errorf("swapfile: installing %s: %w", liveData, err)
	}
	if err := atomic.ReplaceFile(newDir, liveDir); err != nil {
		return fmt.Errorf("swapfile: installing %s: %w", liveDir, err)
	}
	return nil
}
