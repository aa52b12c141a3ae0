// Package directory persists the bucket directory: the
// bucket -> descriptor map produced by a merge, serialized as a single
// blob at "<root>.buckets" or "<root>.buckets_merged".
//
// The blob format is a magic header followed by an lz4-compressed
// body, as one whole-file block rather than a sparse index of many
// independently-seekable blocks, since the directory here is read and
// written in its entirety on every merge.
package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/natefinch/atomic"
	"github.com/pierrec/lz4/v4"

	"github.com/bucketstore/bucketstore/internal/merge"
)

// Magic identifies a bucket directory blob.
const Magic = "BKDR"

// entry is the on-disk shape of one bucket's descriptor. Buckets are
// opaque bytes in the data model but travel as strings here since the
// blob round-trips through JSON; callers that need raw bytes recover
// them via []byte(entry.Bucket).
type entry struct {
	Bucket string `json:"bucket"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
	Count  int64  `json:"count"`
}

// Load reads the directory blob at path. A missing file is not an
// error: it returns an empty directory and persists it, so that a
// fresh root has a well-formed blob from the first read.
func Load(path string) (merge.Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			empty := make(merge.Directory)
			if saveErr := Save(path, empty); saveErr != nil {
				return nil, saveErr
			}
			return empty, nil
		}
		return nil, fmt.Errorf("directory: reading %s: %w", path, err)
	}
	return decode(data)
}

func decode(data []byte) (merge.Directory, error) {
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("directory: bad magic in blob (%d bytes)", len(data))
	}

	lr := lz4.NewReader(bytes.NewReader(data[len(Magic):]))
	body, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("directory: decompressing blob: %w", err)
	}

	var entries []entry
	if len(body) > 0 {
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("directory: parsing blob: %w", err)
		}
	}

	dir := make(merge.Directory, len(entries))
	for _, e := range entries {
		dir[e.Bucket] = merge.Descriptor{Offset: e.Offset, Size: e.Size, Count: e.Count}
	}
	return dir, nil
}

// Save serializes dir to path. The write goes through
// github.com/natefinch/atomic, which writes to a temp file and renames
// it into place, so a concurrent Load observes either the previous
// contents or the new ones in full, never a partial write.
func Save(path string, dir merge.Directory) error {
	entries := make([]entry, 0, len(dir))
	for bucket, desc := range dir {
		entries = append(entries, entry{Bucket: bucket, Offset: desc.Offset, Size: desc.Size, Count: desc.Count})
	}
	// Sorted iteration is not a correctness requirement (lookup is a map
	// hit either way) but keeps the blob's bytes - and therefore diffs
	// between successive merges - deterministic.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Bucket < entries[j].Bucket })

	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("directory: marshaling blob: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(Magic)
	lw := lz4.NewWriter(&buf)
	if _, err := lw.Write(body); err != nil {
		return fmt.Errorf("directory: compressing blob: %w", err)
	}
	if err := lw.Close(); err != nil {
		return fmt.Errorf("directory: closing compressor: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("directory: writing %s: %w", path, err)
	}
	return nil
}
