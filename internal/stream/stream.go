// Package stream implements the reader/streamer: given a bucket's
// descriptor, it positional-reads exactly that byte range out of the
// live data file, frames and decodes each record, drops adjacent
// value-duplicates, and hands (value, props) pairs to a caller-supplied
// emit function.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bucketstore/bucketstore/internal/merge"
	"github.com/bucketstore/bucketstore/internal/record"
)

// ErrCorrupt wraps any framing or decode failure encountered while a
// descriptor claims a byte range holds valid records - unlike the
// merge path, where a truncated trailing frame is just end-of-stream,
// here the directory has already promised this range is whole.
var ErrCorrupt = errors.New("stream: corrupt data file region")

// Emit receives one deduplicated (value, props) pair. Returning a
// non-nil error aborts the stream early and propagates out of Bucket.
type Emit func(value, props []byte) error

// Bucket reads the descriptor's byte range out of dataPath, in file
// order, emitting one event per value with adjacent duplicates removed.
// A zero-size descriptor (an absent bucket) emits nothing.
func Bucket(dataPath string, desc merge.Descriptor, maxFrameSize int, emit Emit) error {
	if desc.Size == 0 {
		return nil
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return fmt.Errorf("stream: opening %s: %w", dataPath, err)
	}
	defer f.Close()

	adviseSequential(f, desc.Offset, desc.Size)

	if _, err := f.Seek(desc.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("stream: seeking %s: %w", dataPath, err)
	}

	r := bufio.NewReader(io.LimitReader(f, desc.Size))

	var lastValue []byte
	haveLast := false
	var count int64

	for {
		payload, err := record.Deframe(r, maxFrameSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		rec, err := record.Decode(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		count++

		if haveLast && bytes.Equal(rec.Value, lastValue) {
			continue
		}
		lastValue = append(lastValue[:0], rec.Value...)
		haveLast = true

		if err := emit(rec.Value, rec.Props); err != nil {
			return err
		}
	}

	if count != desc.Count {
		return fmt.Errorf("%w: framing yielded %d records, directory says %d", ErrCorrupt, count, desc.Count)
	}
	return nil
}
