// Package extsort sorts the bucketstore record stream to disk and
// merges already-sorted files against a caller fold: sorting the
// pending rawfiles into one sorted file, and merging already-sorted
// files against a caller-supplied continuation.
//
// Sort is a thin wrapper around the vendored github.com/lanrat/extsort
// library, which already implements chunked spill-to-disk sorting of an
// arbitrary channel of records. MergeSorted (merge.go) is hand-rolled:
// extsort's public surface only sorts one unsorted channel, it has no
// entry point for merging N pre-sorted files against a caller-supplied
// continuation, which is exactly what the data-file/rawfile merge needs.
package extsort

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	lanratextsort "github.com/lanrat/extsort"

	"github.com/bucketstore/bucketstore/internal/record"
)

// sortItem adapts a framed payload to extsort.SortType.
type sortItem []byte

func (s sortItem) ToBytes() []byte { return []byte(s) }

func fromBytes(b []byte) lanratextsort.SortType {
	cp := make([]byte, len(b))
	copy(cp, b)
	return sortItem(cp)
}

// lessFunc is lexicographic comparison of raw payload bytes: sufficient
// for the merge builder's adjacency-based dedup, and it has the useful
// property that all records sharing a bucket prefix (and therefore the
// same encoded bucket field) sort contiguously, since Encode places
// the bucket first in the payload.
func lessFunc(a, b lanratextsort.SortType) bool {
	return bytes.Compare(a.(sortItem), b.(sortItem)) < 0
}

// Sort reads every framed record in inputs, sorts them all by payload
// bytes using github.com/lanrat/extsort, and writes the sorted, framed
// result to output. Used to produce <root>.rawmerged from the set of
// pending rawfiles before merging against the current data file.
func Sort(ctx context.Context, inputs []string, output string, maxFrameSize int) error {
	inputChan := make(chan lanratextsort.SortType)
	readErrChan := make(chan error, 1)

	go func() {
		defer close(inputChan)
		readErrChan <- feedFiles(ctx, inputs, inputChan, maxFrameSize)
	}()

	sorter, outChan, sortErrChan := lanratextsort.New(inputChan, fromBytes, lessFunc, nil)
	sorter.Sort(ctx)

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("extsort: creating %s: %w", output, err)
	}
	bw := bufio.NewWriterSize(out, 1<<20)

	var writeErr error
	for item := range outChan {
		if writeErr != nil {
			continue // drain the channel so the sorter's goroutines can exit
		}
		if err := record.WriteFrame(bw, item.ToBytes()); err != nil {
			writeErr = fmt.Errorf("extsort: writing sorted frame: %w", err)
		}
	}

	if err := <-sortErrChan; err != nil {
		out.Close()
		return fmt.Errorf("extsort: sorting: %w", err)
	}
	if err := <-readErrChan; err != nil {
		out.Close()
		return fmt.Errorf("extsort: reading inputs: %w", err)
	}
	if writeErr != nil {
		out.Close()
		return writeErr
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("extsort: flushing %s: %w", output, err)
	}
	return out.Close()
}

func feedFiles(ctx context.Context, inputs []string, ch chan<- lanratextsort.SortType, maxFrameSize int) error {
	for _, path := range inputs {
		if err := feedFile(ctx, path, ch, maxFrameSize); err != nil {
			return err
		}
	}
	return nil
}

func feedFile(ctx context.Context, path string, ch chan<- lanratextsort.SortType, maxFrameSize int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("extsort: opening %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64*1024)
	for {
		payload, err := record.Deframe(br, maxFrameSize)
		if err != nil {
			// A truncated trailing frame ends the rawfile, like a clean EOF.
			if err == io.EOF || errors.Is(err, record.ErrTruncated) {
				return nil
			}
			return fmt.Errorf("extsort: reading %s: %w", path, err)
		}
		select {
		case ch <- sortItem(payload):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
