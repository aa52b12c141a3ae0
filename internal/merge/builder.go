// Package merge implements the merge/index builder: the
// streaming fold that consumes the merged sorted record stream, rewrites
// it into a new data file in bucket-contiguous order, and builds the
// bucket directory alongside it, collapsing adjacent duplicates.
//
// Builder satisfies internal/extsort's Fold interface, so
// extsort.MergeSorted can drive it directly with no intermediate
// buffering of the whole stream.
package merge

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bucketstore/bucketstore/internal/record"
)

// Descriptor locates one bucket's contiguous region in the data file.
type Descriptor struct {
	Offset int64
	Size   int64
	Count  int64
}

// Directory is the in-memory bucket -> descriptor map built by a merge.
type Directory map[string]Descriptor

// Builder is the merge fold state (pos, lastBucket, lastValue,
// currentDescriptor, directory), threaded explicitly through
// Accept/Finish instead of returning a fresh continuation per call.
type Builder struct {
	w    io.Writer
	pos  int64
	have bool

	lastBucket []byte
	lastValue  []byte
	current    Descriptor

	dir Directory
}

// NewBuilder returns a Builder that writes the rewritten data file to w.
func NewBuilder(w io.Writer) *Builder {
	return &Builder{dir: make(Directory), w: w}
}

// Accept processes one payload from the merged sorted stream per the
// state transition here: adjacent (bucket, value) duplicates are
// dropped, records in the running bucket extend its descriptor, and a
// bucket change commits the previous descriptor and starts a new one.
func (b *Builder) Accept(payload []byte) error {
	bucket, value, err := record.BucketValue(payload)
	if err != nil {
		return fmt.Errorf("merge: decoding record: %w", err)
	}

	if b.have && bytes.Equal(bucket, b.lastBucket) && bytes.Equal(value, b.lastValue) {
		return nil // adjacent duplicate: drop, pos unchanged
	}

	framed := record.Frame(payload)
	sameBucket := b.have && bytes.Equal(bucket, b.lastBucket)

	if !sameBucket && b.have {
		// Bucket boundary: commit the descriptor we were building.
		b.dir[string(b.lastBucket)] = b.current
	}

	if _, err := b.w.Write(framed); err != nil {
		return fmt.Errorf("merge: writing frame: %w", err)
	}

	if sameBucket {
		b.current.Size += int64(len(framed))
		b.current.Count++
	} else {
		b.current = Descriptor{Offset: b.pos, Size: int64(len(framed)), Count: 1}
	}

	b.pos += int64(len(framed))
	b.lastBucket = bucket
	b.lastValue = value
	b.have = true
	return nil
}

// Finish commits the final bucket's descriptor, if any record was seen.
// Called once at end-of-stream; safe to call on an empty stream, which
// commits nothing and leaves an empty Directory.
func (b *Builder) Finish() error {
	if b.have {
		b.dir[string(b.lastBucket)] = b.current
	}
	return nil
}

// Directory returns the built bucket directory. Only meaningful after
// Finish has been called.
func (b *Builder) Directory() Directory {
	return b.dir
}
