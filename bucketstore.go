// Package bucketstore is the programmatic surface of the storage
// engine: a thin facade over internal/engine exposing Start, Put,
// Stream, Stats, and Close as the engine's only external operations.
// Query planning,
// ranking, and distributed fan-out are a different system's concern
// and are not part of this package.
package bucketstore

import (
	"time"

	"github.com/bucketstore/bucketstore/internal/engine"
)

// Config holds bucketstore's recognized configuration options. A zero
// Config falls back entirely to the documented defaults.
type Config struct {
	// MergeInterval is how long a background merge waits after the
	// previous one before running again (default 10s).
	MergeInterval time.Duration
	// CheckpointInterval is the periodic internal tick that flushes the
	// write buffer and considers launching a merge (default 100ms).
	CheckpointInterval time.Duration
	// RawfileBufferBytes sizes the buffered writer used when flushing a
	// rawfile (default 500 KiB).
	RawfileBufferBytes int
	// DataFileBufferBytes sizes the buffered writer used when a merge
	// rewrites the data file (default 2 MiB).
	DataFileBufferBytes int
	// MaxFrameSize bounds a single framed record; larger frames are
	// rejected as corrupt.
	MaxFrameSize int
	// Verbose enables one-line status output on checkpoint/merge
	// transitions.
	Verbose bool
}

func (c Config) toEngine() engine.Config {
	return engine.Config{
		MergeInterval:       c.MergeInterval,
		CheckpointInterval:  c.CheckpointInterval,
		RawfileBufferBytes:  c.RawfileBufferBytes,
		DataFileBufferBytes: c.DataFileBufferBytes,
		MaxFrameSize:        c.MaxFrameSize,
		Verbose:             c.Verbose,
	}
}

// Event is one result delivered to a Stream sink: a (value,
// props) pair, or the terminal end_of_stream marker with End set, both
// carrying the correlation token passed to Stream. Err is set on the
// terminal event when the data file's bucket region failed to frame or
// decode (corruption, per §7) - it is not an unknown-bucket signal,
// which is not an error and carries a nil Err.
type Event struct {
	Value       []byte
	Props       []byte
	Correlation any
	End         bool
	Err         error
}

// Sink receives Stream results, terminated by exactly one Event with
// End true.
type Sink func(Event)

// Stats reports the engine's pending work: buffered records not yet
// flushed, rawfiles awaiting the next merge, when the last merge
// completed, and whether one is currently running.
type Stats struct {
	PendingRawfiles int
	BufferedRecords int
	LastMergeTime   time.Time
	Merging         bool
}

// Store is a running bucketstore engine instance, returned by Start.
type Store struct {
	e *engine.Engine
}

// Start opens the engine rooted at root, creating root.data and
// root.buckets if they don't already exist and recovering any rawfiles
// orphaned by a crash mid-merge.
func Start(root string, cfg Config) (*Store, error) {
	e, err := engine.Start(root, cfg.toEngine())
	if err != nil {
		return nil, err
	}
	return &Store{e: e}, nil
}

// Put inserts (bucket, value, props) synchronously: the tuple is
// timestamped and appended to the write buffer, to be flushed and
// eventually merged into the data file.
func (s *Store) Put(bucket, value, props []byte) error {
	return s.e.Put(bucket, value, props)
}

// Stream asynchronously emits every value for bucket in the most
// recently installed data file, in the merge's sort order with adjacent
// duplicates removed, to sink - terminated by one Event with End set.
// Records still in the write buffer or in pending rawfiles are not
// emitted. An unknown bucket is not an
// error: it yields an immediate end-of-stream.
func (s *Store) Stream(bucket string, sink Sink, correlation any) error {
	return s.e.Stream(bucket, func(ev engine.Event) {
		sink(Event{Value: ev.Value, Props: ev.Props, Correlation: ev.Correlation, End: ev.End, Err: ev.Err})
	}, correlation)
}

// Stats returns a snapshot of the engine's pending work.
func (s *Store) Stats() (Stats, error) {
	st, err := s.e.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		PendingRawfiles: st.PendingRawfiles,
		BufferedRecords: st.BufferedRecords,
		LastMergeTime:   st.LastMergeTime,
		Merging:         st.Merging,
	}, nil
}

// Close stops the engine's background owner goroutine.
func (s *Store) Close() error {
	return s.e.Close()
}
