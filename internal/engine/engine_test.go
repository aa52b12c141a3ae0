package engine

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MergeInterval:      20 * time.Millisecond,
		CheckpointInterval: 5 * time.Millisecond,
	}
}

// collect drains an asynchronous Stream call into a slice of (value,
// props) pairs, blocking until the terminal End event arrives.
func collect(t *testing.T, e *Engine, bucket string) [][2]string {
	t.Helper()
	var (
		mu   sync.Mutex
		got  [][2]string
		done = make(chan struct{})
	)
	err := e.Stream(bucket, func(ev Event) {
		if ev.End {
			close(done)
			return
		}
		mu.Lock()
		got = append(got, [2]string{string(ev.Value), string(ev.Props)})
		mu.Unlock()
	}, 1)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for end-of-stream")
	}
	mu.Lock()
	defer mu.Unlock()
	return append([][2]string(nil), got...)
}

// waitForMerge blocks until a merge has completed strictly after since
// (state.lastMergeTime is already non-zero from Start, so IsZero alone
// can't detect "a merge happened" - it must be compared against a
// baseline captured before the work under test was submitted).
func waitForMerge(t *testing.T, e *Engine, since time.Time, wantMinPending int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := e.Stats()
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if !stats.Merging && stats.PendingRawfiles <= wantMinPending && stats.LastMergeTime.After(since) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for a merge after %v", since)
}

func TestEmptyLifecycleStreamIsImmediateEndOfStream(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	e, err := Start(root, testConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Close()

	var events []Event
	done := make(chan struct{})
	if err := e.Stream("bucket_a", func(ev Event) {
		events = append(events, ev)
		if ev.End {
			close(done)
		}
	}, 1); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	<-done

	if len(events) != 1 || !events[0].End || events[0].Correlation != 1 {
		t.Fatalf("expected exactly one End event with correlation 1, got %+v", events)
	}
}

func TestSinglePutReadAfterMerge(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	e, err := Start(root, testConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Close()

	since := time.Now()
	if err := e.Put([]byte("A"), []byte("v1"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	waitForMerge(t, e, since, 0)

	got := collect(t, e, "A")
	if len(got) != 1 || got[0][0] != "v1" {
		t.Fatalf("stream(A) = %v, want [[v1 ]]", got)
	}
}

func TestDedupAcrossRepeatedPuts(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	e, err := Start(root, testConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Close()

	since := time.Now()
	for i := 0; i < 3; i++ {
		if err := e.Put([]byte("A"), []byte("v1"), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	waitForMerge(t, e, since, 0)

	got := collect(t, e, "A")
	if len(got) != 1 {
		t.Fatalf("expected exactly one v1 after dedup, got %v", got)
	}
}

func TestTwoMergeSequenceAccumulates(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	e, err := Start(root, testConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Close()

	since := time.Now()
	for i := 0; i < 100; i++ {
		if err := e.Put([]byte("A"), []byte(strconv.Itoa(i)), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	waitForMerge(t, e, since, 0)

	since = time.Now()
	for i := 100; i < 150; i++ {
		if err := e.Put([]byte("A"), []byte(strconv.Itoa(i)), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	for i := 0; i < 50; i++ {
		if err := e.Put([]byte("B"), []byte(strconv.Itoa(i)), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	waitForMerge(t, e, since, 0)

	gotA := collect(t, e, "A")
	gotB := collect(t, e, "B")
	if len(gotA) != 150 {
		t.Errorf("bucket A has %d records, want 150", len(gotA))
	}
	if len(gotB) != 50 {
		t.Errorf("bucket B has %d records, want 50", len(gotB))
	}
}

// TestStreamReportsCorruptionError covers §7's corruption path: once a
// bucket's directory entry promises a byte range, a frame or decode
// failure inside that range must surface to the stream's caller rather
// than silently truncating the results.
func TestStreamReportsCorruptionError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	e, err := Start(root, testConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Close()

	since := time.Now()
	if err := e.Put([]byte("A"), []byte("v1"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	waitForMerge(t, e, since, 0)

	// Truncate the live data file mid-frame so the directory's promised
	// byte range no longer frames cleanly.
	dataPath := root + ".data"
	info, err := os.Stat(dataPath)
	if err != nil {
		t.Fatalf("stat data file: %v", err)
	}
	if err := os.Truncate(dataPath, info.Size()-1); err != nil {
		t.Fatalf("truncate data file: %v", err)
	}

	var (
		mu       sync.Mutex
		endEvent Event
		done     = make(chan struct{})
	)
	if err := e.Stream("A", func(ev Event) {
		if ev.End {
			mu.Lock()
			endEvent = ev
			mu.Unlock()
			close(done)
		}
	}, "corr"); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for end-of-stream")
	}

	mu.Lock()
	defer mu.Unlock()
	if endEvent.Err == nil {
		t.Fatalf("expected a corruption error on the terminal event, got nil")
	}
}
