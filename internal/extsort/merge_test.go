package extsort

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bucketstore/bucketstore/internal/record"
)

// captureFold is a Fold that just records every payload it sees, in the
// order MergeSorted delivers them, plus whether Finish was called.
type captureFold struct {
	payloads [][]byte
	finished bool
}

func (f *captureFold) Accept(payload []byte) error {
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return nil
}

func (f *captureFold) Finish() error {
	f.finished = true
	return nil
}

// writeSortedFile writes payloads, already in the caller's intended
// order, as a framed file - the shape MergeSorted expects each input to
// already be in.
func writeSortedFile(t *testing.T, dir string, name string, payloads []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	for _, p := range payloads {
		if err := record.WriteFrame(f, []byte(p)); err != nil {
			t.Fatalf("writing frame: %v", err)
		}
	}
	return path
}

func TestMergeSortedInterleavesByPayloadOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeSortedFile(t, dir, "a", []string{"aaa", "ccc", "eee"})
	b := writeSortedFile(t, dir, "b", []string{"bbb", "ddd", "fff"})

	var fold captureFold
	if err := MergeSorted([]string{a, b}, 0, &fold); err != nil {
		t.Fatalf("MergeSorted failed: %v", err)
	}
	if !fold.finished {
		t.Fatalf("expected Finish to be called")
	}

	want := []string{"aaa", "bbb", "ccc", "ddd", "eee", "fff"}
	if len(fold.payloads) != len(want) {
		t.Fatalf("got %d payloads, want %d: %v", len(fold.payloads), len(want), fold.payloads)
	}
	for i, w := range want {
		if !bytes.Equal(fold.payloads[i], []byte(w)) {
			t.Errorf("payload %d = %q, want %q", i, fold.payloads[i], w)
		}
	}
}

func TestMergeSortedSingleInput(t *testing.T) {
	dir := t.TempDir()
	a := writeSortedFile(t, dir, "a", []string{"x", "y", "z"})

	var fold captureFold
	if err := MergeSorted([]string{a}, 0, &fold); err != nil {
		t.Fatalf("MergeSorted failed: %v", err)
	}
	if len(fold.payloads) != 3 {
		t.Fatalf("got %d payloads, want 3", len(fold.payloads))
	}
}

func TestMergeSortedEmptyInputsCallsFinish(t *testing.T) {
	dir := t.TempDir()
	empty := writeSortedFile(t, dir, "empty", nil)

	var fold captureFold
	if err := MergeSorted([]string{empty}, 0, &fold); err != nil {
		t.Fatalf("MergeSorted failed: %v", err)
	}
	if len(fold.payloads) != 0 {
		t.Errorf("expected no payloads from an empty input, got %d", len(fold.payloads))
	}
	if !fold.finished {
		t.Fatalf("expected Finish to be called even with no records")
	}
}

func TestMergeSortedNoInputsCallsFinish(t *testing.T) {
	var fold captureFold
	if err := MergeSorted(nil, 0, &fold); err != nil {
		t.Fatalf("MergeSorted failed: %v", err)
	}
	if !fold.finished {
		t.Fatalf("expected Finish to be called with zero inputs")
	}
}

func TestMergeSortedPropagatesInputOpenError(t *testing.T) {
	var fold captureFold
	err := MergeSorted([]string{"/nonexistent/path/for/test"}, 0, &fold)
	if err == nil {
		t.Fatalf("expected an error opening a nonexistent input")
	}
}
