package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bucketstore/bucketstore/internal/merge"
)

func TestLoadMissingFileYieldsEmptyAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "root.buckets")

	dir, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(dir) != 0 {
		t.Fatalf("expected empty directory, got %d entries", len(dir))
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if len(reloaded) != 0 {
		t.Errorf("expected persisted blob to still be empty, got %d entries", len(reloaded))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "root.buckets")
	want := merge.Directory{
		"A": {Offset: 0, Size: 30, Count: 2},
		"B": {Offset: 30, Size: 15, Count: 1},
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for bucket, desc := range want {
		gd, ok := got[bucket]
		if !ok {
			t.Fatalf("missing bucket %q", bucket)
		}
		if gd != desc {
			t.Errorf("bucket %q descriptor = %+v, want %+v", bucket, gd, desc)
		}
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "root.buckets")
	if err := os.WriteFile(path, []byte("not a directory blob at all"), 0o644); err != nil {
		t.Fatalf("writing corrupt blob failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for corrupt magic")
	}
}
