// Package rawfile appends flushed write-buffer records to a freshly
// named, unsorted, append-only file. It is codec oblivious beyond
// framing: it never decodes a payload.
package rawfile

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/bucketstore/bucketstore/internal/record"
)

// DefaultBufferBytes is the default size for the buffered writer used
// when flushing a rawfile.
const DefaultBufferBytes = 500 * 1024

// bufWriterPool recycles buffered writers across flushes.
var bufWriterPool = sync.Pool{
	New: func() interface{} {
		return bufio.NewWriterSize(nil, DefaultBufferBytes)
	},
}

// NewPath generates a fresh rawfile path under root, named
// "<root>.raw.<rand>".
func NewPath(root string) (string, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("rawfile: generating random suffix: %w", err)
	}
	return fmt.Sprintf("%s.raw.%s", root, hex.EncodeToString(suffix[:])), nil
}

// Flush writes every buffered payload to a freshly named rawfile under
// root and returns its path. An empty buffer produces no rawfile and
// returns an empty path.
func Flush(root string, buffer [][]byte, bufferBytes int) (string, error) {
	if len(buffer) == 0 {
		return "", nil
	}
	if bufferBytes <= 0 {
		bufferBytes = DefaultBufferBytes
	}

	path, err := NewPath(root)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("rawfile: creating %s: %w", path, err)
	}

	var bw *bufio.Writer
	if bufferBytes == DefaultBufferBytes {
		bw = bufWriterPool.Get().(*bufio.Writer)
		bw.Reset(f)
		defer func() {
			bw.Reset(nil)
			bufWriterPool.Put(bw)
		}()
	} else {
		// Non-default size requested: the pool only recycles
		// DefaultBufferBytes writers, so allocate one directly.
		bw = bufio.NewWriterSize(f, bufferBytes)
	}

	for _, payload := range buffer {
		if err := record.WriteFrame(bw, payload); err != nil {
			bw.Flush()
			f.Close()
			return "", fmt.Errorf("rawfile: writing frame to %s: %w", path, err)
		}
	}

	if err := bw.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("rawfile: flushing %s: %w", path, err)
	}
	// Durable enough for the subsequent sort to read: Sync forces the
	// bytes out before the rawfile is handed to the merge pipeline.
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("rawfile: syncing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("rawfile: closing %s: %w", path, err)
	}

	return path, nil
}
