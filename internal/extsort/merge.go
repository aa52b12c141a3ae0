package extsort

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/bucketstore/bucketstore/internal/record"
)

// Fold receives the merged sorted stream one payload at a time, and a
// final Finish() call once every input is exhausted: a mutable
// accept/finish pair that lets a MergeBuilder be threaded through the
// driver rather than have each call return a fresh closure.
type Fold interface {
	Accept(payload []byte) error
	Finish() error
}

// mergeSource is one already-sorted input file together with its next
// unread payload, the same item/file pairing extsort's own internal
// merge file uses.
type mergeSource struct {
	r       *bufio.Reader
	f       *os.File
	next    []byte
	hasNext bool
}

func (s *mergeSource) advance(maxFrameSize int) error {
	payload, err := record.Deframe(s.r, maxFrameSize)
	if err != nil {
		// A frame cut short at the end of the file ends this source, the
		// same as a clean EOF.
		if err == io.EOF || errors.Is(err, record.ErrTruncated) {
			s.hasNext = false
			return nil
		}
		return err
	}
	s.next = payload
	s.hasNext = true
	return nil
}

// manualHeap is a hand-rolled min-heap over mergeSources, avoiding the
// interface{} boxing of container/heap for the k-way merge below.
type manualHeap []*mergeSource

func (h manualHeap) Len() int { return len(h) }
func (h manualHeap) less(i, j int) bool {
	return bytes.Compare(h[i].next, h[j].next) < 0
}
func (h manualHeap) swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *manualHeap) push(s *mergeSource) {
	*h = append(*h, s)
	h.up(len(*h) - 1)
}

func (h *manualHeap) pop() *mergeSource {
	old := *h
	n := len(old)
	x := old[0]
	old[0] = old[n-1]
	*h = old[:n-1]
	h.down(0, n-1)
	return x
}

func (h *manualHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *manualHeap) down(i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
}

// MergeSorted merges the already-sorted inputs (by payload bytes, the
// same total order Sort produces) into a single stream and drives fold
// over it, closing every input before returning. Used to merge the
// current data file with the freshly sorted rawfile union.
//
// Every source is closed regardless of how the merge ends, and a
// failure to close one source doesn't hide a failure to close another:
// close errors are collected with multierror and appended to whatever
// error the merge itself produced, instead of the defer silently
// keeping only the last one.
func MergeSorted(inputs []string, maxFrameSize int, fold Fold) (err error) {
	sources := make([]*mergeSource, 0, len(inputs))
	defer func() {
		var closeErrs *multierror.Error
		for _, s := range sources {
			if cerr := s.f.Close(); cerr != nil {
				closeErrs = multierror.Append(closeErrs, fmt.Errorf("closing merge source: %w", cerr))
			}
		}
		if closeErrs == nil {
			return
		}
		if err != nil {
			closeErrs = multierror.Append(closeErrs, err)
		}
		err = closeErrs.ErrorOrNil()
	}()

	for _, path := range inputs {
		f, openErr := os.Open(path)
		if openErr != nil {
			return fmt.Errorf("extsort: opening %s: %w", path, openErr)
		}
		s := &mergeSource{r: bufio.NewReaderSize(f, 64*1024), f: f}
		if advErr := s.advance(maxFrameSize); advErr != nil {
			sources = append(sources, s)
			return fmt.Errorf("extsort: reading %s: %w", path, advErr)
		}
		sources = append(sources, s)
	}

	h := make(manualHeap, 0, len(sources))
	for _, s := range sources {
		if s.hasNext {
			h.push(s)
		}
	}

	for h.Len() > 0 {
		top := h.pop()
		if acceptErr := fold.Accept(top.next); acceptErr != nil {
			return acceptErr
		}
		if advErr := top.advance(maxFrameSize); advErr != nil {
			return fmt.Errorf("extsort: advancing merge source: %w", advErr)
		}
		if top.hasNext {
			h.push(top)
		}
	}

	return fold.Finish()
}
