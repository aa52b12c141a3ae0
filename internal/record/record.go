// Package record implements the wire codec for bucketstore: the
// (bucket, value, timestamp, props) tuple and its length-prefixed
// framing on disk.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds a single framed payload. Frames claiming
// a larger size are rejected as corrupt rather than trusted.
const DefaultMaxFrameSize = 64 * 1024 * 1024

// ErrZeroFrame is returned when a frame declares a zero-length payload.
var ErrZeroFrame = errors.New("record: zero-length frame")

// ErrFrameTooLarge is returned when a frame's declared size exceeds the
// configured maximum.
var ErrFrameTooLarge = errors.New("record: frame exceeds maximum size")

// ErrTruncated is returned by Deframe when a frame is cut short by
// end-of-file after at least one byte of the size prefix was read.
var ErrTruncated = errors.New("record: truncated frame")

// Record is the logical tuple stored under a bucket. The engine never
// inspects Value or Props; Timestamp exists only to make otherwise
// identical (Bucket, Value) pairs distinguishable before dedup collapses
// them in sort order: duplicates are defined by adjacency in sort
// order, not multiplicity by timestamp.
type Record struct {
	Bucket    []byte
	Value     []byte
	Timestamp int64
	Props     []byte
}

// Encode serializes r into its opaque payload form:
//
//	[u16 bucketLen][bucket][u16 valueLen][value][i64 timestamp][u32 propsLen][props]
func Encode(r Record) ([]byte, error) {
	if len(r.Bucket) > 0xFFFF {
		return nil, fmt.Errorf("record: bucket too long (%d bytes)", len(r.Bucket))
	}
	if len(r.Value) > 0xFFFF {
		return nil, fmt.Errorf("record: value too long (%d bytes)", len(r.Value))
	}

	size := 2 + len(r.Bucket) + 2 + len(r.Value) + 8 + 4 + len(r.Props)
	buf := make([]byte, size)

	pos := 0
	binary.BigEndian.PutUint16(buf[pos:], uint16(len(r.Bucket)))
	pos += 2
	pos += copy(buf[pos:], r.Bucket)
	binary.BigEndian.PutUint16(buf[pos:], uint16(len(r.Value)))
	pos += 2
	pos += copy(buf[pos:], r.Value)
	binary.BigEndian.PutUint64(buf[pos:], uint64(r.Timestamp))
	pos += 8
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(r.Props)))
	pos += 4
	copy(buf[pos:], r.Props)

	return buf, nil
}

// Decode parses a payload produced by Encode. It aliases the input
// slice for Bucket/Value/Props rather than copying; callers that retain
// a Record beyond the lifetime of the backing buffer must clone it.
func Decode(payload []byte) (Record, error) {
	if len(payload) < 2 {
		return Record{}, fmt.Errorf("record: payload too short for bucket length")
	}
	pos := 0
	bucketLen := int(binary.BigEndian.Uint16(payload[pos:]))
	pos += 2
	if pos+bucketLen+2 > len(payload) {
		return Record{}, fmt.Errorf("record: payload truncated in bucket")
	}
	bucket := payload[pos : pos+bucketLen]
	pos += bucketLen

	valueLen := int(binary.BigEndian.Uint16(payload[pos:]))
	pos += 2
	if pos+valueLen+8+4 > len(payload) {
		return Record{}, fmt.Errorf("record: payload truncated in value")
	}
	value := payload[pos : pos+valueLen]
	pos += valueLen

	ts := int64(binary.BigEndian.Uint64(payload[pos:]))
	pos += 8

	propsLen := int(binary.BigEndian.Uint32(payload[pos:]))
	pos += 4
	if pos+propsLen > len(payload) {
		return Record{}, fmt.Errorf("record: payload truncated in props")
	}
	props := payload[pos : pos+propsLen]

	return Record{Bucket: bucket, Value: value, Timestamp: ts, Props: props}, nil
}

// BucketValue extracts just the (bucket, value) prefix from a payload
// without decoding Props, for use in hot comparison paths (sorting,
// dedup) that never need Timestamp or Props.
func BucketValue(payload []byte) (bucket, value []byte, err error) {
	if len(payload) < 2 {
		return nil, nil, fmt.Errorf("record: payload too short for bucket length")
	}
	pos := 0
	bucketLen := int(binary.BigEndian.Uint16(payload[pos:]))
	pos += 2
	if pos+bucketLen+2 > len(payload) {
		return nil, nil, fmt.Errorf("record: payload truncated in bucket")
	}
	bucket = payload[pos : pos+bucketLen]
	pos += bucketLen

	valueLen := int(binary.BigEndian.Uint16(payload[pos:]))
	pos += 2
	if pos+valueLen > len(payload) {
		return nil, nil, fmt.Errorf("record: payload truncated in value")
	}
	value = payload[pos : pos+valueLen]
	return bucket, value, nil
}

// Frame prefixes payload with its big-endian u32 size, as specified:
// size does not include its own 4 bytes.
func Frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// WriteFrame writes payload's frame directly to w without an
// intermediate allocation of the combined buffer.
func WriteFrame(w io.Writer, payload []byte) error {
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Deframe reads one frame from r: a u32 big-endian size followed by
// that many payload bytes. io.EOF is returned (unwrapped) when r is
// exhausted exactly at a frame boundary, signaling a clean end of
// stream. Any other truncation - including EOF partway through the
// size prefix or the payload - is reported as ErrTruncated wrapping the
// underlying error, since the caller must decide whether that is a
// recoverable end-of-rawfile or reader-side corruption.
func Deframe(r io.Reader, maxFrameSize int) ([]byte, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	var sizeBuf [4]byte
	n, err := io.ReadFull(r, sizeBuf[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size == 0 {
		return nil, ErrZeroFrame
	}
	if int(size) > maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, maxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return payload, nil
}
