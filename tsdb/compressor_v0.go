package tsdb

import (
	"encoding/binary"
	"math"

	"github.com/golang/snappy"
)

// rawPointSize is the width of one (timestamp, value) record in the
// version 0 working-buffer encoding: an int64 timestamp followed by
// the raw bits of a float64 value.
const rawPointSize = 16

// compressorV0 is the reorderable codec used for out-of-order pages. It
// keeps every point in an external slice rather than writing in place,
// so points can be accepted in any timestamp order; on SaveBuffer it
// snappy-compresses the flattened record stream into the page's mapped
// buffer.
type compressorV0 struct {
	base    int64
	bufSize int
	points  []DataPoint
}

func newCompressorV0() *compressorV0 {
	return &compressorV0{}
}

func (c *compressorV0) Init(base int64, buf []byte, bufSize int) {
	c.base = base
	c.bufSize = bufSize
	c.points = c.points[:0]
}

func (c *compressorV0) Rebase(buf []byte) {
	// The working buffer is external; nothing in c references buf.
}

func (c *compressorV0) Compress(ts int64, value float64) (bool, error) {
	if c.IsFull() {
		return false, nil
	}
	c.points = append(c.points, DataPoint{Timestamp: ts, Value: value})
	return true, nil
}

func (c *compressorV0) Uncompress(out []DataPoint) []DataPoint {
	return append(out, c.points...)
}

func (c *compressorV0) Restore(out []DataPoint, pos PagePosition, pred func(DataPoint) bool) []DataPoint {
	// Version 0's persisted buffer is opaque (snappy-compressed record
	// stream); pos.Cursor here indexes into c.points directly rather
	// than a byte offset, since the whole buffer is decoded at once on
	// RestoreFromBuffer before Restore is ever called.
	start := int(pos.Cursor)
	if start > len(c.points) {
		start = len(c.points)
	}
	for _, dp := range c.points[start:] {
		if !pred(dp) {
			break
		}
		out = append(out, dp)
	}
	return out
}

// RestoreFromBuffer decodes a previously SaveBuffer-d snappy block back
// into c's point list, used when reopening a file: the page manager
// reads the compressed bytes out of the mapped region, hands them here,
// and the compressor rebuilds its external point list before Restore is
// called against it.
func (c *compressorV0) RestoreFromBuffer(compressed []byte) error {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return &IOError{Op: "compressorV0.decode", Err: err}
	}
	n := len(raw) / rawPointSize
	c.points = c.points[:0]
	for i := 0; i < n; i++ {
		rec := raw[i*rawPointSize : (i+1)*rawPointSize]
		ts := int64(binary.LittleEndian.Uint64(rec[0:8]))
		bits := binary.LittleEndian.Uint64(rec[8:16])
		c.points = append(c.points, DataPoint{Timestamp: ts, Value: math.Float64frombits(bits)})
	}
	return nil
}

func (c *compressorV0) SavePosition() PagePosition {
	return PagePosition{Cursor: uint16(len(c.points)), Start: 0}
}

func (c *compressorV0) SaveBuffer(dst []byte) int {
	raw := make([]byte, len(c.points)*rawPointSize)
	for i, dp := range c.points {
		rec := raw[i*rawPointSize : (i+1)*rawPointSize]
		binary.LittleEndian.PutUint64(rec[0:8], uint64(dp.Timestamp))
		binary.LittleEndian.PutUint64(rec[8:16], math.Float64bits(dp.Value))
	}
	encoded := snappy.Encode(nil, raw)
	n := copy(dst, encoded)
	return n
}

func (c *compressorV0) Size() int {
	return len(c.points) * rawPointSize
}

func (c *compressorV0) IsFull() bool {
	return c.Size()+rawPointSize > c.bufSize
}

func (c *compressorV0) IsEmpty() bool {
	return len(c.points) == 0
}

func (c *compressorV0) DataPointCount() int {
	return len(c.points)
}

func (c *compressorV0) LastTimestamp() int64 {
	if len(c.points) == 0 {
		return int64(InvalidTimestamp)
	}
	return c.points[len(c.points)-1].Timestamp
}

func (c *compressorV0) Version() int {
	return 0
}

func (c *compressorV0) Reset() {
	c.points = c.points[:0]
	c.base = 0
	c.bufSize = 0
}
