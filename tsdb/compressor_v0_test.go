package tsdb_test

import (
	"testing"

	"github.com/pagedb/tsdb/tsdb"
)

func TestCompressorV0RoundTrip(t *testing.T) {
	c := tsdb.NewCompressor(0)
	buf := make([]byte, 256)
	c.Init(1000, buf, len(buf))

	points := []tsdb.DataPoint{
		{Timestamp: 1000, Value: 1.5},
		{Timestamp: 1002, Value: -3.25},
		{Timestamp: 1001, Value: 9.0}, // out of order: version 0 must accept it
	}
	for _, dp := range points {
		ok, err := c.Compress(dp.Timestamp, dp.Value)
		if err != nil {
			t.Fatalf("Compress(%v) failed: %v", dp, err)
		}
		if !ok {
			t.Fatalf("Compress(%v) reported full unexpectedly", dp)
		}
	}

	got := c.Uncompress(nil)
	if len(got) != len(points) {
		t.Fatalf("Uncompress returned %d points, want %d", len(got), len(points))
	}
	for i, dp := range points {
		if got[i] != dp {
			t.Fatalf("point %d = %v, want %v", i, got[i], dp)
		}
	}
}

func TestCompressorV0SaveBufferRestoreFromBuffer(t *testing.T) {
	c := tsdb.NewCompressor(0)
	buf := make([]byte, 256)
	c.Init(1000, buf, len(buf))

	points := []tsdb.DataPoint{
		{Timestamp: 1000, Value: 1.5},
		{Timestamp: 1005, Value: 2.5},
	}
	for _, dp := range points {
		if _, err := c.Compress(dp.Timestamp, dp.Value); err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
	}

	dst := make([]byte, 256)
	n := c.SaveBuffer(dst)
	if n == 0 {
		t.Fatalf("SaveBuffer wrote 0 bytes")
	}

	fresh := tsdb.NewCompressor(0)
	fresh.Init(1000, buf, len(buf))
	restorable, ok := fresh.(interface {
		RestoreFromBuffer(compressed []byte) error
	})
	if !ok {
		t.Fatalf("version 0 compressor does not expose RestoreFromBuffer")
	}
	if err := restorable.RestoreFromBuffer(dst[:n]); err != nil {
		t.Fatalf("RestoreFromBuffer failed: %v", err)
	}

	got := fresh.Uncompress(nil)
	if len(got) != len(points) {
		t.Fatalf("Uncompress after restore returned %d points, want %d", len(got), len(points))
	}
	for i, dp := range points {
		if got[i] != dp {
			t.Fatalf("point %d = %v, want %v", i, got[i], dp)
		}
	}
}

func TestCompressorV0IsFullBoundary(t *testing.T) {
	c := tsdb.NewCompressor(0)
	buf := make([]byte, 32) // room for exactly two 16-byte records
	c.Init(0, buf, len(buf))

	for i := 0; i < 2; i++ {
		ok, err := c.Compress(int64(i), float64(i))
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if !ok {
			t.Fatalf("Compress %d should have succeeded", i)
		}
	}
	if !c.IsFull() {
		t.Fatalf("expected compressor to report full after filling its buffer")
	}
	ok, err := c.Compress(2, 2.0)
	if err != nil {
		t.Fatalf("Compress on a full buffer returned an error instead of ok=false: %v", err)
	}
	if ok {
		t.Fatalf("Compress on a full buffer should report ok=false")
	}
}

func TestCompressorV0Reset(t *testing.T) {
	c := tsdb.NewCompressor(0)
	buf := make([]byte, 64)
	c.Init(0, buf, len(buf))
	if _, err := c.Compress(0, 1.0); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	c.Reset()
	if !c.IsEmpty() {
		t.Fatalf("expected IsEmpty after Reset")
	}
	if c.LastTimestamp() != int64(tsdb.InvalidTimestamp) {
		t.Fatalf("expected LastTimestamp == InvalidTimestamp after Reset, got %d", c.LastTimestamp())
	}
}
