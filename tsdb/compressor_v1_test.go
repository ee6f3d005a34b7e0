package tsdb_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pagedb/tsdb/tsdb"
)

func compressAll(t *testing.T, c tsdb.Compressor, points []tsdb.DataPoint) {
	t.Helper()
	for _, dp := range points {
		ok, err := c.Compress(dp.Timestamp, dp.Value)
		if err != nil {
			t.Fatalf("Compress(%v) failed: %v", dp, err)
		}
		if !ok {
			t.Fatalf("Compress(%v) reported full unexpectedly", dp)
		}
	}
}

func assertPoints(t *testing.T, got, want []tsdb.DataPoint) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestCompressorV1RoundTrip(t *testing.T) {
	// Deltas chosen to cross the dod control-bit buckets 0, ±64, ±256
	// and the 64-bit fallback; no dod here lands in the ±2048 bucket.
	points := []tsdb.DataPoint{
		{Timestamp: 1000, Value: 1.0},
		{Timestamp: 1001, Value: 1.5},   // first delta, dod 1 -> ±64 bucket
		{Timestamp: 1002, Value: 2.0},   // delta 1, dod 0
		{Timestamp: 1070, Value: -4.0},  // delta 68, dod 67 -> ±256 bucket
		{Timestamp: 1200, Value: 8.25},  // delta 130, dod 62 -> ±64 bucket
		{Timestamp: 4000, Value: 0.0},   // delta 2800, dod huge -> fallback
	}

	c := tsdb.NewCompressor(1)
	buf := make([]byte, 512)
	c.Init(points[0].Timestamp, buf, len(buf))
	compressAll(t, c, points)

	got := c.Uncompress(nil)
	assertPoints(t, got, points)
	if c.DataPointCount() != len(points) {
		t.Fatalf("DataPointCount() = %d, want %d", c.DataPointCount(), len(points))
	}
	if c.LastTimestamp() != points[len(points)-1].Timestamp {
		t.Fatalf("LastTimestamp() = %d, want %d", c.LastTimestamp(), points[len(points)-1].Timestamp)
	}
}

func TestCompressorV1XorWindowReuse(t *testing.T) {
	// Repeating the exact same bit pattern of leading/trailing zeros
	// across consecutive points exercises the "reuse previous window"
	// path in the xor encoding rather than always opening a new one.
	points := []tsdb.DataPoint{
		{Timestamp: 0, Value: 100.0},
		{Timestamp: 1, Value: 100.5},
		{Timestamp: 2, Value: 101.0},
		{Timestamp: 3, Value: 101.5},
		{Timestamp: 4, Value: 100.0}, // zero xor against an earlier value is unlikely; exercises general path
	}
	c := tsdb.NewCompressor(1)
	buf := make([]byte, 512)
	c.Init(0, buf, len(buf))
	compressAll(t, c, points)

	got := c.Uncompress(nil)
	assertPoints(t, got, points)
}

func TestCompressorV1OutOfOrderRejected(t *testing.T) {
	c := tsdb.NewCompressor(1)
	buf := make([]byte, 128)
	c.Init(100, buf, len(buf))

	if _, err := c.Compress(100, 1.0); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if _, err := c.Compress(105, 2.0); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	_, err := c.Compress(102, 3.0)
	if !errors.Is(err, tsdb.ErrOutOfOrder) {
		t.Fatalf("Compress with a regressing timestamp = %v, want ErrOutOfOrder", err)
	}
}

func TestCompressorV1Resumability(t *testing.T) {
	// save; drop; init; restore; compress more — the continuation must
	// be indistinguishable from never having dropped the compressor.
	points := []tsdb.DataPoint{
		{Timestamp: 10, Value: 1.0},
		{Timestamp: 20, Value: 2.0},
		{Timestamp: 30, Value: 3.0},
	}
	more := []tsdb.DataPoint{
		{Timestamp: 40, Value: 4.0},
		{Timestamp: 41, Value: 4.5},
	}

	// Reference: compress everything against one never-dropped compressor.
	refBuf := make([]byte, 512)
	ref := tsdb.NewCompressor(1)
	ref.Init(points[0].Timestamp, refBuf, len(refBuf))
	compressAll(t, ref, points)
	compressAll(t, ref, more)
	want := ref.Uncompress(nil)

	// Under test: save position, build a brand new compressor instance
	// bound to the same backing buffer, restore, then continue.
	buf := make([]byte, 512)
	c := tsdb.NewCompressor(1)
	c.Init(points[0].Timestamp, buf, len(buf))
	compressAll(t, c, points)

	pos := c.SavePosition()

	dropped := tsdb.NewCompressor(1)
	dropped.Init(points[0].Timestamp, buf, len(buf))
	dropped.Restore(nil, pos, func(tsdb.DataPoint) bool { return true })

	compressAll(t, dropped, more)

	got := dropped.Uncompress(nil)
	assertPoints(t, got, want)
}

func TestCompressorV1IsFull(t *testing.T) {
	c := tsdb.NewCompressor(1)
	buf := make([]byte, 24) // tight buffer: first raw 64-bit value plus headroom for one more point
	c.Init(0, buf, len(buf))

	ok, err := c.Compress(0, 1.0)
	if err != nil || !ok {
		t.Fatalf("first Compress failed: ok=%v err=%v", ok, err)
	}

	for i := 1; i < 1000; i++ {
		ok, err := c.Compress(int64(i), float64(i))
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if !ok {
			return
		}
	}
	t.Fatalf("expected compressor bound to a %d-byte buffer to report full", len(buf))
}
