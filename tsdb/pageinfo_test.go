package tsdb

import "testing"

func newTestPageInfo(t *testing.T, pool *Pool, version int, base, fileStart int64) (*PageInfo, []byte) {
	t.Helper()
	table := make([]byte, PageInfoRecordSize)
	page := make([]byte, 512)
	rec := pageInfoRecordAt(table, 0)
	pi := initForDisk(pool, rec, page, 7, 0, uint16(len(page)), base, fileStart, version, false)
	return pi, table
}

func TestPageInfoAddDataPointExpandsTimeRange(t *testing.T) {
	pool := NewPool()
	pi, _ := newTestPageInfo(t, pool, 1, 100, 0)

	if pi.TimeRange() != (TimeRange{From: 100, To: 100}) {
		t.Fatalf("initial TimeRange = %v, want [100,100)", pi.TimeRange())
	}

	if ok, err := pi.AddDataPoint(100, 1.0); err != nil || !ok {
		t.Fatalf("AddDataPoint(100) failed: ok=%v err=%v", ok, err)
	}
	if ok, err := pi.AddDataPoint(150, 2.0); err != nil || !ok {
		t.Fatalf("AddDataPoint(150) failed: ok=%v err=%v", ok, err)
	}

	want := TimeRange{From: 100, To: 151}
	if pi.TimeRange() != want {
		t.Fatalf("TimeRange() = %v, want %v", pi.TimeRange(), want)
	}
}

// TestPageInfoTimestampsPersistAsFileRelativeDeltas pins down the
// on-disk contract: tstamp_from/to hold deltas from the containing
// file's start_tstamp, not absolute timestamps. A nonzero fileStart
// (unlike every other test's TimeRange{From: 0, ...}) is required to
// tell the two apart.
func TestPageInfoTimestampsPersistAsFileRelativeDeltas(t *testing.T) {
	pool := NewPool()
	const fileStart = 5000
	pi, table := newTestPageInfo(t, pool, 1, 5100, fileStart)

	if ok, err := pi.AddDataPoint(5100, 1.0); err != nil || !ok {
		t.Fatalf("AddDataPoint failed: ok=%v err=%v", ok, err)
	}
	if ok, err := pi.AddDataPoint(5150, 2.0); err != nil || !ok {
		t.Fatalf("AddDataPoint failed: ok=%v err=%v", ok, err)
	}

	// The live range is half-open, [5100, 5151), so the persisted
	// deltas are (100, 151).
	rec := pageInfoRecordAt(table, 0)
	if rec.TimestampFrom() != 100 || rec.TimestampTo() != 151 {
		t.Fatalf("persisted deltas = (%d,%d), want (100,151) relative to fileStart=%d",
			rec.TimestampFrom(), rec.TimestampTo(), fileStart)
	}

	reloaded := initFromDisk(pool, rec, pi.page, 1, fileStart)
	want := TimeRange{From: 5100, To: 5151}
	if reloaded.TimeRange() != want {
		t.Fatalf("TimeRange() after reload = %v, want %v (delta must be re-added to fileStart)", reloaded.TimeRange(), want)
	}
}

func TestPageInfoInitForDiskThenInitFromDiskRoundTrip(t *testing.T) {
	pool := NewPool()
	pi, table := newTestPageInfo(t, pool, 1, 1000, 0)

	points := []DataPoint{{Timestamp: 1000, Value: 1.0}, {Timestamp: 1001, Value: 1.5}}
	for _, dp := range points {
		if ok, err := pi.AddDataPoint(dp.Timestamp, dp.Value); err != nil || !ok {
			t.Fatalf("AddDataPoint(%v) failed: ok=%v err=%v", dp, ok, err)
		}
	}
	pi.Persist(false)

	rec := pageInfoRecordAt(table, 0)
	page := pi.page
	reloaded := initFromDisk(pool, rec, page, 1, 0)

	got := reloaded.EnsureDataPointsAvailable(nil)
	if len(got) != len(points) {
		t.Fatalf("got %d points, want %d", len(got), len(points))
	}
	for i, dp := range points {
		if got[i] != dp {
			t.Fatalf("point %d = %v, want %v", i, got[i], dp)
		}
	}
}

// TestPageInfoVersion0RoundTripThroughBuffer exercises the out-of-order
// reload path end to end: a version 0 page's compressed bytes are
// snappy-encoded external to the mapped buffer, so reopening it must
// decode via RestoreFromBuffer rather than the cursor-based Restore
// used by version>=1.
func TestPageInfoVersion0RoundTripThroughBuffer(t *testing.T) {
	pool := NewPool()
	pi, table := newTestPageInfo(t, pool, 0, 1000, 0)

	points := []DataPoint{
		{Timestamp: 1000, Value: 1.0},
		{Timestamp: 999, Value: 0.5}, // out of order: fine for version 0
		{Timestamp: 1002, Value: 2.0},
	}
	for _, dp := range points {
		if ok, err := pi.AddDataPoint(dp.Timestamp, dp.Value); err != nil || !ok {
			t.Fatalf("AddDataPoint(%v) failed: ok=%v err=%v", dp, ok, err)
		}
	}
	pi.Persist(true)

	rec := pageInfoRecordAt(table, 0)
	reloaded := initFromDisk(pool, rec, pi.page, 0, 0)

	got := reloaded.EnsureDataPointsAvailable(nil)
	if len(got) != len(points) {
		t.Fatalf("got %d points after reload, want %d: %v", len(got), len(points), got)
	}
	for i, dp := range points {
		if got[i] != dp {
			t.Fatalf("point %d = %v, want %v", i, got[i], dp)
		}
	}
}

func TestPageInfoFlushRecyclesCompressorWhenFull(t *testing.T) {
	pool := NewPool()
	table := make([]byte, PageInfoRecordSize)
	page := make([]byte, 16) // 128 bits: below IsFull's worst-case per-point bound, so full from the start
	rec := pageInfoRecordAt(table, 0)
	pi := initForDisk(pool, rec, page, 7, 0, uint16(len(page)), 0, 0, 1, false)

	for i := 0; i < 1000 && !pi.IsFull(); i++ {
		if _, err := pi.AddDataPoint(int64(i), float64(i)); err != nil {
			t.Fatalf("AddDataPoint failed: %v", err)
		}
	}
	if !pi.IsFull() {
		t.Fatalf("expected the page to fill against a %d-byte buffer", len(page))
	}

	pi.Flush()

	if pi.compressor != nil {
		t.Fatalf("expected Flush to release the compressor back to the pool once full")
	}
	got := pageInfoRecordAt(table, 0)
	if !got.IsFull() {
		t.Fatalf("expected the persisted record to carry the full flag")
	}
	// IsFull must still work after the compressor has been released.
	if !pi.IsFull() {
		t.Fatalf("IsFull() after recycling should still report true")
	}
}

func TestPageInfoMergeAfter(t *testing.T) {
	pool := NewPool()
	dst, dstTable := newTestPageInfo(t, pool, 1, 0, 0)
	if ok, err := dst.AddDataPoint(0, 1.0); err != nil || !ok {
		t.Fatalf("AddDataPoint into dst failed: ok=%v err=%v", ok, err)
	}
	dst.Persist(false)
	dstRec := pageInfoRecordAt(dstTable, 0)
	// Simulate compaction having already sized dst down to its live bytes.
	dstRec.SetSize(64)

	src, _ := newTestPageInfo(t, pool, 1, 10, 0)
	if ok, err := src.AddDataPoint(10, 2.0); err != nil || !ok {
		t.Fatalf("AddDataPoint into src failed: ok=%v err=%v", ok, err)
	}

	newTable := make([]byte, PageInfoRecordSize)
	newRec := pageInfoRecordAt(newTable, 0)
	newPage := make([]byte, 32)
	copy(newPage, src.page[:32])

	src.MergeAfter(dstRec, newRec, newPage)

	if src.PageIndex() != dst.PageIndex() {
		t.Fatalf("src should have relocated onto dst's physical page: dst=%d src=%d", dst.PageIndex(), src.PageIndex())
	}
	if newRec.Offset() != 64 {
		t.Fatalf("relocated offset = %d, want dst.offset+dst.size = 64", newRec.Offset())
	}

	got := src.EnsureDataPointsAvailable(nil)
	if len(got) != 1 || got[0].Timestamp != 10 || got[0].Value != 2.0 {
		t.Fatalf("src's own data should be unchanged by relocation, got %v", got)
	}
}

func TestPageInfoCopyTo(t *testing.T) {
	pool := NewPool()
	pi, _ := newTestPageInfo(t, pool, 1, 0, 0)
	if ok, err := pi.AddDataPoint(0, 42.0); err != nil || !ok {
		t.Fatalf("AddDataPoint failed: ok=%v err=%v", ok, err)
	}
	pi.Persist(false)

	newTable := make([]byte, PageInfoRecordSize)
	newRec := pageInfoRecordAt(newTable, 0)
	newPage := make([]byte, len(pi.page))
	copy(newPage, pi.page)

	pi.CopyTo(newRec, newPage, 99)

	if pi.PageIndex() != 99 {
		t.Fatalf("PageIndex() after CopyTo = %d, want 99", pi.PageIndex())
	}
	if newRec.PageIndex() != 99 {
		t.Fatalf("relocated record's page index = %d, want 99", newRec.PageIndex())
	}
	if newRec.Offset() != 0 {
		t.Fatalf("relocated offset = %d, want 0 (a fresh physical page)", newRec.Offset())
	}
}
