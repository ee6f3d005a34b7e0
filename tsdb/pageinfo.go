package tsdb

// PageInfo is the live, in-memory counterpart to one page_info_on_disk
// record: it owns a Compressor bound to the page's physical byte
// range and mirrors the persisted fields so a flush only needs to
// write back what changed.
type PageInfo struct {
	pool   *Pool
	record pageInfoRecord // accessor into the mapped page-info table
	page   []byte         // the page's own byte range within the file

	compressor Compressor
	timeRange  TimeRange
	fileStart  int64 // owning file's start_tstamp; tstamp_from/to are stored as deltas from this
	outOfOrder bool
}

// initForDisk prepares a freshly allocated page: writes its identity
// into the page-info record, binds a new Compressor of the requested
// version, and records the page as empty ([base, base)). tstamp_from/to
// are persisted as deltas from fileStart, per the on-disk format.
func initForDisk(pool *Pool, record pageInfoRecord, page []byte, pageIndex uint32, offset, size uint16, base, fileStart int64, version int, ooo bool) *PageInfo {
	record.SetPageIndex(pageIndex)
	record.SetOffset(offset)
	record.SetSize(size)
	record.SetCursor(0)
	record.SetStart(0)
	record.SetFull(false)
	record.SetOutOfOrder(ooo)
	record.SetTimestampFrom(uint32(base - fileStart))
	record.SetTimestampTo(uint32(base - fileStart))

	pi := &PageInfo{
		pool:       pool,
		record:     record,
		page:       page,
		timeRange:  TimeRange{From: base, To: base},
		fileStart:  fileStart,
		outOfOrder: ooo,
	}
	pi.compressor = pool.Get(version)
	pi.compressor.Init(base, page, len(page))
	return pi
}

// initFromDisk rebuilds the live PageInfo for a page that already holds
// data. tstamp_from/to are read back as deltas from fileStart. Version 0
// pages persist an opaque snappy-compressed record stream rather than a
// resumable bitstream, so they are rebuilt via RestoreFromBuffer instead
// of Compressor.Restore's cursor-based replay.
func initFromDisk(pool *Pool, record pageInfoRecord, page []byte, version int, fileStart int64) *PageInfo {
	pi := &PageInfo{
		pool:   pool,
		record: record,
		page:   page,
		timeRange: TimeRange{
			From: fileStart + int64(record.TimestampFrom()),
			To:   fileStart + int64(record.TimestampTo()),
		},
		fileStart:  fileStart,
		outOfOrder: record.IsOutOfOrder(),
	}
	pi.compressor = pool.Get(version)
	pi.compressor.Init(pi.timeRange.From, page, len(page))

	if version == 0 {
		if br, ok := pi.compressor.(bufferRestorer); ok {
			n := int(record.Size())
			if n > 0 && n <= len(page) {
				br.RestoreFromBuffer(page[:n])
			}
		}
		return pi
	}

	pos := PagePosition{Cursor: record.Cursor(), Start: record.Start()}
	if pos.Cursor > 0 || pos.Start > 0 {
		pi.compressor.Restore(nil, pos, func(DataPoint) bool { return true })
	}
	return pi
}

// AddDataPoint compresses one point into the page. Returns false when
// the page has no room left (the caller should allocate a new page)
// or ErrOutOfOrder when a version>=1 compressor rejects a regression.
// On success the record's time span and cursor are updated, so a read
// view from GetPageOnDisk sees the point.
func (pi *PageInfo) AddDataPoint(ts int64, value float64) (bool, error) {
	ok, err := pi.compressor.Compress(ts, value)
	if err != nil {
		return false, err
	}
	if !ok {
		pi.record.SetFull(true)
		return false, nil
	}
	pi.timeRange = pi.timeRange.ExpandTo(ts)
	pi.record.SetTimestampFrom(uint32(pi.timeRange.From - pi.fileStart))
	pi.record.SetTimestampTo(uint32(pi.timeRange.To - pi.fileStart))
	pos := pi.compressor.SavePosition()
	pi.record.SetCursor(pos.Cursor)
	pi.record.SetStart(pos.Start)
	return true, nil
}

// EnsureDataPointsAvailable decodes every point held by this page's
// compressor, used after a reload (initFromDisk) or ahead of a rollup
// pass that needs the raw series.
func (pi *PageInfo) EnsureDataPointsAvailable(out []DataPoint) []DataPoint {
	return pi.compressor.Uncompress(out)
}

// Persist writes the compressor's resumable cursor back into the
// page-info record. copyData additionally forces the version 0
// compressor to flush its external point buffer into the page's
// mapped bytes (version>=1 is always already in place).
func (pi *PageInfo) Persist(copyData bool) {
	if copyData {
		if n := pi.compressor.SaveBuffer(pi.page); n > 0 {
			pi.record.SetSize(uint16(n))
		}
	}
	pos := pi.compressor.SavePosition()
	pi.record.SetCursor(pos.Cursor)
	pi.record.SetStart(pos.Start)
	pi.record.SetFull(pi.compressor.IsFull())
}

// Flush persists the page and releases the compressor back to the pool
// if the page is full; a page still accepting writes keeps its
// compressor bound so the next AddDataPoint needs no round trip
// through the pool.
func (pi *PageInfo) Flush() {
	pi.Persist(pi.compressor.Version() == 0)
	if pi.IsFull() && pi.pool != nil && pi.compressor != nil {
		pi.pool.Put(pi.compressor)
		pi.compressor = nil
	}
}

// IsFull reports whether this page is full and accepts no further point.
func (pi *PageInfo) IsFull() bool {
	if pi.compressor == nil {
		return pi.record.IsFull()
	}
	return pi.record.IsFull() || pi.compressor.IsFull()
}

// IsEmpty reports whether the page holds zero points.
func (pi *PageInfo) IsEmpty() bool {
	return pi.compressor.IsEmpty()
}

// TimeRange returns the page's current [from, to) span.
func (pi *PageInfo) TimeRange() TimeRange {
	return pi.timeRange
}

// OutOfOrder reports whether this page accepts non-monotonic points
// (always backed by a version 0 compressor regardless of the file's
// configured default version).
func (pi *PageInfo) OutOfOrder() bool {
	return pi.outOfOrder
}

// PageIndex returns the physical page slot this PageInfo is bound to.
func (pi *PageInfo) PageIndex() uint32 {
	return pi.record.PageIndex()
}

// Size returns the number of compressed bytes currently in use.
func (pi *PageInfo) Size() int {
	return pi.compressor.Size()
}

// ShrinkToFit reports the minimal byte count this page's compressed
// content would occupy, used by compaction to decide whether two
// pages' live bytes fit packed together under the sub-page threshold.
func (pi *PageInfo) ShrinkToFit() int {
	return pi.compressor.Size()
}

// relocate rebinds pi's page-info record and compressor to a new
// physical location, used by CopyTo and MergeAfter. newPage's bytes
// must already hold pi's compressed data (copied by the caller); its
// length becomes the relocated record's size field.
func (pi *PageInfo) relocate(record pageInfoRecord, newPage []byte, newPageIndex uint32, newOffset uint16) {
	record.SetPageIndex(newPageIndex)
	record.SetOffset(newOffset)
	record.SetSize(uint16(len(newPage)))
	record.SetCursor(pi.record.Cursor())
	record.SetStart(pi.record.Start())
	record.SetFull(pi.record.IsFull())
	record.SetOutOfOrder(pi.outOfOrder)
	record.SetTimestampFrom(uint32(pi.timeRange.From - pi.fileStart))
	record.SetTimestampTo(uint32(pi.timeRange.To - pi.fileStart))

	pi.record = record
	pi.page = newPage
	pi.compressor.Rebase(newPage)
}

// MergeAfter rebinds pi's physical location to sit immediately after
// dst within dst's physical page: pi.page_index becomes dst.page_index,
// pi.offset becomes dst.offset+dst.size. Used by compaction's sub-page
// packing (scenario e) once the caller has confirmed the trailing space
// fits and has copied pi's compressed bytes into newPage. dst is the
// already-relocated neighbor's page-info record, not a live PageInfo,
// since the caller only needs its persisted location to compute pi's.
func (pi *PageInfo) MergeAfter(dst pageInfoRecord, record pageInfoRecord, newPage []byte) {
	offset := dst.Offset() + dst.Size()
	pi.relocate(record, newPage, dst.PageIndex(), offset)
}

// CopyTo rebinds pi's page-info record and compressor to a fresh
// physical page, used when compaction cannot pack a page into trailing
// space and must start a new one. The byte contents at newPage must
// already hold pi's compressed data (copied by the caller).
func (pi *PageInfo) CopyTo(record pageInfoRecord, newPage []byte, newPageIndex uint32) {
	pi.relocate(record, newPage, newPageIndex, 0)
}
