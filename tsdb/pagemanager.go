package tsdb

import (
	"fmt"
	"os"
	"sync"

	"github.com/pagedb/tsdb/pkg/mmap"
	"golang.org/x/sys/unix"
)

const (
	majorVersion = 1
	minorVersion = 0
)

// pageManagerConfig holds the values PageManager needs out of the
// process config store, resolved once at open time so a mid-process
// config reload cannot change the semantics of an already-open file.
type pageManagerConfig struct {
	PageSize          int
	PageCount         uint32
	CompressorVersion int
	Millisecond       bool
}

// PageManager owns the mmap of one data file: header, page-info table,
// and page region. Allocation is serialized by mu; reads of already
// allocated pages require no lock.
type PageManager struct {
	mf   *mmap.File
	path string
	pool *Pool

	mu sync.Mutex

	header    fileHeader
	pageTable []byte
	pagesBase int

	pageSize  int
	compacted bool
}

// OpenPageManager opens or creates the file at path for the given
// TimeRange, per the file open protocol: a zero-size file is
// initialized fresh; a nonzero file is verified and adopted.
func OpenPageManager(path string, tr TimeRange, cfg pageManagerConfig, pool *Pool) (*PageManager, error) {
	firstPage := firstDataPageIndex(cfg.PageCount, cfg.PageSize)
	initialSize := int64(cfg.PageCount) * int64(cfg.PageSize)
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		// An existing file keeps its size; its header decides the final size below.
		initialSize = fi.Size()
	}

	mf, created, err := mmap.Create(path, initialSize)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}

	pm := &PageManager{
		mf:        mf,
		path:      path,
		pool:      pool,
		pageSize:  cfg.PageSize,
		pagesBase: int(firstPage) * cfg.PageSize,
	}
	pm.header = newFileHeader(mf.Data())
	pm.pageTable = mf.Data()[HeaderSize : HeaderSize+int(cfg.PageCount)*PageInfoRecordSize]

	if created {
		pm.header.SetMajorVersion(majorVersion)
		pm.header.SetMinorVersion(minorVersion)
		pm.header.setFlags(0)
		pm.header.SetMillisecond(cfg.Millisecond)
		pm.header.SetCompressorVersion(cfg.CompressorVersion)
		pm.header.SetPageCount(cfg.PageCount)
		pm.header.SetPageIndex(firstPage)
		pm.header.SetHeaderIndex(0)
		pm.header.SetActualPageCount(cfg.PageCount)
		pm.header.SetStartTimestamp(tr.From)
		pm.header.SetEndTimestamp(tr.To)
		if err := mf.Sync(false); err != nil {
			mf.Close()
			return nil, &IOError{Op: "init-sync", Err: err}
		}
		return pm, nil
	}

	if pm.header.MajorVersion() != majorVersion {
		mf.Close()
		return nil, &VersionMismatchError{Major: pm.header.MajorVersion(), Want: majorVersion}
	}
	if pm.header.Millisecond() != cfg.Millisecond {
		mf.Close()
		return nil, &ResolutionMismatchError{
			FileIsMillisecond:   pm.header.Millisecond(),
			ConfigIsMillisecond: cfg.Millisecond,
		}
	}
	pm.compacted = pm.header.Compacted()
	cfg.CompressorVersion = pm.header.CompressorVersion()

	totalSize := int64(pm.header.ActualPageCount()) * int64(cfg.PageSize)
	if int64(mf.Len()) != totalSize {
		if err := mf.Resize(totalSize); err != nil {
			mf.Close()
			return nil, &IOError{Op: "resize", Err: err}
		}
		pm.header = newFileHeader(mf.Data())
		pm.pageTable = mf.Data()[HeaderSize : HeaderSize+int(cfg.PageCount)*PageInfoRecordSize]
	}

	if err := mf.Advise(unix.MADV_RANDOM); err != nil {
		_ = err
	}

	pm.recover()
	return pm, nil
}

// recover walks header slots backwards from header_index-1 while they
// remain uninitialized (page_index == 0), rolling header_index back past
// them and page_index back to the page after the last initialized
// header: the file can persist a reserved page_index before the header
// that claimed it.
func (pm *PageManager) recover() {
	idx := pm.header.HeaderIndex()
	for idx > 0 {
		rec := pageInfoRecordAt(pm.pageTable, idx-1)
		if rec.initialized() {
			break
		}
		idx--
	}
	if idx != pm.header.HeaderIndex() {
		pm.header.SetHeaderIndex(idx)
		next := firstDataPageIndex(pm.header.PageCount(), pm.pageSize)
		if idx > 0 {
			next = pageInfoRecordAt(pm.pageTable, idx-1).PageIndex() + 1
		}
		pm.header.SetPageIndex(next)
	}
}

// GetFreePageOnDisk reserves the next (page_index, header_index) pair,
// installing a fresh header and Compressor for it. ooo forces a
// version 0 compressor regardless of the file's configured default.
func (pm *PageManager) GetFreePageOnDisk(base int64, ooo bool) (*PageInfo, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.compacted {
		return nil, ErrCompacted
	}

	pageIdx := pm.header.PageIndex()
	headerIdx := pm.header.HeaderIndex()
	if pageIdx >= pm.header.ActualPageCount() || headerIdx >= pm.header.PageCount() {
		return nil, ErrOutOfPages
	}

	rec := pageInfoRecordAt(pm.pageTable, headerIdx)
	pm.header.SetPageIndex(pageIdx + 1)
	pm.header.SetHeaderIndex(headerIdx + 1)

	version := pm.header.CompressorVersion()
	if ooo {
		version = 0
	}

	page := pm.pageBytes(pageIdx, 0, uint16(pm.pageSize))
	return initForDisk(pm.pool, rec, page, pageIdx, 0, uint16(pm.pageSize), base, pm.header.StartTimestamp(), version, ooo), nil
}

// GetFreePageForCompaction is GetFreePageOnDisk's compaction variant:
// it first tries to pack the new logical page into the trailing space
// of the most recently allocated physical page when that space is at
// least 12 bytes, before falling back to a fresh physical page.
func (pm *PageManager) GetFreePageForCompaction(base int64, version int) (*PageInfo, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	headerIdx := pm.header.HeaderIndex()
	if headerIdx >= pm.header.PageCount() {
		return nil, ErrOutOfPages
	}

	rec := pageInfoRecordAt(pm.pageTable, headerIdx)

	if headerIdx > 0 {
		prev := pageInfoRecordAt(pm.pageTable, headerIdx-1)
		trailing := pm.pageSize - int(prev.Offset()) - int(prev.Size())
		if trailing >= compactionPackThreshold {
			pm.header.SetHeaderIndex(headerIdx + 1)
			offset := prev.Offset() + prev.Size()
			page := pm.pageBytes(prev.PageIndex(), offset, uint16(trailing))
			return initForDisk(pm.pool, rec, page, prev.PageIndex(), offset, uint16(trailing), base, pm.header.StartTimestamp(), version, false), nil
		}
	}

	pageIdx := pm.header.PageIndex()
	if pageIdx >= pm.header.ActualPageCount() {
		return nil, ErrOutOfPages
	}
	pm.header.SetPageIndex(pageIdx + 1)
	pm.header.SetHeaderIndex(headerIdx + 1)

	page := pm.pageBytes(pageIdx, 0, uint16(pm.pageSize))
	return initForDisk(pm.pool, rec, page, pageIdx, 0, uint16(pm.pageSize), base, pm.header.StartTimestamp(), version, false), nil
}

// compactionPackThreshold is the minimum trailing space (in bytes) a
// physical page must have left for compaction to pack another logical
// page into it rather than starting a fresh physical page.
const compactionPackThreshold = 12

// GetPageOnDisk returns a read-view PageInfo for an already allocated
// logical page, or ok=false if headerIndex is out of range.
func (pm *PageManager) GetPageOnDisk(headerIndex uint32) (pi *PageInfo, ok bool) {
	if headerIndex >= pm.header.HeaderIndex() {
		return nil, false
	}
	rec := pageInfoRecordAt(pm.pageTable, headerIndex)
	page := pm.pageBytes(rec.PageIndex(), rec.Offset(), rec.Size())
	version := pm.header.CompressorVersion()
	if rec.IsOutOfOrder() {
		version = 0
	}
	return initFromDisk(pm.pool, rec, page, version, pm.header.StartTimestamp()), true
}

func (pm *PageManager) pageBytes(pageIndex uint32, offset, size uint16) []byte {
	start := int(pageIndex)*pm.pageSize + int(offset)
	return pm.mf.Data()[start : start+int(size) : start+int(size)]
}

// Flush persists dirty pages and advises the OS the mapping may be
// dropped from residency. sync selects MS_SYNC over MS_ASYNC.
func (pm *PageManager) Flush(sync bool) error {
	used := int(pm.header.PageIndex()) * pm.pageSize
	if err := pm.mf.SyncRange(0, used, !sync); err != nil {
		return &IOError{Op: "flush", Err: err}
	}
	return pm.mf.Advise(unix.MADV_DONTNEED)
}

// Persist synchronously syncs the allocated page region without
// touching residency.
func (pm *PageManager) Persist() error {
	used := int(pm.header.PageIndex()) * pm.pageSize
	if err := pm.mf.SyncRange(0, used, false); err != nil {
		return &IOError{Op: "persist", Err: err}
	}
	return nil
}

// ShrinkToFit truncates the file to exactly the pages actually used by
// the last allocated header, marks the file compacted, and forbids any
// further allocation against it.
func (pm *PageManager) ShrinkToFit() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	headerIdx := pm.header.HeaderIndex()
	var lastPage uint32
	if headerIdx > 0 {
		lastPage = pageInfoRecordAt(pm.pageTable, headerIdx-1).PageIndex()
	}
	newActual := lastPage + 1
	pm.header.SetActualPageCount(newActual)
	pm.header.SetCompacted(true)
	pm.compacted = true

	total := int64(newActual) * int64(pm.pageSize)
	if err := pm.mf.Resize(total); err != nil {
		return &IOError{Op: "shrink", Err: err}
	}
	pm.header = newFileHeader(pm.mf.Data())
	pm.pageTable = pm.mf.Data()[HeaderSize : HeaderSize+int(pm.header.PageCount())*PageInfoRecordSize]
	return nil
}

// Compact rewrites every live page into a temporary sibling file,
// packing sparsely filled pages together per the same sub-page
// threshold as GetFreePageForCompaction, shrinks the result to size,
// and atomically renames it over the original path (the `.compacting`
// suffix is the same create-in-temp-then-rename idiom used for crash-safe
// file publication generally: write the new file fully under a
// provisional name, then rename it over the original only once it's
// complete). pm must not be used again after a successful Compact;
// reopen at the same path to get the compacted file.
func (pm *PageManager) Compact() error {
	pm.mu.Lock()
	if pm.compacted {
		pm.mu.Unlock()
		return ErrCompacted
	}
	n := pm.header.HeaderIndex()
	pm.mu.Unlock()

	tmpPath := pm.path + ".compacting"
	cfg := pageManagerConfig{
		PageSize:          pm.pageSize,
		PageCount:         pm.header.PageCount(),
		CompressorVersion: pm.header.CompressorVersion(),
		Millisecond:       pm.header.Millisecond(),
	}
	tmp, err := OpenPageManager(tmpPath, pm.TimeRange(), cfg, pm.pool)
	if err != nil {
		return err
	}

	for i := uint32(0); i < n; i++ {
		src, ok := pm.GetPageOnDisk(i)
		if !ok {
			continue
		}
		if err := tmp.appendCompacted(src); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}

	if err := tmp.ShrinkToFit(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := pm.mf.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, pm.path); err != nil {
		return &IOError{Op: "compact-rename", Err: err}
	}
	pm.compacted = true
	return nil
}

// appendCompacted places src's currently persisted bytes into tmp,
// packing into the previous page's trailing space when it fits
// (MergeAfter) or starting a fresh physical page otherwise (CopyTo).
// Version 0 pages persist an opaque snappy-compressed buffer shorter
// than their uncompressed working size, so their byte count must come
// from a forced Persist rather than ShrinkToFit (which reports the
// uncompressed size used for version>=1's in-place accounting).
func (tmp *PageManager) appendCompacted(src *PageInfo) error {
	var n uint16
	if src.compressor != nil && src.compressor.Version() == 0 {
		src.Persist(true)
		n = src.record.Size()
	} else {
		n = uint16(src.ShrinkToFit())
	}

	tmp.mu.Lock()
	headerIdx := tmp.header.HeaderIndex()
	if headerIdx >= tmp.header.PageCount() {
		tmp.mu.Unlock()
		return ErrOutOfPages
	}
	rec := pageInfoRecordAt(tmp.pageTable, headerIdx)

	if headerIdx > 0 {
		prevRec := pageInfoRecordAt(tmp.pageTable, headerIdx-1)
		trailing := tmp.pageSize - int(prevRec.Offset()) - int(prevRec.Size())
		if trailing >= compactionPackThreshold && int(n) <= trailing {
			offset := prevRec.Offset() + prevRec.Size()
			newPage := tmp.pageBytes(prevRec.PageIndex(), offset, n)
			copy(newPage, src.page[:n])
			tmp.header.SetHeaderIndex(headerIdx + 1)
			tmp.mu.Unlock()
			src.MergeAfter(prevRec, rec, newPage)
			return nil
		}
	}

	pageIdx := tmp.header.PageIndex()
	if pageIdx >= tmp.header.ActualPageCount() {
		tmp.mu.Unlock()
		return ErrOutOfPages
	}
	tmp.header.SetPageIndex(pageIdx + 1)
	tmp.header.SetHeaderIndex(headerIdx + 1)
	newPage := tmp.pageBytes(pageIdx, 0, n)
	copy(newPage, src.page[:n])
	tmp.mu.Unlock()

	src.CopyTo(rec, newPage, pageIdx)
	return nil
}

// TimeRange returns the file's bound timestamp range.
func (pm *PageManager) TimeRange() TimeRange {
	return TimeRange{From: pm.header.StartTimestamp(), To: pm.header.EndTimestamp()}
}

// PageCount returns the number of logical header slots currently in
// use.
func (pm *PageManager) PageCount() uint32 {
	return pm.header.HeaderIndex()
}

// Close unmaps and closes the underlying file.
func (pm *PageManager) Close() error {
	if err := pm.mf.Close(); err != nil {
		return fmt.Errorf("tsdb: close %s: %w", pm.path, err)
	}
	return nil
}
