package tsdb

import "encoding/binary"

// Byte layout of tsdb_header and page_info_on_disk, per the on-disk
// format contract: little-endian, fixed width, matched byte-for-byte.
const (
	// HeaderSize is sizeof(tsdb_header).
	HeaderSize = 36

	// PageInfoRecordSize is sizeof(page_info_on_disk).
	PageInfoRecordSize = 20
)

const (
	headerFlagCompacted   = 1 << 0
	headerFlagMillisecond = 1 << 1
	// bits 4..7 hold the compressor version, 0-15.
	compressorVersionShift = 4
	compressorVersionMask  = 0x0F
)

const (
	pageFlagFull = 1 << 0
	pageFlagOOO  = 1 << 1
)

// fileHeader is a thin accessor over the HeaderSize bytes at the start
// of a mapped file. It performs no copying: every getter/setter reads
// or writes directly into the backing mmap region.
type fileHeader struct {
	data []byte
}

func newFileHeader(data []byte) fileHeader {
	return fileHeader{data: data[:HeaderSize:HeaderSize]}
}

func (h fileHeader) MajorVersion() uint8     { return h.data[0] }
func (h fileHeader) SetMajorVersion(v uint8) { h.data[0] = v }

func (h fileHeader) MinorVersion() uint8     { return h.data[1] }
func (h fileHeader) SetMinorVersion(v uint8) { h.data[1] = v }

func (h fileHeader) flags() uint8     { return h.data[2] }
func (h fileHeader) setFlags(v uint8) { h.data[2] = v }

func (h fileHeader) Compacted() bool {
	return h.flags()&headerFlagCompacted != 0
}

func (h fileHeader) SetCompacted(v bool) {
	f := h.flags()
	if v {
		f |= headerFlagCompacted
	} else {
		f &^= headerFlagCompacted
	}
	h.setFlags(f)
}

func (h fileHeader) Millisecond() bool {
	return h.flags()&headerFlagMillisecond != 0
}

func (h fileHeader) SetMillisecond(v bool) {
	f := h.flags()
	if v {
		f |= headerFlagMillisecond
	} else {
		f &^= headerFlagMillisecond
	}
	h.setFlags(f)
}

func (h fileHeader) CompressorVersion() int {
	return int((h.flags() >> compressorVersionShift) & compressorVersionMask)
}

func (h fileHeader) SetCompressorVersion(v int) {
	f := h.flags() &^ (compressorVersionMask << compressorVersionShift)
	f |= uint8(v&compressorVersionMask) << compressorVersionShift
	h.setFlags(f)
}

func (h fileHeader) PageCount() uint32     { return binary.LittleEndian.Uint32(h.data[4:8]) }
func (h fileHeader) SetPageCount(v uint32) { binary.LittleEndian.PutUint32(h.data[4:8], v) }

func (h fileHeader) PageIndex() uint32     { return binary.LittleEndian.Uint32(h.data[8:12]) }
func (h fileHeader) SetPageIndex(v uint32) { binary.LittleEndian.PutUint32(h.data[8:12], v) }

func (h fileHeader) HeaderIndex() uint32     { return binary.LittleEndian.Uint32(h.data[12:16]) }
func (h fileHeader) SetHeaderIndex(v uint32) { binary.LittleEndian.PutUint32(h.data[12:16], v) }

func (h fileHeader) ActualPageCount() uint32 { return binary.LittleEndian.Uint32(h.data[16:20]) }
func (h fileHeader) SetActualPageCount(v uint32) {
	binary.LittleEndian.PutUint32(h.data[16:20], v)
}

func (h fileHeader) StartTimestamp() int64 {
	return int64(binary.LittleEndian.Uint64(h.data[20:28]))
}
func (h fileHeader) SetStartTimestamp(v int64) {
	binary.LittleEndian.PutUint64(h.data[20:28], uint64(v))
}

func (h fileHeader) EndTimestamp() int64 {
	return int64(binary.LittleEndian.Uint64(h.data[28:36]))
}
func (h fileHeader) SetEndTimestamp(v int64) {
	binary.LittleEndian.PutUint64(h.data[28:36], uint64(v))
}

// firstDataPageIndex returns the index of the first physical data
// page: the size of the header plus the page-info table, rounded up to
// whole pages of pageSize bytes.
func firstDataPageIndex(pageCount uint32, pageSize int) uint32 {
	tableEnd := HeaderSize + int(pageCount)*PageInfoRecordSize
	pages := (tableEnd + pageSize - 1) / pageSize
	return uint32(pages)
}

// pageInfoRecord is an accessor over one PageInfoRecordSize slot of the
// mapped page-info table.
type pageInfoRecord struct {
	data []byte
}

func pageInfoRecordAt(table []byte, index uint32) pageInfoRecord {
	off := int(index) * PageInfoRecordSize
	return pageInfoRecord{data: table[off : off+PageInfoRecordSize : off+PageInfoRecordSize]}
}

func (r pageInfoRecord) PageIndex() uint32     { return binary.LittleEndian.Uint32(r.data[0:4]) }
func (r pageInfoRecord) SetPageIndex(v uint32) { binary.LittleEndian.PutUint32(r.data[0:4], v) }

func (r pageInfoRecord) Offset() uint16     { return binary.LittleEndian.Uint16(r.data[4:6]) }
func (r pageInfoRecord) SetOffset(v uint16) { binary.LittleEndian.PutUint16(r.data[4:6], v) }

func (r pageInfoRecord) Size() uint16     { return binary.LittleEndian.Uint16(r.data[6:8]) }
func (r pageInfoRecord) SetSize(v uint16) { binary.LittleEndian.PutUint16(r.data[6:8], v) }

func (r pageInfoRecord) Cursor() uint16     { return binary.LittleEndian.Uint16(r.data[8:10]) }
func (r pageInfoRecord) SetCursor(v uint16) { binary.LittleEndian.PutUint16(r.data[8:10], v) }

func (r pageInfoRecord) Start() uint8     { return r.data[10] }
func (r pageInfoRecord) SetStart(v uint8) { r.data[10] = v }

func (r pageInfoRecord) recordFlags() uint8     { return r.data[11] }
func (r pageInfoRecord) setRecordFlags(v uint8) { r.data[11] = v }

func (r pageInfoRecord) IsFull() bool { return r.recordFlags()&pageFlagFull != 0 }
func (r pageInfoRecord) SetFull(v bool) {
	f := r.recordFlags()
	if v {
		f |= pageFlagFull
	} else {
		f &^= pageFlagFull
	}
	r.setRecordFlags(f)
}

func (r pageInfoRecord) IsOutOfOrder() bool { return r.recordFlags()&pageFlagOOO != 0 }
func (r pageInfoRecord) SetOutOfOrder(v bool) {
	f := r.recordFlags()
	if v {
		f |= pageFlagOOO
	} else {
		f &^= pageFlagOOO
	}
	r.setRecordFlags(f)
}

func (r pageInfoRecord) TimestampFrom() uint32 { return binary.LittleEndian.Uint32(r.data[12:16]) }
func (r pageInfoRecord) SetTimestampFrom(v uint32) {
	binary.LittleEndian.PutUint32(r.data[12:16], v)
}

func (r pageInfoRecord) TimestampTo() uint32 { return binary.LittleEndian.Uint32(r.data[16:20]) }
func (r pageInfoRecord) SetTimestampTo(v uint32) {
	binary.LittleEndian.PutUint32(r.data[16:20], v)
}

// initialized reports whether this header slot has ever been written
// to, used by PageManager's crash-recovery walk: an uninitialized
// trailing header has page_index == 0 and was never really assigned
// (page 0 is always the header/page-info region, never a data page).
func (r pageInfoRecord) initialized() bool {
	return r.PageIndex() != 0
}
