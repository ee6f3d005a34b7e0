package tsdb

// PagePosition identifies a resumable cursor inside a page's compressed
// buffer: the byte offset of the in-progress byte (Cursor) and how many
// of its bits are already valid (Start). Persisted verbatim into a
// page_info_on_disk record's cursor/start fields.
type PagePosition struct {
	Cursor uint16
	Start  uint8
}

// Compressor encodes a stream of DataPoints for a single page's backing
// buffer. Version 0 buffers points externally and is reorderable;
// version >=1 writes in place into the mapped buffer and requires
// non-decreasing timestamps.
//
// A Compressor is reused across pages via the memory pool: Init (or
// Rebase) rebinds it to a new backing buffer without reallocating.
type Compressor interface {
	// Init binds the compressor to a fresh buffer for a page whose
	// first timestamp will be base.
	Init(base int64, buf []byte, bufSize int)

	// Rebase rebinds an already-initialized compressor to buf, used
	// when the page's backing buffer moves (growth, compaction) but the
	// encoded content is unchanged.
	Rebase(buf []byte)

	// Compress encodes one point. Returns false if the buffer has no
	// room left (the page should be marked full); returns
	// ErrOutOfOrder if ts precedes the compressor's last timestamp and
	// the codec enforces monotonicity.
	Compress(ts int64, value float64) (bool, error)

	// Uncompress decodes every point held so far, appending to out.
	Uncompress(out []DataPoint) []DataPoint

	// Restore decodes starting at pos, calling pred for each candidate
	// point and stopping (without including it) the first time pred
	// returns false. Used to resume a compressor after reopening a
	// file at a previously persisted cursor.
	Restore(out []DataPoint, pos PagePosition, pred func(DataPoint) bool) []DataPoint

	// SavePosition returns the cursor to persist into the page's
	// page_info_on_disk record so a future Restore can resume exactly
	// where this compressor left off.
	SavePosition() PagePosition

	// SaveBuffer copies this compressor's working state into dst (used
	// only by version 0, whose working buffer is external to the
	// page's mapped storage) and returns the number of bytes written.
	SaveBuffer(dst []byte) int

	// Size returns the number of bytes of buf currently in use.
	Size() int

	// IsFull reports whether the compressor has no room for another
	// point without growing its buffer.
	IsFull() bool

	// IsEmpty reports whether the compressor holds zero points.
	IsEmpty() bool

	// DataPointCount returns the number of points encoded so far.
	DataPointCount() int

	// LastTimestamp returns the most recently compressed timestamp, or
	// InvalidTimestamp if empty.
	LastTimestamp() int64

	// Version identifies the on-disk encoding, stored in the owning
	// file's header flags nibble.
	Version() int

	// Reset discards all encoded state, preparing the compressor for
	// reuse by the memory pool on a different page.
	Reset()
}

// bufferRestorer is implemented by compressors whose persisted form is
// an opaque encoded buffer rather than a resumable bitstream (version
// 0's snappy-compressed record stream). initFromDisk type-asserts for
// it rather than adding it to the Compressor interface, since version
// >=1 has no buffer to decode.
type bufferRestorer interface {
	RestoreFromBuffer(compressed []byte) error
}

// NewCompressor returns a fresh Compressor for the given on-disk
// version. Version 0 is always used for out-of-order pages regardless
// of a file's configured default version.
func NewCompressor(version int) Compressor {
	switch version {
	case 0:
		return newCompressorV0()
	default:
		return newCompressorV1()
	}
}
