package tsdb

import (
	"io"
	"math"

	bitstream "github.com/dgryski/go-bitstream"

	"github.com/pagedb/tsdb/pkg/bits"
)

// compressorV1MaxBitsPerPoint bounds the worst case encoding of a
// single point (a 4-bit dod control prefix plus a 64-bit fallback dod,
// and a similar fallback value encoding). IsFull checks against this
// conservatively rather than tracking an exact remaining-bits budget.
const compressorV1MaxBitsPerPoint = 160

// noWindow marks lastTrailing when no XOR window has been established
// yet, forcing the next value to start a fresh window rather than try
// to reuse a nonexistent one.
const noWindow = 65

// compressorV1 is the in-place, resumable Gorilla-style codec: delta-
// of-delta timestamps, XOR-prefix values, bit-packed directly into the
// page's mapped buffer. Requires non-decreasing timestamps.
//
// Resumability works by never trusting a live *bitstream.BitWriter across
// a flush: bitPos is the single source of truth for how many bits have
// been committed, and ensureWriter reopens a writer against that exact
// bit position (replaying the partial trailing byte) whenever bw is
// nil. This lets a page survive a process restart: the header persists
// (cursorByte, validBits) derived from bitPos, and the next process
// resumes writing into the same partial byte instead of skipping it.
type compressorV1 struct {
	base    int64
	buf     []byte
	bufSize int
	bitPos  int

	count         int
	lastTs        int64
	lastDelta     int64
	lastValueBits uint64
	lastLeading   uint8
	lastTrailing  uint8

	bw       *bitstream.BitWriter
	appender *byteAppender
}

func newCompressorV1() *compressorV1 {
	return &compressorV1{}
}

func (c *compressorV1) Init(base int64, buf []byte, bufSize int) {
	c.base = base
	c.buf = buf
	c.bufSize = bufSize
	c.bitPos = 0
	c.count = 0
	c.lastTs = int64(InvalidTimestamp)
	c.lastDelta = 0
	c.lastValueBits = 0
	c.lastLeading = 0
	c.lastTrailing = noWindow
	c.bw = nil
	c.appender = nil
}

func (c *compressorV1) Rebase(buf []byte) {
	c.buf = buf
	c.bw = nil
}

func (c *compressorV1) ensureWriter() error {
	if c.bw != nil {
		return nil
	}
	cursorByte := c.bitPos / 8
	start := c.bitPos % 8
	c.appender = &byteAppender{buf: c.buf, pos: cursorByte, max: c.bufSize}
	c.bw = bitstream.NewWriter(c.appender)
	if start > 0 {
		top := uint64(c.buf[cursorByte]) >> uint(8-start)
		if err := c.bw.WriteBits(top, start); err != nil {
			return err
		}
	}
	return nil
}

func (c *compressorV1) writeBit(b bitstream.Bit) error {
	if err := c.ensureWriter(); err != nil {
		return err
	}
	if err := c.bw.WriteBit(b); err != nil {
		return err
	}
	c.bitPos++
	return c.syncPartial()
}

func (c *compressorV1) writeBits(u uint64, nbits int) error {
	if err := c.ensureWriter(); err != nil {
		return err
	}
	if err := c.bw.WriteBits(u, nbits); err != nil {
		return err
	}
	c.bitPos += nbits
	return c.syncPartial()
}

// syncPartial pads the writer's buffered partial byte out into buf so
// every committed bit is in the page; the next write reopens the writer
// at bitPos and replays that byte's valid bits.
func (c *compressorV1) syncPartial() error {
	if c.bitPos%8 == 0 {
		return nil
	}
	err := c.bw.Flush(bitstream.Zero)
	c.bw = nil
	return err
}

func (c *compressorV1) writeDod(dod int64) error {
	switch {
	case dod == 0:
		return c.writeBit(bitstream.Zero)
	case dod >= -64 && dod <= 63:
		if err := c.writeBits(0b10, 2); err != nil {
			return err
		}
		return c.writeBits(uint64(dod+64), 7)
	case dod >= -256 && dod <= 255:
		if err := c.writeBits(0b110, 3); err != nil {
			return err
		}
		return c.writeBits(uint64(dod+256), 9)
	case dod >= -2048 && dod <= 2047:
		if err := c.writeBits(0b1110, 4); err != nil {
			return err
		}
		return c.writeBits(uint64(dod+2048), 12)
	default:
		if err := c.writeBits(0b1111, 4); err != nil {
			return err
		}
		return c.writeBits(uint64(dod), 64)
	}
}

func (c *compressorV1) writeXor(value float64) error {
	vbits := math.Float64bits(value)
	xor := vbits ^ c.lastValueBits
	if xor == 0 {
		if err := c.writeBit(bitstream.Zero); err != nil {
			return err
		}
		c.lastValueBits = vbits
		return nil
	}
	if err := c.writeBit(bitstream.One); err != nil {
		return err
	}

	leading := uint8(bits.LeadingZeros64(xor))
	if leading > 31 {
		leading = 31
	}
	trailing := uint8(bits.TrailingZeros64(xor))

	if c.lastTrailing != noWindow && leading >= c.lastLeading && trailing >= c.lastTrailing {
		if err := c.writeBit(bitstream.Zero); err != nil {
			return err
		}
		sig := 64 - int(c.lastLeading) - int(c.lastTrailing)
		if err := c.writeBits(xor>>c.lastTrailing, sig); err != nil {
			return err
		}
	} else {
		if err := c.writeBit(bitstream.One); err != nil {
			return err
		}
		if err := c.writeBits(uint64(leading), 5); err != nil {
			return err
		}
		sig := 64 - int(leading) - int(trailing)
		if err := c.writeBits(uint64(sig-1), 6); err != nil {
			return err
		}
		if err := c.writeBits(xor>>trailing, sig); err != nil {
			return err
		}
		c.lastLeading, c.lastTrailing = leading, trailing
	}
	c.lastValueBits = vbits
	return nil
}

func (c *compressorV1) Compress(ts int64, value float64) (bool, error) {
	if c.count > 0 && ts < c.lastTs {
		return false, ErrOutOfOrder
	}
	if c.IsFull() {
		return false, nil
	}

	if c.count == 0 {
		if err := c.writeBits(math.Float64bits(value), 64); err != nil {
			return false, err
		}
		c.lastTs = ts
		c.lastDelta = 0
		c.lastValueBits = math.Float64bits(value)
		c.count = 1
		return true, nil
	}

	delta := ts - c.lastTs
	dod := delta - c.lastDelta
	if err := c.writeDod(dod); err != nil {
		return false, err
	}
	if err := c.writeXor(value); err != nil {
		return false, err
	}
	c.lastDelta = delta
	c.lastTs = ts
	c.count++
	return true, nil
}

// byteReader adapts a byte slice to io.Reader for bitstream.BitReader.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) Read(p []byte) (int, error) {
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func readDod(br *bitstream.BitReader) (int64, int, error) {
	b, err := br.ReadBit()
	if err != nil {
		return 0, 0, err
	}
	if b == bitstream.Zero {
		return 0, 1, nil
	}
	b, err = br.ReadBit()
	if err != nil {
		return 0, 0, err
	}
	if b == bitstream.Zero {
		v, err := br.ReadBits(7)
		return int64(v) - 64, 2 + 7, err
	}
	b, err = br.ReadBit()
	if err != nil {
		return 0, 0, err
	}
	if b == bitstream.Zero {
		v, err := br.ReadBits(9)
		return int64(v) - 256, 3 + 9, err
	}
	b, err = br.ReadBit()
	if err != nil {
		return 0, 0, err
	}
	if b == bitstream.Zero {
		v, err := br.ReadBits(12)
		return int64(v) - 2048, 4 + 12, err
	}
	v, err := br.ReadBits(64)
	return int64(v), 4 + 64, err
}

func readXor(br *bitstream.BitReader, prevBits uint64, leading, trailing uint8) (uint64, uint8, uint8, int, error) {
	b, err := br.ReadBit()
	if err != nil {
		return prevBits, leading, trailing, 0, err
	}
	if b == bitstream.Zero {
		return prevBits, leading, trailing, 1, nil
	}
	b, err = br.ReadBit()
	if err != nil {
		return prevBits, leading, trailing, 0, err
	}
	if b == bitstream.Zero {
		sig := 64 - int(leading) - int(trailing)
		v, err := br.ReadBits(sig)
		xor := v << trailing
		return prevBits ^ xor, leading, trailing, 2 + sig, err
	}
	lv, err := br.ReadBits(5)
	if err != nil {
		return prevBits, leading, trailing, 0, err
	}
	sm1, err := br.ReadBits(6)
	if err != nil {
		return prevBits, leading, trailing, 0, err
	}
	sig := int(sm1) + 1
	v, err := br.ReadBits(sig)
	newLeading := uint8(lv)
	newTrailing := uint8(64 - int(lv) - sig)
	xor := v << newTrailing
	return prevBits ^ xor, newLeading, newTrailing, 2 + 5 + 6 + sig, err
}

// decode walks the bit stream from byte 0 up to maxBits, calling pred
// for each candidate point and stopping without including it the first
// time pred returns false (or maxBits is exhausted). It also rebuilds
// the compressor's running state (lastTs, lastDelta, lastValueBits,
// window, count, bitPos) so the compressor can resume appending after
// the call, which is what makes this the basis for both Uncompress and
// Restore.
func (c *compressorV1) decode(out []DataPoint, maxBits int, pred func(DataPoint) bool) []DataPoint {
	if maxBits == 0 {
		return out
	}
	br := bitstream.NewReader(&byteReader{buf: c.buf})

	read := 0
	ts := c.base
	var delta int64
	var valueBits uint64
	var leading uint8
	trailing := uint8(noWindow)
	count := 0

	for read < maxBits {
		if count == 0 {
			v, err := br.ReadBits(64)
			if err != nil {
				break
			}
			read += 64
			valueBits = v
		} else {
			dod, n, err := readDod(br)
			if err != nil {
				break
			}
			read += n
			delta += dod
			ts += delta

			nb, nl, nt, n2, err := readXor(br, valueBits, leading, trailing)
			if err != nil {
				break
			}
			read += n2
			valueBits, leading, trailing = nb, nl, nt
		}

		dp := DataPoint{Timestamp: ts, Value: math.Float64frombits(valueBits)}
		if pred != nil && !pred(dp) {
			break
		}
		out = append(out, dp)
		count++
	}

	c.lastTs = ts
	c.lastDelta = delta
	c.lastValueBits = valueBits
	c.lastLeading = leading
	c.lastTrailing = trailing
	c.count = count
	c.bitPos = read
	c.bw = nil
	return out
}

func (c *compressorV1) Uncompress(out []DataPoint) []DataPoint {
	return c.decode(out, c.bitPos, nil)
}

func (c *compressorV1) Restore(out []DataPoint, pos PagePosition, pred func(DataPoint) bool) []DataPoint {
	maxBits := int(pos.Cursor)*8 + int(pos.Start)
	return c.decode(out, maxBits, pred)
}

func (c *compressorV1) SavePosition() PagePosition {
	return PagePosition{Cursor: uint16(c.bitPos / 8), Start: uint8(c.bitPos % 8)}
}

func (c *compressorV1) SaveBuffer(dst []byte) int {
	// Version 1 writes in place; there is nothing external to copy.
	return 0
}

func (c *compressorV1) Size() int {
	return (c.bitPos + 7) / 8
}

func (c *compressorV1) IsFull() bool {
	return c.bufSize*8-c.bitPos < compressorV1MaxBitsPerPoint
}

func (c *compressorV1) IsEmpty() bool {
	return c.count == 0
}

func (c *compressorV1) DataPointCount() int {
	return c.count
}

func (c *compressorV1) LastTimestamp() int64 {
	if c.count == 0 {
		return int64(InvalidTimestamp)
	}
	return c.lastTs
}

func (c *compressorV1) Version() int {
	return 1
}

func (c *compressorV1) Reset() {
	c.base = 0
	c.buf = nil
	c.bufSize = 0
	c.bitPos = 0
	c.count = 0
	c.lastTs = int64(InvalidTimestamp)
	c.lastDelta = 0
	c.lastValueBits = 0
	c.lastLeading = 0
	c.lastTrailing = noWindow
	c.bw = nil
	c.appender = nil
}

// byteAppender lets a *bitstream.BitWriter append full bytes directly into
// a mapped page buffer starting at an arbitrary offset, bounded by max.
type byteAppender struct {
	buf []byte
	pos int
	max int
}

func (a *byteAppender) WriteByte(b byte) error {
	if a.pos >= a.max {
		return io.ErrShortWrite
	}
	a.buf[a.pos] = b
	a.pos++
	return nil
}

func (a *byteAppender) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := a.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}
