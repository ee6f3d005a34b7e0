package tsdb

import "sync"

// RecyclableKind identifies what a Pool slot holds. Compressors are
// pooled separately per version since their zero values are not
// interchangeable (a version 0 compressor holds an external point
// slice; a version 1 compressor holds none).
type RecyclableKind int

const (
	KindCompressorV0 RecyclableKind = iota
	KindCompressorV1
)

// Pool is the exclusive source of Compressor instances for PageInfo:
// rather than allocate-and-garbage-collect one per page, PageInfo
// borrows one from here and returns it on flush, so steady-state
// ingest allocates no compressors after warmup.
type Pool struct {
	v0 sync.Pool
	v1 sync.Pool
}

// NewPool returns a Pool ready for use.
func NewPool() *Pool {
	p := &Pool{}
	p.v0.New = func() any { return newCompressorV0() }
	p.v1.New = func() any { return newCompressorV1() }
	return p
}

// Get returns a Compressor of the requested version, either recycled
// or freshly allocated.
func (p *Pool) Get(version int) Compressor {
	if version == 0 {
		return p.v0.Get().(*compressorV0)
	}
	return p.v1.Get().(*compressorV1)
}

// Put resets c and returns it to the pool matching its version.
func (p *Pool) Put(c Compressor) {
	c.Reset()
	if c.Version() == 0 {
		p.v0.Put(c)
		return
	}
	p.v1.Put(c)
}
