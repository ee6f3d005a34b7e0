package tsdb

import "testing"

func TestPoolGetPutRoutesByVersion(t *testing.T) {
	p := NewPool()

	v0 := p.Get(0)
	if v0.Version() != 0 {
		t.Fatalf("Get(0).Version() = %d, want 0", v0.Version())
	}
	v1 := p.Get(1)
	if v1.Version() != 1 {
		t.Fatalf("Get(1).Version() = %d, want 1", v1.Version())
	}

	v0.Init(0, make([]byte, 64), 64)
	if _, err := v0.Compress(0, 1.0); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	p.Put(v0)

	recycled := p.Get(0)
	if !recycled.IsEmpty() {
		t.Fatalf("expected Put to Reset the compressor before recycling")
	}
}
