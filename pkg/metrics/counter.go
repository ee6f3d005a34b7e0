package metrics

import "sync/atomic"

// Counter is a monotonic, atomically updated integer metric.
type Counter struct {
	val  int64
	desc *desc
}

// Name returns the name of the counter, or "" if it was not obtained
// from a Group.
func (c *Counter) Name() string {
	if c.desc == nil {
		return ""
	}
	return c.desc.Name
}

// Add atomically adds delta to the counter.
func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.val, delta)
}

// Value atomically returns the current value of the counter.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.val)
}
