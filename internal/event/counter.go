package event

import "sync/atomic"

// Counter is the version sequence of one (game, stream) pair. Versions start
// at 1; the zero value is ready to use.
type Counter struct {
	v atomic.Uint64
}

// Next allocates the next version.
func (c *Counter) Next() uint64 {
	return c.v.Add(1)
}

// Current returns the last allocated version.
func (c *Counter) Current() uint64 {
	return c.v.Load()
}

// release hands version v back if nothing was allocated after it.
func (c *Counter) release(v uint64) bool {
	return c.v.CompareAndSwap(v, v-1)
}
