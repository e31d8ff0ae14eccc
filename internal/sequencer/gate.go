package sequencer

import "sync/atomic"

// Gate tracks the latest applied version of one (game, stream) pair. An
// envelope is admitted only when it is exactly the next version; everything
// else is dropped and never retried.
type Gate struct {
	latest atomic.Uint64
}

// Admit reports whether version is next and, if so, records it as applied.
func (g *Gate) Admit(version uint64) bool {
	return g.latest.CompareAndSwap(version-1, version)
}

// Latest returns the last admitted version; 0 before anything was admitted.
func (g *Gate) Latest() uint64 {
	return g.latest.Load()
}
