// Package randutil derives reproducible random sources for dealing.
package randutil

import (
	rand "math/rand/v2"
	"sync"
	"time"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a *rand.Rand seeded deterministically from seed.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Seed returns seed unchanged when non-zero, otherwise a time-derived seed.
// Callers log the result so a game can be replayed.
func Seed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// Source hands out independent generators derived from one root seed, so
// every game gets its own *rand.Rand and no generator is shared between
// goroutines.
type Source struct {
	mu   sync.Mutex
	root *rand.Rand
}

// NewSource creates a Source rooted at seed.
func NewSource(seed int64) *Source {
	return &Source{root: New(seed)}
}

// Next returns a fresh generator.
func (s *Source) Next() *rand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return New(s.root.Int64())
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
