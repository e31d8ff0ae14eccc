package hearts

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// TurnMutex serializes plays within one game.
type TurnMutex struct {
	sem *semaphore.Weighted
}

// NewTurnMutex creates an unlocked turn mutex.
func NewTurnMutex() *TurnMutex {
	return &TurnMutex{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the turn is free or ctx is done. The returned guard
// must be released; `defer guard.Release()` covers every exit path.
func (m *TurnMutex) Acquire(ctx context.Context) (*TurnGuard, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &TurnGuard{mutex: m}, nil
}

// Do runs fn while holding the turn.
func (m *TurnMutex) Do(ctx context.Context, fn func(*TurnGuard) error) error {
	guard, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn(guard)
}

// TurnGuard is proof that its holder owns the turn.
type TurnGuard struct {
	mutex    *TurnMutex
	released atomic.Bool
}

// Release gives the turn back. It is safe to call more than once.
func (g *TurnGuard) Release() {
	if g == nil {
		return
	}
	if g.released.CompareAndSwap(false, true) {
		g.mutex.sem.Release(1)
	}
}

// Holds reports whether g is an unreleased guard of m.
func (g *TurnGuard) Holds(m *TurnMutex) bool {
	return g != nil && g.mutex == m && !g.released.Load()
}
