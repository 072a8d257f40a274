// Package flight provides a drop-on-contention single-flight token.
//
// Unlike golang.org/x/sync/singleflight, which makes late callers wait for and
// share the in-flight result, a Guard refuses late callers outright: a second
// wake-word trigger during a capture must be dropped, not queued.
package flight

import (
	"sync"
	"sync/atomic"
)

// Guard admits at most one holder at a time. The zero value is ready to use.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire takes the token. When ok is false the caller must not proceed and
// release is nil. The returned release is safe to call more than once; only the
// first call frees the token.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.busy.Store(false) })
	}, true
}

// Busy reports whether the token is currently held.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
