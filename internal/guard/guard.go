// Package guard provides the single-flight plus cooldown gate shared by the
// detection loops.
package guard

import (
	"sync"
	"sync/atomic"
	"time"
)

// Gate admits at most one cycle at a time and, between cycles, enforces a
// cooldown chosen by the caller when the cycle ends. A busy or cooling gate
// rejects the caller; nothing is queued.
type Gate struct {
	running atomic.Bool

	mu          sync.Mutex
	nextAllowed time.Time
}

// TryEnter claims the gate if no cycle is running and the cooldown has
// passed. A successful TryEnter must be paired with Leave or Release.
func (g *Gate) TryEnter(now time.Time) (ok bool, reason string) {
	if !g.running.CompareAndSwap(false, true) {
		return false, "busy"
	}

	g.mu.Lock()
	next := g.nextAllowed
	g.mu.Unlock()

	if now.Before(next) {
		g.running.Store(false)
		return false, "cooldown"
	}
	return true, ""
}

// Leave ends a completed cycle and starts a cooldown of the given length.
func (g *Gate) Leave(now time.Time, cooldown time.Duration) {
	g.mu.Lock()
	g.nextAllowed = now.Add(cooldown)
	g.mu.Unlock()
	g.running.Store(false)
}

// Release ends a cycle without touching the cooldown.
func (g *Gate) Release() {
	g.running.Store(false)
}

// Running reports whether a cycle currently holds the gate.
func (g *Gate) Running() bool {
	return g.running.Load()
}

// CooldownUntil returns when the gate next admits a cycle.
func (g *Gate) CooldownUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextAllowed
}

// Reset clears both the running flag and the cooldown.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.nextAllowed = time.Time{}
	g.mu.Unlock()
	g.running.Store(false)
}
