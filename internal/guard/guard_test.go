package guard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestGateSingleFlight(t *testing.T) {
	var g Gate

	ok, _ := g.TryEnter(t0)
	assert.True(t, ok)

	ok, reason := g.TryEnter(t0)
	assert.False(t, ok)
	assert.Equal(t, "busy", reason)

	g.Release()
	ok, _ = g.TryEnter(t0)
	assert.True(t, ok)
}

func TestGateCooldown(t *testing.T) {
	var g Gate

	ok, _ := g.TryEnter(t0)
	assert.True(t, ok)
	g.Leave(t0, time.Minute)

	ok, reason := g.TryEnter(t0.Add(59 * time.Second))
	assert.False(t, ok)
	assert.Equal(t, "cooldown", reason)
	assert.False(t, g.Running(), "a rejected cooldown check must not leave the gate held")

	ok, _ = g.TryEnter(t0.Add(time.Minute))
	assert.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), g.CooldownUntil())
}

func TestGateReset(t *testing.T) {
	var g Gate
	g.TryEnter(t0)
	g.Leave(t0, time.Hour)
	g.TryEnter(t0) // rejected

	g.Reset()
	assert.True(t, g.CooldownUntil().IsZero())
	ok, _ := g.TryEnter(t0)
	assert.True(t, ok)
}

func TestGateConcurrentEntrants(t *testing.T) {
	var g Gate
	var admitted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.TryEnter(t0); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}
