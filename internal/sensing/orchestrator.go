// Package sensing runs the two detection loops over the shared event buffer
// and snapshot cache and hands every detection to a single observer.
package sensing

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/actionsum/nudge/internal/focus"
	"github.com/actionsum/nudge/internal/guard"
	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/internal/reasoning"
	"github.com/actionsum/nudge/internal/scorer"
)

// ErrRunning is returned by Start when the loops are already running.
var ErrRunning = errors.New("orchestrator already running")

// Observer receives every emitted result. It is called from the loop
// goroutine that produced the result.
type Observer interface {
	OnResult(models.Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(models.Result)

func (f ObserverFunc) OnResult(r models.Result) { f(r) }

// Settings schedules the loops.
type Settings struct {
	FastInterval  time.Duration
	FastWindow    time.Duration
	FastCooldown  time.Duration
	SlowInterval  time.Duration
	ReasonTimeout time.Duration
	Sensitivity   float64
	Focus         focus.Settings
}

// Orchestrator owns the fast burst loop and the slow focus loop. Both loops
// are single-flight and keep their own cooldown.
type Orchestrator struct {
	events       focus.EventSource
	reasoner     reasoning.Reasoner
	capabilities focus.CapabilityLister
	searcher     focus.CapabilitySearcher
	detector     *focus.Detector
	observer     Observer
	settings     Settings
	scorer       atomic.Pointer[scorer.Scorer]
	burstGate    guard.Gate
	now          func() time.Time

	emitted   atomic.Int64
	lastBurst atomic.Pointer[BurstCycle]

	// lifecycle serialises Start and Stop, including Stop's wait and reset.
	lifecycle sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now for both loops.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithCapabilities wires the capability catalog into both loops.
func WithCapabilities(lister focus.CapabilityLister, searcher focus.CapabilitySearcher) Option {
	return func(o *Orchestrator) {
		o.capabilities = lister
		o.searcher = searcher
	}
}

// New wires an orchestrator. Nothing runs until Start.
func New(events focus.EventSource, snapshots focus.SnapshotSource, reasoner reasoning.Reasoner, observer Observer, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		events:   events,
		reasoner: reasoner,
		observer: observer,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.scorer.Store(scorer.New(settings.Sensitivity))

	if settings.Focus.ReasonTimeout <= 0 {
		settings.Focus.ReasonTimeout = settings.ReasonTimeout
	}
	focusOpts := []focus.Option{focus.WithClock(o.now)}
	if o.capabilities != nil || o.searcher != nil {
		focusOpts = append(focusOpts, focus.WithCapabilities(o.capabilities, o.searcher))
	}
	o.detector = focus.NewDetector(events, snapshots, reasoner, settings.Focus, focusOpts...)
	return o
}

// Start launches both loops. They stop when ctx is cancelled or Stop is
// called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true

	o.wg.Add(2)
	go o.loop(ctx, "burst", o.settings.FastInterval, o.fastTick)
	go o.loop(ctx, "focus", o.settings.SlowInterval, o.slowTick)

	log.Printf("Sensing started (fast every %v, slow every %v)", o.settings.FastInterval, o.settings.SlowInterval)
	return nil
}

// Stop cancels both loops and any call in flight, waits for them to return,
// then clears single-flight and cooldown state so Start works again.
func (o *Orchestrator) Stop() {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.cancel()
	o.running = false
	o.mu.Unlock()

	o.wg.Wait()
	o.burstGate.Reset()
	o.detector.Reset()
	log.Println("Sensing stopped")
}

// Running reports whether the loops are active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// SetSensitivity swaps the burst scorer. Takes effect on the next tick.
func (o *Orchestrator) SetSensitivity(sensitivity float64) {
	o.scorer.Store(scorer.New(sensitivity))
}

// SetEvidenceMinimum changes the focus policy. Takes effect on the next
// cycle.
func (o *Orchestrator) SetEvidenceMinimum(n int) {
	o.detector.SetEvidenceMinimum(n)
}

func (o *Orchestrator) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	defer o.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (o *Orchestrator) fastTick(ctx context.Context) {
	o.TickBurst(ctx)
}

func (o *Orchestrator) slowTick(ctx context.Context) {
	o.TickFocus(ctx)
}

// TickFocus runs one focus cycle and emits its result, if any. The reasoning
// timeout applies to the judgment call alone, not to the capability search
// that follows it.
func (o *Orchestrator) TickFocus(ctx context.Context) (*models.Result, focus.Outcome) {
	verdict, outcome := o.detector.Tick(ctx)
	if verdict == nil {
		return nil, outcome
	}

	r := models.Result{
		ID:          uuid.NewString(),
		Source:      models.SourceFocus,
		Confidence:  verdict.Confidence,
		Theme:       verdict.Theme,
		Observation: verdict.Observation,
		Insight:     verdict.Insight,
		Offer:       verdict.Offer,
		DetectedAt:  o.now(),
	}
	o.emit(r)
	return &r, outcome
}

func (o *Orchestrator) emit(r models.Result) {
	o.emitted.Add(1)
	log.Printf("Detected %s (%s): %s", r.Source, r.Confidence, r.Theme)
	if o.observer != nil {
		o.deliver(r)
	}
}

// deliver hands r to the observer. A panicking observer is logged and must
// not take the loop down with it.
func (o *Orchestrator) deliver(r models.Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Observer panicked on %s result %s: %v", r.Source, r.ID, p)
		}
	}()
	o.observer.OnResult(r)
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.settings.ReasonTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.settings.ReasonTimeout)
}
