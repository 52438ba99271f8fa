// Package focus decides whether the user is sustaining attention on a single
// subject. A cycle runs three layers and stops at the first that says no:
// a cheap local pre-screen, timeline and metric synthesis, and a judgment by
// the external reasoning service.
package focus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actionsum/nudge/internal/guard"
	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/internal/reasoning"
	"github.com/actionsum/nudge/internal/reasoning/extract"
)

const maxOfferMatches = 3

// EventSource yields a point-in-time copy of recent events.
type EventSource interface {
	Snapshot(window time.Duration) []models.BehaviorEvent
}

// SnapshotSource yields every tab snapshot younger than maxAge.
type SnapshotSource interface {
	AllValid(maxAge time.Duration) []models.TabSnapshot
}

// CapabilitySearcher finds capabilities for keywords. It never fails; an
// unavailable backend yields no matches.
type CapabilitySearcher interface {
	Search(ctx context.Context, keywords []string, limit int) []models.CapabilityMatch
}

// CapabilityLister names the capabilities the user already has.
type CapabilityLister interface {
	Names(ctx context.Context) []string
}

// Settings tunes a Detector.
type Settings struct {
	Window          time.Duration
	SnapshotMaxAge  time.Duration
	MissCooldown    time.Duration
	HitCooldown     time.Duration
	TimelineCap     int
	EvidenceMinimum int
	SearchTimeout   time.Duration
	SearchLimit     int
	ReasonTimeout   time.Duration // Bounds the judgment call only
}

// Outcome says how a Tick ended.
type Outcome string

const (
	OutcomeBusy        Outcome = "busy"
	OutcomeCooldown    Outcome = "cooldown"
	OutcomeNoCandidate Outcome = "no_candidate"
	OutcomeMiss        Outcome = "miss"
	OutcomeHit         Outcome = "hit"
)

// Cycle records what the last completed or aborted cycle saw.
type Cycle struct {
	At         time.Time               `json:"at"`
	Outcome    Outcome                 `json:"outcome"`
	TriggerApp string                  `json:"trigger_app,omitempty"`
	Timeline   int                     `json:"timeline_entries"`
	Metrics    models.ObjectiveMetrics `json:"metrics"`
	Theme      string                  `json:"theme,omitempty"`
}

// Detector runs focus cycles. It is safe to call Tick from several
// goroutines; overlapping calls are skipped.
type Detector struct {
	events       EventSource
	snapshots    SnapshotSource
	reasoner     reasoning.Reasoner
	searcher     CapabilitySearcher
	capabilities CapabilityLister
	settings     Settings
	evidence     atomic.Int32
	gate         guard.Gate
	now          func() time.Time

	mu   sync.Mutex
	last *Cycle
}

// Option customises a Detector.
type Option func(*Detector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// WithCapabilities wires the capability catalog. Without it the prompt lists
// no capabilities and no search is attempted.
func WithCapabilities(lister CapabilityLister, searcher CapabilitySearcher) Option {
	return func(d *Detector) {
		d.capabilities = lister
		d.searcher = searcher
	}
}

// NewDetector wires a detector from its collaborators.
func NewDetector(events EventSource, snapshots SnapshotSource, reasoner reasoning.Reasoner, settings Settings, opts ...Option) *Detector {
	if settings.TimelineCap <= 0 {
		settings.TimelineCap = 15
	}
	if settings.SearchLimit <= 0 {
		settings.SearchLimit = maxOfferMatches
	}
	d := &Detector{
		events:    events,
		snapshots: snapshots,
		reasoner:  reasoner,
		settings:  settings,
		now:       time.Now,
	}
	d.evidence.Store(int32(settings.EvidenceMinimum))
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetEvidenceMinimum changes the policy applied to subsequent cycles.
func (d *Detector) SetEvidenceMinimum(n int) {
	d.evidence.Store(int32(n))
}

// LastCycle returns a copy of the most recent cycle record, if any.
func (d *Detector) LastCycle() *Cycle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	c := *d.last
	return &c
}

// CooldownUntil returns when the next cycle may start.
func (d *Detector) CooldownUntil() time.Time {
	return d.gate.CooldownUntil()
}

// Reset clears the single-flight flag and cooldown.
func (d *Detector) Reset() {
	d.gate.Reset()
}

// Tick runs one cycle if none is running and the cooldown has passed. The
// result is non-nil only for OutcomeHit.
func (d *Detector) Tick(ctx context.Context) (*models.FocusDetectResult, Outcome) {
	ok, reason := d.gate.TryEnter(d.now())
	if !ok {
		return nil, Outcome(reason)
	}

	completed := false
	cooldown := d.settings.MissCooldown
	defer func() {
		if completed {
			d.gate.Leave(d.now(), cooldown)
		} else {
			d.gate.Release()
		}
	}()

	result, cycle := d.run(ctx)
	d.record(cycle)

	switch cycle.Outcome {
	case OutcomeHit:
		completed = true
		cooldown = d.settings.HitCooldown
	case OutcomeMiss:
		completed = true
	}
	return result, cycle.Outcome
}

func (d *Detector) run(ctx context.Context) (result *models.FocusDetectResult, cycle Cycle) {
	cycle = Cycle{At: d.now(), Outcome: OutcomeMiss}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Focus cycle panicked: %v", r)
			result = nil
			cycle.Outcome = OutcomeMiss
		}
	}()

	events := d.events.Snapshot(d.settings.Window)

	candidate, ok := PreScreen(events, d.snapshots, d.settings.SnapshotMaxAge)
	if !ok {
		cycle.Outcome = OutcomeNoCandidate
		return nil, cycle
	}
	cycle.TriggerApp = candidate.App

	timeline := BuildTimeline(events, d.settings.TimelineCap)
	metrics := ComputeMetrics(timeline, events, candidate.App, candidate.Snapshot)
	cycle.Timeline = len(timeline)
	cycle.Metrics = metrics

	var names []string
	if d.capabilities != nil {
		names = d.capabilities.Names(ctx)
	}

	prompt := BuildPrompt(PromptInput{
		TriggerApp:      candidate.App,
		Timeline:        timeline,
		Snapshot:        candidate.Snapshot,
		Metrics:         metrics,
		Capabilities:    names,
		EvidenceMinimum: int(d.evidence.Load()),
	})

	reply, err := d.reason(ctx, prompt)
	if err != nil {
		log.Printf("Focus judgment for %s failed: %v", candidate.App, err)
		return nil, cycle
	}

	verdict, ok := extract.FocusResult(reply)
	if !ok {
		log.Printf("Focus judgment for %s was not parseable", candidate.App)
		return nil, cycle
	}
	if !verdict.Detected {
		return nil, cycle
	}

	if len(verdict.SearchKeywords) > 0 && d.searcher != nil {
		verdict.Offer = appendMatches(verdict.Offer, d.search(ctx, verdict.SearchKeywords))
	}

	cycle.Outcome = OutcomeHit
	cycle.Theme = verdict.Theme
	return verdict, cycle
}

func (d *Detector) reason(ctx context.Context, prompt string) (string, error) {
	if d.settings.ReasonTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.settings.ReasonTimeout)
		defer cancel()
	}
	return d.reasoner.Reason(ctx, prompt)
}

func (d *Detector) search(ctx context.Context, keywords []string) []models.CapabilityMatch {
	if d.settings.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.settings.SearchTimeout)
		defer cancel()
	}
	return d.searcher.Search(ctx, keywords, d.settings.SearchLimit)
}

func (d *Detector) record(c Cycle) {
	d.mu.Lock()
	d.last = &c
	d.mu.Unlock()
}

func appendMatches(offer string, matches []models.CapabilityMatch) string {
	if len(matches) == 0 {
		return offer
	}
	if len(matches) > maxOfferMatches {
		matches = matches[:maxOfferMatches]
	}

	var b strings.Builder
	b.WriteString(offer)
	if offer != "" {
		b.WriteString("\n\n")
	}
	b.WriteString("Related:")
	for _, m := range matches {
		fmt.Fprintf(&b, "\n- %s: %s", m.Name, m.Description)
	}
	return b.String()
}
