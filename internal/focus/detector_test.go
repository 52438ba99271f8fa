package focus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/nudge/internal/buffer"
	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/internal/reasoning"
	"github.com/actionsum/nudge/internal/snapshot"
)

type staticEvents []models.BehaviorEvent

func (s staticEvents) Snapshot(time.Duration) []models.BehaviorEvent {
	return s
}

type fakeCatalog struct {
	names    []string
	matches  []models.CapabilityMatch
	searches atomic.Int32
	keywords []string
}

func (f *fakeCatalog) Names(context.Context) []string {
	return f.names
}

func (f *fakeCatalog) Search(_ context.Context, keywords []string, limit int) []models.CapabilityMatch {
	f.searches.Add(1)
	f.keywords = keywords
	if len(f.matches) > limit {
		return f.matches[:limit]
	}
	return f.matches
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func settings() Settings {
	return Settings{
		Window:          5 * time.Minute,
		SnapshotMaxAge:  5 * time.Minute,
		MissCooldown:    60 * time.Second,
		HitCooldown:     10 * time.Minute,
		TimelineCap:     15,
		EvidenceMinimum: 2,
		SearchTimeout:   3 * time.Second,
		SearchLimit:     5,
	}
}

func qualifyingEvents() staticEvents {
	return staticEvents{
		title(0, "Browser", "A"),
		title(5, "Browser", "B"),
		title(10, "Browser", "C"),
		title(15, "Browser", "A"),
	}
}

func reply(s string) reasoning.Reasoner {
	return reasoning.Func(func(context.Context, string) (string, error) {
		return s, nil
	})
}

const hitReply = `{"detected": true, "confidence": "high", "theme": "stocks", "observation": "o", "insight": "i", "offer": "Track them?"}`

func TestTickNoCandidateLeavesCooldownAlone(t *testing.T) {
	called := false
	r := reasoning.Func(func(context.Context, string) (string, error) {
		called = true
		return hitReply, nil
	})
	d := NewDetector(staticEvents{title(0, "Browser", "A")}, nil, r, settings())

	res, outcome := d.Tick(context.Background())
	assert.Nil(t, res)
	assert.Equal(t, OutcomeNoCandidate, outcome)
	assert.False(t, called)
	assert.True(t, d.CooldownUntil().IsZero())

	_, outcome = d.Tick(context.Background())
	assert.Equal(t, OutcomeNoCandidate, outcome)
}

func TestTickMissCooldown(t *testing.T) {
	c := &clock{now: base}
	d := NewDetector(qualifyingEvents(), nil, reply(`{"detected": false}`), settings(), WithClock(c.Now))

	_, outcome := d.Tick(context.Background())
	assert.Equal(t, OutcomeMiss, outcome)
	assert.Equal(t, base.Add(60*time.Second), d.CooldownUntil())

	c.Advance(59 * time.Second)
	_, outcome = d.Tick(context.Background())
	assert.Equal(t, OutcomeCooldown, outcome)

	c.Advance(time.Second)
	_, outcome = d.Tick(context.Background())
	assert.Equal(t, OutcomeMiss, outcome)
}

func TestTickHitCooldown(t *testing.T) {
	c := &clock{now: base}
	d := NewDetector(qualifyingEvents(), nil, reply(hitReply), settings(), WithClock(c.Now))

	res, outcome := d.Tick(context.Background())
	require.Equal(t, OutcomeHit, outcome)
	require.NotNil(t, res)
	assert.Equal(t, base.Add(10*time.Minute), d.CooldownUntil())

	c.Advance(5 * time.Minute)
	res, outcome = d.Tick(context.Background())
	assert.Nil(t, res)
	assert.Equal(t, OutcomeCooldown, outcome)
}

func TestTickFailuresAreMisses(t *testing.T) {
	tests := []struct {
		name     string
		reasoner reasoning.Reasoner
	}{
		{"transport error", reasoning.Func(func(context.Context, string) (string, error) {
			return "", errors.New("connection refused")
		})},
		{"unavailable", reasoning.Unavailable{}},
		{"unparseable", reply("I think the user is reading about stocks.")},
		{"not detected", reply("```json\n{\"detected\": false}\n```")},
		{"panic", reasoning.Func(func(context.Context, string) (string, error) {
			panic("boom")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{now: base}
			d := NewDetector(qualifyingEvents(), nil, tt.reasoner, settings(), WithClock(c.Now))

			res, outcome := d.Tick(context.Background())
			assert.Nil(t, res)
			assert.Equal(t, OutcomeMiss, outcome)
			assert.Equal(t, base.Add(60*time.Second), d.CooldownUntil())
		})
	}
}

func TestTickTimeoutIsMiss(t *testing.T) {
	r := reasoning.Func(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	d := NewDetector(qualifyingEvents(), nil, r, settings())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, outcome := d.Tick(ctx)
	assert.Nil(t, res)
	assert.Equal(t, OutcomeMiss, outcome)
}

func TestTickReasonTimeoutIsMiss(t *testing.T) {
	r := reasoning.Func(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := settings()
	s.ReasonTimeout = 20 * time.Millisecond
	d := NewDetector(qualifyingEvents(), nil, r, s)

	res, outcome := d.Tick(context.Background())
	assert.Nil(t, res)
	assert.Equal(t, OutcomeMiss, outcome)
}

type deadlineSearcher struct {
	remaining time.Duration
}

func (s *deadlineSearcher) Search(ctx context.Context, _ []string, _ int) []models.CapabilityMatch {
	if deadline, ok := ctx.Deadline(); ok {
		s.remaining = time.Until(deadline)
	}
	return []models.CapabilityMatch{{Name: "ticker-board", Description: "Watch prices"}}
}

func TestSearchGetsFullTimeoutAfterSlowJudgment(t *testing.T) {
	r := reasoning.Func(func(ctx context.Context, _ string) (string, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.LessOrEqual(t, time.Until(deadline), 100*time.Millisecond)
		time.Sleep(80 * time.Millisecond)
		return `{"detected": true, "confidence": "high", "offer": "o", "searchKeywords": ["stocks"]}`, nil
	})
	s := settings()
	s.ReasonTimeout = 100 * time.Millisecond
	s.SearchTimeout = time.Second
	searcher := &deadlineSearcher{}
	d := NewDetector(qualifyingEvents(), nil, r, s, WithCapabilities(nil, searcher))

	res, outcome := d.Tick(context.Background())
	require.Equal(t, OutcomeHit, outcome)
	assert.Contains(t, res.Offer, "ticker-board")
	assert.Greater(t, searcher.remaining, 500*time.Millisecond)
}

func TestTickSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	r := reasoning.Func(func(context.Context, string) (string, error) {
		close(entered)
		<-release
		return hitReply, nil
	})
	d := NewDetector(qualifyingEvents(), nil, r, settings())

	done := make(chan Outcome)
	go func() {
		_, outcome := d.Tick(context.Background())
		done <- outcome
	}()

	<-entered
	_, outcome := d.Tick(context.Background())
	assert.Equal(t, OutcomeBusy, outcome)

	close(release)
	assert.Equal(t, OutcomeHit, <-done)

	d.Reset()
	assert.True(t, d.CooldownUntil().IsZero())
}

func TestTickAppendsCapabilityMatches(t *testing.T) {
	catalog := &fakeCatalog{
		names: []string{"stock-watch"},
		matches: []models.CapabilityMatch{
			{Name: "one", Description: "first"},
			{Name: "two", Description: "second"},
			{Name: "three", Description: "third"},
			{Name: "four", Description: "fourth"},
		},
	}
	var prompt string
	r := reasoning.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return `Sure: {"detected": true, "confidence": "medium", "offer": "Try a tool.", "searchKeywords": ["stocks", "portfolio"]}`, nil
	})
	d := NewDetector(qualifyingEvents(), nil, r, settings(), WithCapabilities(catalog, catalog))

	res, outcome := d.Tick(context.Background())
	require.Equal(t, OutcomeHit, outcome)
	require.NotNil(t, res)

	assert.Contains(t, prompt, "stock-watch")
	assert.EqualValues(t, 1, catalog.searches.Load())
	assert.Equal(t, []string{"stocks", "portfolio"}, catalog.keywords)
	assert.Equal(t, models.ConfidenceMedium, res.Confidence)
	assert.True(t, strings.HasPrefix(res.Offer, "Try a tool."))
	assert.Contains(t, res.Offer, "three: third")
	assert.NotContains(t, res.Offer, "four")
}

func TestTickSkipsSearchWithoutKeywords(t *testing.T) {
	catalog := &fakeCatalog{matches: []models.CapabilityMatch{{Name: "one"}}}
	d := NewDetector(qualifyingEvents(), nil, reply(hitReply), settings(), WithCapabilities(catalog, catalog))

	res, _ := d.Tick(context.Background())
	require.NotNil(t, res)
	assert.Zero(t, catalog.searches.Load())
	assert.Equal(t, "Track them?", res.Offer)
}

func TestSetEvidenceMinimumReachesPrompt(t *testing.T) {
	var prompt string
	r := reasoning.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return `{"detected": false}`, nil
	})
	d := NewDetector(qualifyingEvents(), nil, r, settings())
	d.SetEvidenceMinimum(3)

	d.Tick(context.Background())
	assert.Contains(t, prompt, "at least 3 of the four metrics")
}

func TestEndToEndFocusOnStocks(t *testing.T) {
	buf := buffer.New(400, 10*time.Minute)
	cache := snapshot.New(nil)

	cache.Store("Browser", "org.example.browser", tabs("StockA", "StockB", "StockC", "News", "Mail", "Docs"))
	for _, name := range []string{"StockA", "StockB", "StockA", "StockC"} {
		buf.Append(models.NewEvent(models.KindWindowTitle, name, "Browser"))
	}

	var prompt string
	r := reasoning.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n" + `{"detected": true, "confidence": "high", "theme": "stock research", "observation": "Comparing three stocks", "insight": "", "offer": "Build a comparison table?"}` + "\n```", nil
	})
	d := NewDetector(buf, cache, r, settings())

	res, outcome := d.Tick(context.Background())
	require.Equal(t, OutcomeHit, outcome)
	require.NotNil(t, res)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)
	assert.Equal(t, "stock research", res.Theme)

	cycle := d.LastCycle()
	require.NotNil(t, cycle)
	assert.Equal(t, "Browser", cycle.TriggerApp)
	assert.Equal(t, 4, cycle.Timeline)
	assert.Equal(t, 1, cycle.Metrics.RevisitCount)
	assert.InDelta(t, 0.5, cycle.Metrics.BrowsedTabRatio, 1e-9)
	assert.InDelta(t, 1.0, cycle.Metrics.TriggerAppFocus, 1e-9)
	assert.Equal(t, 3, cycle.Metrics.EvidenceCount())

	assert.Contains(t, prompt, "- [browsed] [current] StockA")
	assert.Contains(t, prompt, "- [browsed] StockB")
	assert.Contains(t, prompt, "- News")

	_, outcome = d.Tick(context.Background())
	assert.Equal(t, OutcomeCooldown, outcome)
}
