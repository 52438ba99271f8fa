package sensing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/nudge/internal/buffer"
	"github.com/actionsum/nudge/internal/focus"
	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/internal/reasoning"
	"github.com/actionsum/nudge/internal/snapshot"
)

type recorder struct {
	mu      sync.Mutex
	results []models.Result
}

func (r *recorder) OnResult(res models.Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *recorder) Results() []models.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Result(nil), r.results...)
}

type staticNames []string

func (s staticNames) Names(context.Context) []string { return s }

func testSettings() Settings {
	return Settings{
		FastInterval:  10 * time.Millisecond,
		FastWindow:    2 * time.Minute,
		FastCooldown:  30 * time.Second,
		SlowInterval:  10 * time.Millisecond,
		ReasonTimeout: time.Second,
		Sensitivity:   1.0,
		Focus: focus.Settings{
			Window:          5 * time.Minute,
			SnapshotMaxAge:  5 * time.Minute,
			MissCooldown:    time.Minute,
			HitCooldown:     10 * time.Minute,
			TimelineCap:     15,
			EvidenceMinimum: 2,
		},
	}
}

func burstBuffer() *buffer.EventBuffer {
	b := buffer.New(0, 0)
	for _, app := range []string{"Sheets", "Mail", "Sheets", "Mail"} {
		b.Append(models.NewEvent(models.KindAppSwitch, app, app))
	}
	for _, v := range []string{"1200", "1350", "1410"} {
		b.Append(models.NewEvent(models.KindClipboard, v, "Sheets"))
	}
	return b
}

func counting(calls *atomic.Int32, reply string) reasoning.Reasoner {
	return reasoning.Func(func(context.Context, string) (string, error) {
		calls.Add(1)
		return reply, nil
	})
}

func TestTickBurstQuietBelowThreshold(t *testing.T) {
	var calls atomic.Int32
	b := buffer.New(0, 0)
	b.Append(models.NewEvent(models.KindAppSwitch, "Mail", "Mail"))

	o := New(b, snapshot.New(nil), counting(&calls, "Do it"), &recorder{}, testSettings())

	res, outcome := o.TickBurst(context.Background())
	assert.Nil(t, res)
	assert.Equal(t, BurstQuiet, outcome)
	assert.Zero(t, calls.Load())
}

func TestTickBurstEmitsPlainText(t *testing.T) {
	rec := &recorder{}
	var prompt string
	r := reasoning.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "## Automate it\n\nCopy the **totals** with a *macro*.", nil
	})
	o := New(burstBuffer(), snapshot.New(nil), r, rec, testSettings(),
		WithCapabilities(staticNames{"sheet-macros"}, nil))

	res, outcome := o.TickBurst(context.Background())
	require.Equal(t, BurstHit, outcome)
	require.NotNil(t, res)

	assert.Equal(t, models.SourceBurst, res.Source)
	assert.NotEmpty(t, res.ID)
	assert.NotContains(t, res.Offer, "**")
	assert.NotContains(t, res.Offer, "##")
	assert.Contains(t, res.Offer, "Copy the totals with a macro.")
	assert.Contains(t, res.Observation, "rapid_app_switch")
	assert.Contains(t, res.Observation, "clipboard_churn")

	assert.Contains(t, prompt, "sheet-macros")
	assert.Contains(t, prompt, "appSwitch (Sheets)")
	assert.Contains(t, prompt, "clipboard (Sheets): 1350")

	require.Len(t, rec.Results(), 1)
	assert.Equal(t, res.ID, rec.Results()[0].ID)
}

func TestTickBurstNoneIsMissWithCooldown(t *testing.T) {
	var calls atomic.Int32
	rec := &recorder{}
	now := time.Now()
	clock := func() time.Time { return now }
	o := New(burstBuffer(), snapshot.New(nil), counting(&calls, "NONE"), rec, testSettings(), WithClock(clock))

	res, outcome := o.TickBurst(context.Background())
	assert.Nil(t, res)
	assert.Equal(t, BurstMiss, outcome)

	_, outcome = o.TickBurst(context.Background())
	assert.Equal(t, BurstCooldown, outcome)
	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, rec.Results())

	st := o.Status()
	require.NotNil(t, st.BurstCooldownUntil)
	assert.Equal(t, now.Add(30*time.Second), *st.BurstCooldownUntil)
	require.NotNil(t, st.LastBurst)
	assert.Equal(t, BurstMiss, st.LastBurst.Outcome)
}

func TestTickBurstFailures(t *testing.T) {
	tests := []struct {
		name     string
		reasoner reasoning.Reasoner
	}{
		{"empty reply", reasoning.Func(func(context.Context, string) (string, error) { return "  ", nil })},
		{"error", reasoning.Func(func(context.Context, string) (string, error) { return "", errors.New("exit status 1") })},
		{"panic", reasoning.Func(func(context.Context, string) (string, error) { panic("boom") })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			o := New(burstBuffer(), snapshot.New(nil), tt.reasoner, rec, testSettings())

			res, outcome := o.TickBurst(context.Background())
			assert.Nil(t, res)
			assert.Equal(t, BurstMiss, outcome)
			assert.Empty(t, rec.Results())
		})
	}
}

func TestSetSensitivity(t *testing.T) {
	var calls atomic.Int32
	b := buffer.New(0, 0)
	for _, app := range []string{"Sheets", "Mail", "Sheets", "Mail"} {
		b.Append(models.NewEvent(models.KindAppSwitch, app, app))
	}
	o := New(b, snapshot.New(nil), counting(&calls, "NONE"), &recorder{}, testSettings())

	_, outcome := o.TickBurst(context.Background())
	assert.Equal(t, BurstQuiet, outcome)
	assert.Equal(t, 5, o.Status().Threshold)

	o.SetSensitivity(2.0)
	assert.Equal(t, 3, o.Status().Threshold)

	_, outcome = o.TickBurst(context.Background())
	assert.Equal(t, BurstMiss, outcome)
	assert.EqualValues(t, 1, calls.Load())
}

func TestStartStopEmitsOneFocusResult(t *testing.T) {
	b := buffer.New(0, 0)
	cache := snapshot.New(nil)
	cache.Store("Browser", "org.example.browser", []models.Tab{
		{Title: "StockA", IsActive: true}, {Title: "StockB"}, {Title: "StockC"},
		{Title: "News"}, {Title: "Mail"}, {Title: "Docs"},
	})
	for _, name := range []string{"StockA", "StockB", "StockA", "StockC"} {
		b.Append(models.NewEvent(models.KindWindowTitle, name, "Browser"))
	}

	var calls atomic.Int32
	rec := &recorder{}
	r := counting(&calls, `{"detected": true, "confidence": "high", "theme": "stock research", "observation": "Comparing stocks", "insight": "", "offer": "Build a table?"}`)
	o := New(b, cache, r, rec, testSettings())

	require.NoError(t, o.Start(context.Background()))
	assert.ErrorIs(t, o.Start(context.Background()), ErrRunning)

	require.Eventually(t, func() bool {
		return len(rec.Results()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	o.Stop()

	results := rec.Results()
	require.Len(t, results, 1)
	assert.Equal(t, models.SourceFocus, results[0].Source)
	assert.Equal(t, models.ConfidenceHigh, results[0].Confidence)
	assert.Equal(t, "stock research", results[0].Theme)
	assert.EqualValues(t, 1, calls.Load())

	st := o.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.FocusCooldownUntil)
	assert.EqualValues(t, 1, st.Emitted)

	require.NoError(t, o.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(rec.Results()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	o.Stop()
}

func TestStopCancelsInFlightCall(t *testing.T) {
	b := buffer.New(0, 0)
	for _, name := range []string{"A", "B", "C", "D"} {
		b.Append(models.NewEvent(models.KindWindowTitle, name, "Editor"))
	}

	entered := make(chan struct{}, 1)
	r := reasoning.Func(func(ctx context.Context, _ string) (string, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	settings := testSettings()
	settings.ReasonTimeout = time.Minute
	o := New(b, snapshot.New(nil), r, &recorder{}, settings)

	require.NoError(t, o.Start(context.Background()))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("focus cycle never reached the reasoning call")
	}

	done := make(chan struct{})
	go func() {
		o.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, o.Running())
}

func focusBuffer() *buffer.EventBuffer {
	b := buffer.New(0, 0)
	for _, name := range []string{"A", "B", "C", "A"} {
		b.Append(models.NewEvent(models.KindWindowTitle, name, "Browser"))
	}
	return b
}

type deadlineSearcher struct {
	mu        sync.Mutex
	remaining time.Duration
}

func (s *deadlineSearcher) Search(ctx context.Context, _ []string, _ int) []models.CapabilityMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		s.remaining = time.Until(deadline)
	}
	return nil
}

func TestTickFocusSearchNotStarvedByJudgment(t *testing.T) {
	r := reasoning.Func(func(context.Context, string) (string, error) {
		time.Sleep(80 * time.Millisecond)
		return `{"detected": true, "confidence": "high", "offer": "o", "searchKeywords": ["stocks"]}`, nil
	})
	settings := testSettings()
	settings.ReasonTimeout = 100 * time.Millisecond
	settings.Focus.SearchTimeout = time.Second
	searcher := &deadlineSearcher{}
	o := New(focusBuffer(), snapshot.New(nil), r, &recorder{}, settings, WithCapabilities(nil, searcher))

	res, outcome := o.TickFocus(context.Background())
	require.Equal(t, focus.OutcomeHit, outcome)
	require.NotNil(t, res)

	searcher.mu.Lock()
	defer searcher.mu.Unlock()
	assert.Greater(t, searcher.remaining, 500*time.Millisecond)
}

func TestPanickingObserverDoesNotStopLoop(t *testing.T) {
	var delivered atomic.Int32
	observer := ObserverFunc(func(models.Result) {
		delivered.Add(1)
		panic("display gone")
	})
	o := New(focusBuffer(), snapshot.New(nil), reply(`{"detected": true, "confidence": "high", "offer": "o"}`), observer, testSettings())

	var res *models.Result
	var outcome focus.Outcome
	require.NotPanics(t, func() {
		res, outcome = o.TickFocus(context.Background())
	})
	assert.Equal(t, focus.OutcomeHit, outcome)
	assert.NotNil(t, res)
	assert.EqualValues(t, 1, delivered.Load())
	assert.EqualValues(t, 1, o.Status().Emitted)
}

func TestConcurrentStartStop(t *testing.T) {
	var calls atomic.Int32
	o := New(buffer.New(0, 0), snapshot.New(nil), counting(&calls, "NONE"), &recorder{}, testSettings())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = o.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			o.Stop()
		}()
	}
	wg.Wait()

	o.Stop()
	assert.False(t, o.Running())

	// A clean restart still works after the churn.
	require.NoError(t, o.Start(context.Background()))
	assert.True(t, o.Running())
	o.Stop()
}

func reply(s string) reasoning.Reasoner {
	return reasoning.Func(func(context.Context, string) (string, error) {
		return s, nil
	})
}
