package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/pkg/window"
)

type mockDetector struct {
	mu      sync.Mutex
	windows []*window.WindowInfo
	idle    window.IdleInfo
	err     error
}

func (m *mockDetector) GetFocusedWindow() (*window.WindowInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	w := m.windows[0]
	if len(m.windows) > 1 {
		m.windows = m.windows[1:]
	}
	return w, nil
}

func (m *mockDetector) GetIdleInfo() (*window.IdleInfo, error) {
	idle := m.idle
	return &idle, nil
}

func (m *mockDetector) IsAvailable() bool        { return true }
func (m *mockDetector) GetDisplayServer() string { return "x11" }
func (m *mockDetector) Close() error             { return nil }

type sink struct {
	mu     sync.Mutex
	events []models.BehaviorEvent
}

func (s *sink) Append(e models.BehaviorEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *sink) Events() []models.BehaviorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BehaviorEvent(nil), s.events...)
}

type errLog struct {
	components []string
}

func (e *errLog) LogError(component string, _ error) error {
	e.components = append(e.components, component)
	return nil
}

func kinds(events []models.BehaviorEvent) []string {
	var out []string
	for _, e := range events {
		out = append(out, string(e.Kind)+":"+e.Detail)
	}
	return out
}

func TestTrackOnceEmitsChanges(t *testing.T) {
	det := &mockDetector{windows: []*window.WindowInfo{
		{AppName: "firefox", WindowTitle: "StockA"},
		{AppName: "firefox", WindowTitle: "StockA"},
		{AppName: "firefox", WindowTitle: "StockB"},
		{AppName: "code", WindowTitle: "main.go"},
	}}
	out := &sink{}
	s := NewService(time.Second, out, det, nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.trackOnce())
	}

	assert.Equal(t, []string{
		"appSwitch:firefox",
		"windowTitle:StockA",
		"windowTitle:StockB",
		"appSwitch:code",
		"windowTitle:main.go",
	}, kinds(out.Events()))
	assert.Equal(t, "firefox", out.Events()[1].Context)
	assert.Equal(t, "code", s.CurrentApp())
}

func TestTrackOnceSkipsIdleAndLocked(t *testing.T) {
	out := &sink{}
	det := &mockDetector{
		windows: []*window.WindowInfo{{AppName: "firefox", WindowTitle: "StockA"}},
		idle:    window.IdleInfo{IsLocked: true},
	}
	s := NewService(time.Second, out, det, nil)

	require.NoError(t, s.trackOnce())
	assert.Empty(t, out.Events())

	det.idle = window.IdleInfo{IsIdle: true, IdleTime: 600}
	require.NoError(t, s.trackOnce())
	assert.Empty(t, out.Events())
}

func TestErrorsAreRecordedOnce(t *testing.T) {
	det := &mockDetector{err: errors.New("no active window found")}
	errs := &errLog{}
	s := NewService(time.Second, &sink{}, det, errs)

	s.poll()
	s.poll()
	assert.Equal(t, []string{"tracker"}, errs.components)

	det.err = errors.New("connection lost")
	s.poll()
	assert.Len(t, errs.components, 2)
}

func TestStartStops(t *testing.T) {
	det := &mockDetector{windows: []*window.WindowInfo{{AppName: "firefox", WindowTitle: "StockA"}}}
	out := &sink{}
	s := NewService(5*time.Millisecond, out, det, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, s.IsRunning, time.Second, time.Millisecond)
	assert.Error(t, s.Start(ctx))

	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.IsRunning())
	assert.Len(t, out.Events(), 2)
}
