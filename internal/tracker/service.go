// Package tracker polls the focused window and turns changes into behavior
// events.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/pkg/window"
)

// EventSink receives the events the tracker produces.
type EventSink interface {
	Append(models.BehaviorEvent)
}

// ErrorRecorder persists producer failures.
type ErrorRecorder interface {
	LogError(component string, err error) error
}

type Service struct {
	interval time.Duration
	sink     EventSink
	errs     ErrorRecorder
	detector window.Detector
	now      func() time.Time

	mu      sync.Mutex
	running bool
	last    *window.WindowInfo
	lastErr string
}

// NewService creates a tracker. errs may be nil.
func NewService(interval time.Duration, sink EventSink, detector window.Detector, errs ErrorRecorder) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{
		interval: interval,
		sink:     sink,
		errs:     errs,
		detector: detector,
		now:      time.Now,
	}
}

// Start polls until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("tracker is already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Printf("Starting tracker with %v poll interval (%s)", s.interval, s.detector.GetDisplayServer())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-ctx.Done():
			log.Println("Tracker stopped")
			return nil
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CurrentApp returns the application last seen focused, or "".
func (s *Service) CurrentApp() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return ""
	}
	return s.last.AppName
}

func (s *Service) poll() {
	if err := s.trackOnce(); err != nil {
		s.storeError(err)
	}
}

// trackOnce emits appSwitch when the focused application changes and
// windowTitle when the title changes. Idle or locked sessions emit nothing.
func (s *Service) trackOnce() error {
	idleInfo, err := s.detector.GetIdleInfo()
	if err != nil {
		return fmt.Errorf("failed to get idle info: %w", err)
	}
	if idleInfo.IsIdle || idleInfo.IsLocked {
		return nil
	}

	info, err := s.detector.GetFocusedWindow()
	if err != nil {
		return fmt.Errorf("failed to get focused window: %w", err)
	}
	if !info.Valid() {
		return nil
	}

	s.mu.Lock()
	appChanged, titleChanged := info.Changed(s.last)
	s.last = info
	s.mu.Unlock()

	now := s.now()
	if appChanged {
		s.sink.Append(models.BehaviorEvent{
			Timestamp: now,
			Kind:      models.KindAppSwitch,
			Detail:    info.AppName,
			Context:   info.AppName,
		})
	}
	if titleChanged && info.WindowTitle != "" {
		s.sink.Append(models.BehaviorEvent{
			Timestamp: now,
			Kind:      models.KindWindowTitle,
			Detail:    info.WindowTitle,
			Context:   info.AppName,
		})
	}
	return nil
}

// storeError records each distinct failure once until it changes, so a
// missing display does not fill the error log every second.
func (s *Service) storeError(err error) {
	s.mu.Lock()
	repeat := err.Error() == s.lastErr
	s.lastErr = err.Error()
	s.mu.Unlock()
	if repeat {
		return
	}

	if s.errs == nil {
		log.Printf("Tracker error: %v", err)
		return
	}
	if dbErr := s.errs.LogError("tracker", err); dbErr != nil {
		log.Printf("Failed to store error in database: %v (original error: %v)", dbErr, err)
	} else {
		log.Printf("Error logged to database: %v", err)
	}
}
