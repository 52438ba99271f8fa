// Package clipboard polls the desktop clipboard and reports new contents as
// clipboard events.
package clipboard

import (
	"context"
	"errors"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/pkg/utils"
)

// MaxDetail bounds the clipboard text carried by one event.
const MaxDetail = 200

// ErrNoTool is returned when neither wl-paste nor xclip is installed.
var ErrNoTool = errors.New("no clipboard tool available (install wl-clipboard or xclip)")

// EventSink receives clipboard events.
type EventSink interface {
	Append(models.BehaviorEvent)
}

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Poller reads the clipboard on an interval.
type Poller struct {
	interval time.Duration
	sink     EventSink
	appFunc  func() string
	run      runner
	command  []string
	now      func() time.Time

	last   string
	primed bool
}

// New picks wl-paste on Wayland sessions and xclip elsewhere. appFunc names
// the focused application for the event context and may be nil.
func New(interval time.Duration, sink EventSink, appFunc func() string) (*Poller, error) {
	cmd := pickCommand(os.Getenv("WAYLAND_DISPLAY") != "", exec.LookPath)
	if cmd == nil {
		return nil, ErrNoTool
	}
	return newPoller(interval, sink, appFunc, execRunner, cmd), nil
}

func newPoller(interval time.Duration, sink EventSink, appFunc func() string, run runner, cmd []string) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if appFunc == nil {
		appFunc = func() string { return "" }
	}
	return &Poller{
		interval: interval,
		sink:     sink,
		appFunc:  appFunc,
		run:      run,
		command:  cmd,
		now:      time.Now,
	}
}

func pickCommand(wayland bool, lookPath func(string) (string, error)) []string {
	candidates := [][]string{
		{"xclip", "-selection", "clipboard", "-o"},
		{"wl-paste", "--no-newline"},
	}
	if wayland {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, c := range candidates {
		if _, err := lookPath(c[0]); err == nil {
			return c
		}
	}
	return nil
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("Watching clipboard via %s every %v", p.command[0], p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce emits an event when the clipboard differs from the previous read.
// The first successful read only primes the baseline.
func (p *Poller) pollOnce(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := p.run(readCtx, p.command[0], p.command[1:]...)
	if err != nil {
		// Empty or non-text selections make both tools exit non-zero.
		return
	}

	content := strings.TrimSpace(string(out))
	if !p.primed {
		p.primed = true
		p.last = content
		return
	}
	if content == "" || content == p.last {
		return
	}
	p.last = content

	p.sink.Append(models.BehaviorEvent{
		Timestamp: p.now(),
		Kind:      models.KindClipboard,
		Detail:    utils.Truncate(strings.Join(strings.Fields(content), " "), MaxDetail),
		Context:   p.appFunc(),
	})
}
