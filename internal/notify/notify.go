// Package notify delivers detection results: printed to a terminal, stored
// in the database, or both.
package notify

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/actionsum/nudge/internal/models"
)

// Observer mirrors sensing.Observer so this package stays a leaf.
type Observer interface {
	OnResult(models.Result)
}

// Fanout delivers each result to every observer in order.
type Fanout []Observer

func (f Fanout) OnResult(r models.Result) {
	for _, o := range f {
		o.OnResult(r)
	}
}

// Console prints results as a short coloured card.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole writes to out. Colour follows color.NoColor.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) OnResult(r models.Result) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	conf := yellow
	if r.Confidence == models.ConfidenceHigh {
		conf = green
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s",
		cyan.Sprintf("[%s]", r.DetectedAt.Format("15:04:05")),
		bold.Sprint(strings.ToUpper(string(r.Source))),
		conf.Sprintf("(%s)", r.Confidence))
	if r.Theme != "" {
		fmt.Fprintf(&b, " %s", bold.Sprint(r.Theme))
	}
	b.WriteByte('\n')
	if r.Observation != "" {
		fmt.Fprintf(&b, "  %s\n", r.Observation)
	}
	if r.Insight != "" {
		fmt.Fprintf(&b, "  %s\n", r.Insight)
	}
	for _, line := range strings.Split(strings.TrimSpace(r.Offer), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fmt.Fprintf(&b, "  %s %s\n", green.Sprint(">"), line)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, b.String())
}

// DetectionStore is the subset of the repository the Store observer needs.
type DetectionStore interface {
	CreateDetection(*models.Detection) error
}

// Store persists results. Failures are logged; the loops never see them.
type Store struct {
	repo DetectionStore
}

func NewStore(repo DetectionStore) *Store {
	return &Store{repo: repo}
}

func (s *Store) OnResult(r models.Result) {
	if err := s.repo.CreateDetection(models.DetectionFromResult(r)); err != nil {
		log.Printf("Failed to store detection %s: %v", r.ID, err)
	}
}
