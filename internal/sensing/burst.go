package sensing

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/internal/reasoning/extract"
	"github.com/actionsum/nudge/internal/scorer"
)

// maxBurstEvents bounds how many raw events the burst prompt carries.
const maxBurstEvents = 40

// BurstOutcome says how a burst tick ended.
type BurstOutcome string

const (
	BurstQuiet    BurstOutcome = "quiet"
	BurstBusy     BurstOutcome = "busy"
	BurstCooldown BurstOutcome = "cooldown"
	BurstMiss     BurstOutcome = "miss"
	BurstHit      BurstOutcome = "hit"
)

// BurstCycle records the last burst tick that reached the reasoning call.
type BurstCycle struct {
	At      time.Time    `json:"at"`
	Score   int          `json:"score"`
	Rules   []string     `json:"rules"`
	Outcome BurstOutcome `json:"outcome"`
}

// TickBurst scores the fast window and, when the score clears the
// threshold, asks for a judgment and emits a burst result on success.
func (o *Orchestrator) TickBurst(ctx context.Context) (*models.Result, BurstOutcome) {
	events := o.events.Snapshot(o.settings.FastWindow)
	sc := o.scorer.Load()
	if !sc.ShouldTrigger(events) {
		return nil, BurstQuiet
	}

	ok, reason := o.burstGate.TryEnter(o.now())
	if !ok {
		return nil, BurstOutcome(reason)
	}
	completed := false
	defer func() {
		if completed {
			o.burstGate.Leave(o.now(), o.settings.FastCooldown)
		} else {
			o.burstGate.Release()
		}
	}()

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	rules := matchedRules(events)
	cycle := BurstCycle{At: o.now(), Score: scorer.Score(events), Rules: rules, Outcome: BurstMiss}
	defer func() {
		o.lastBurst.Store(&cycle)
	}()

	text, err := o.judgeBurst(ctx, events, rules)
	completed = true
	if err != nil {
		log.Printf("Burst judgment failed: %v", err)
		return nil, BurstMiss
	}
	if text == "" {
		return nil, BurstMiss
	}

	r := models.Result{
		ID:          uuid.NewString(),
		Source:      models.SourceBurst,
		Confidence:  models.ConfidenceMedium,
		Observation: "Repetitive activity: " + strings.Join(rules, ", "),
		Offer:       text,
		DetectedAt:  o.now(),
	}
	cycle.Outcome = BurstHit
	o.emit(r)
	return &r, BurstHit
}

// judgeBurst returns the display text of a positive reply, or "" for a
// reply that declines.
func (o *Orchestrator) judgeBurst(ctx context.Context, events []models.BehaviorEvent, rules []string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("burst judgment panicked: %v", r)
		}
	}()

	var names []string
	if o.capabilities != nil {
		names = o.capabilities.Names(ctx)
	}

	reply, err := o.reasoner.Reason(ctx, BuildBurstPrompt(events, rules, names))
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(strings.Trim(reply, "`*. \n"), "NONE") {
		return "", nil
	}
	return extract.PlainText(reply), nil
}

// BuildBurstPrompt renders the single-layer burst request: the raw recent
// events, the rules that fired and the installed capabilities.
func BuildBurstPrompt(events []models.BehaviorEvent, rules, capabilities []string) string {
	if len(events) > maxBurstEvents {
		events = events[len(events)-maxBurstEvents:]
	}

	var b strings.Builder
	b.WriteString("The user just performed a quick burst of desktop actions. Decide whether it is a repetitive task that could be automated.\n\n")
	fmt.Fprintf(&b, "Signals: %s\n\n", strings.Join(rules, ", "))

	b.WriteString("Recent events (oldest first):\n")
	for _, e := range events {
		fmt.Fprintf(&b, "- [%s] %s", e.Timestamp.Format("15:04:05"), e.Kind)
		if e.Context != "" {
			fmt.Fprintf(&b, " (%s)", e.Context)
		}
		if e.Detail != "" {
			fmt.Fprintf(&b, ": %s", oneLine(e.Detail))
		}
		b.WriteByte('\n')
	}

	if len(capabilities) > 0 {
		fmt.Fprintf(&b, "\nAlready installed capabilities: %s\n", strings.Join(capabilities, ", "))
	}

	b.WriteString("\nIf there is something worth automating, reply with a short suggestion in markdown. Otherwise reply with exactly NONE.\n")
	return b.String()
}

func matchedRules(events []models.BehaviorEvent) []string {
	var names []string
	for _, h := range scorer.Breakdown(events) {
		if h.Matched {
			names = append(names, h.Rule)
		}
	}
	return names
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 120 {
		return string(r[:120]) + "..."
	}
	return s
}
