package sensing

import (
	"time"

	"github.com/actionsum/nudge/internal/focus"
	"github.com/actionsum/nudge/internal/scorer"
)

// Status is a point-in-time view of both loops.
type Status struct {
	Running            bool         `json:"running"`
	Sensitivity        float64      `json:"sensitivity"`
	Threshold          int          `json:"threshold"`
	BurstScore         int          `json:"burst_score"`
	Breakdown          []scorer.Hit `json:"breakdown"`
	BurstCooldownUntil *time.Time   `json:"burst_cooldown_until,omitempty"`
	FocusCooldownUntil *time.Time   `json:"focus_cooldown_until,omitempty"`
	LastBurst          *BurstCycle  `json:"last_burst,omitempty"`
	LastFocus          *focus.Cycle `json:"last_focus,omitempty"`
	Emitted            int64        `json:"emitted"`
}

// Status scores the current fast window and reports loop state.
func (o *Orchestrator) Status() Status {
	events := o.events.Snapshot(o.settings.FastWindow)
	sc := o.scorer.Load()

	s := Status{
		Running:            o.Running(),
		Sensitivity:        sc.Sensitivity(),
		Threshold:          sc.Threshold(),
		BurstScore:         scorer.Score(events),
		Breakdown:          scorer.Breakdown(events),
		BurstCooldownUntil: pending(o.burstGate.CooldownUntil(), o.now()),
		FocusCooldownUntil: pending(o.detector.CooldownUntil(), o.now()),
		LastFocus:          o.detector.LastCycle(),
		Emitted:            o.emitted.Load(),
	}
	if last := o.lastBurst.Load(); last != nil {
		c := *last
		s.LastBurst = &c
	}
	return s
}

func pending(until, now time.Time) *time.Time {
	if until.IsZero() || !until.After(now) {
		return nil
	}
	return &until
}
