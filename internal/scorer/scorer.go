// Package scorer computes the heuristic "burst" score over a short window of
// behavior events. It is stateless apart from the configured sensitivity.
package scorer

import (
	"math"
	"time"
	"unicode"

	"github.com/actionsum/nudge/internal/models"
)

const (
	MinSensitivity     = 0.5
	MaxSensitivity     = 2.0
	DefaultSensitivity = 1.0

	burstSpan = 30 * time.Second
)

// Rule is one additive scoring rule.
type Rule struct {
	Name   string
	Points int
	Match  func(events []models.BehaviorEvent) bool
}

// Rules are evaluated independently; every match adds its points.
var Rules = []Rule{
	{Name: "rapid_app_switch", Points: 3, Match: rapidAppSwitch},
	{Name: "clipboard_churn", Points: 3, Match: clipboardChurn},
	{Name: "clipboard_similarity", Points: 2, Match: clipboardSimilarity},
	{Name: "single_app_dwell", Points: 2, Match: singleAppDwell},
	{Name: "tab_switch_burst", Points: 2, Match: tabSwitchBurst},
	{Name: "file_op_burst", Points: 2, Match: fileOpBurst},
}

// Hit records the outcome of one rule.
type Hit struct {
	Rule    string `json:"rule"`
	Points  int    `json:"points"`
	Matched bool   `json:"matched"`
}

// Scorer holds the sensitivity used by ShouldTrigger.
type Scorer struct {
	sensitivity float64
}

// New creates a scorer; sensitivity is clamped to [0.5, 2.0].
func New(sensitivity float64) *Scorer {
	return &Scorer{sensitivity: ClampSensitivity(sensitivity)}
}

// Sensitivity returns the clamped sensitivity.
func (s *Scorer) Sensitivity() float64 {
	return s.sensitivity
}

// Threshold returns the trigger threshold for this scorer's sensitivity.
func (s *Scorer) Threshold() int {
	return Threshold(s.sensitivity)
}

// ShouldTrigger reports whether events score at or above the threshold.
func (s *Scorer) ShouldTrigger(events []models.BehaviorEvent) bool {
	return Score(events) >= s.Threshold()
}

// ClampSensitivity bounds a sensitivity to [MinSensitivity, MaxSensitivity].
// NaN maps to the default.
func ClampSensitivity(sensitivity float64) float64 {
	if math.IsNaN(sensitivity) {
		return DefaultSensitivity
	}
	return math.Max(MinSensitivity, math.Min(MaxSensitivity, sensitivity))
}

// Threshold is max(2, round(5 / sensitivity)) with sensitivity clamped.
// Lower sensitivity means a higher, less eager threshold.
func Threshold(sensitivity float64) int {
	t := int(math.Round(5 / ClampSensitivity(sensitivity)))
	if t < 2 {
		return 2
	}
	return t
}

// Score sums the points of every matching rule.
func Score(events []models.BehaviorEvent) int {
	total := 0
	for _, r := range Rules {
		if r.Match(events) {
			total += r.Points
		}
	}
	return total
}

// Breakdown reports every rule's outcome, in rule order.
func Breakdown(events []models.BehaviorEvent) []Hit {
	hits := make([]Hit, 0, len(Rules))
	for _, r := range Rules {
		hits = append(hits, Hit{Rule: r.Name, Points: r.Points, Matched: r.Match(events)})
	}
	return hits
}

func ofKind(events []models.BehaviorEvent, kind models.EventKind) []models.BehaviorEvent {
	var out []models.BehaviorEvent
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// recentBurst reports whether there are at least n events of kind and the
// most recent n of them span no more than burstSpan.
func recentBurst(events []models.BehaviorEvent, kind models.EventKind, n int) bool {
	matching := ofKind(events, kind)
	if len(matching) < n {
		return false
	}
	last := matching[len(matching)-n:]
	span := last[n-1].Timestamp.Sub(last[0].Timestamp)
	if span < 0 {
		span = -span
	}
	return span <= burstSpan
}

func rapidAppSwitch(events []models.BehaviorEvent) bool {
	return recentBurst(events, models.KindAppSwitch, 4)
}

func clipboardChurn(events []models.BehaviorEvent) bool {
	return recentBurst(events, models.KindClipboard, 3)
}

func tabSwitchBurst(events []models.BehaviorEvent) bool {
	return recentBurst(events, models.KindTabSwitch, 3)
}

func fileOpBurst(events []models.BehaviorEvent) bool {
	return len(ofKind(events, models.KindFileOp)) >= 2
}

func clipboardSimilarity(events []models.BehaviorEvent) bool {
	clips := ofKind(events, models.KindClipboard)
	if len(clips) < 3 {
		return false
	}
	clips = clips[len(clips)-3:]

	lengths := make([]float64, len(clips))
	var sum float64
	for i, c := range clips {
		lengths[i] = float64(len([]rune(c.Detail)))
		sum += lengths[i]
	}
	mean := sum / float64(len(lengths))
	for _, l := range lengths {
		if math.Abs(l-mean) > mean*0.5 {
			return false
		}
	}

	class := Classify(clips[0].Detail)
	for _, c := range clips[1:] {
		if Classify(c.Detail) != class {
			return false
		}
	}
	return true
}

// singleAppDwell looks for two or more back-to-back dwell/click events after
// the most recent app switch.
func singleAppDwell(events []models.BehaviorEvent) bool {
	start := 0
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == models.KindAppSwitch {
			start = i + 1
			break
		}
	}

	run := 0
	for _, e := range events[start:] {
		if e.Kind == models.KindDwell || e.Kind == models.KindClick {
			run++
			if run >= 2 {
				return true
			}
			continue
		}
		run = 0
	}
	return false
}

// ContentClass is the coarse character makeup of a clipboard string.
type ContentClass string

const (
	ClassChinese ContentClass = "chinese"
	ClassEnglish ContentClass = "english"
	ClassNumeric ContentClass = "numeric"
	ClassMixed   ContentClass = "mixed"
)

// Classify returns the category holding more than half of the string's
// runes, or ClassMixed if none does.
func Classify(s string) ContentClass {
	runes := []rune(s)
	if len(runes) == 0 {
		return ClassMixed
	}

	var han, latin, digit int
	for _, r := range runes {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			latin++
		case unicode.IsDigit(r):
			digit++
		}
	}

	half := len(runes) / 2
	switch {
	case han > half:
		return ClassChinese
	case latin > half:
		return ClassEnglish
	case digit > half:
		return ClassNumeric
	default:
		return ClassMixed
	}
}
