package models

import "time"

// Confidence grades a detection.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// TimelineEntry is one visit in the focus timeline. Built fresh every cycle.
type TimelineEntry struct {
	Timestamp        time.Time
	App              string
	Title            string
	AXContext        string
	ClipboardContent string
	IsRevisit        bool
}

// ObjectiveMetrics are the locally computed signals handed to the reasoning
// service alongside the timeline.
type ObjectiveMetrics struct {
	RevisitCount       int     `json:"revisit_count"`
	BrowsedTabRatio    float64 `json:"browsed_tab_ratio"`
	ClipboardRelevance int     `json:"clipboard_relevance"`
	TriggerAppFocus    float64 `json:"trigger_app_focus"`
}

// EvidenceCount returns how many of the four metrics clear their bar.
func (m ObjectiveMetrics) EvidenceCount() int {
	n := 0
	if m.RevisitCount >= 1 {
		n++
	}
	if m.BrowsedTabRatio >= 0.4 {
		n++
	}
	if m.ClipboardRelevance >= 1 {
		n++
	}
	if m.TriggerAppFocus >= 0.6 {
		n++
	}
	return n
}

// FocusDetectResult is the parsed verdict of the reasoning service.
type FocusDetectResult struct {
	Detected            bool       `json:"detected"`
	Confidence          Confidence `json:"confidence"`
	Theme               string     `json:"theme"`
	Observation         string     `json:"observation"`
	Insight             string     `json:"insight"`
	Offer               string     `json:"offer"`
	InstalledCapability string     `json:"installedCapability,omitempty"`
	SearchKeywords      []string   `json:"searchKeywords,omitempty"`
}

// ResultSource names the loop that produced a Result.
type ResultSource string

const (
	SourceBurst ResultSource = "burst"
	SourceFocus ResultSource = "focus"
)

// Result is what the orchestrator hands to its observer.
type Result struct {
	ID          string       `json:"id"`
	Source      ResultSource `json:"source"`
	Confidence  Confidence   `json:"confidence"`
	Theme       string       `json:"theme,omitempty"`
	Observation string       `json:"observation"`
	Insight     string       `json:"insight,omitempty"`
	Offer       string       `json:"offer"`
	DetectedAt  time.Time    `json:"detected_at"`
}
