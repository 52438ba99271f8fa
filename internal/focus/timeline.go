package focus

import (
	"strings"

	"github.com/actionsum/nudge/internal/models"
)

// BuildTimeline turns title events into visits: one entry per change of
// title, annotated with the first dwell/click detail and the first clipboard
// text seen before the next change. Revisits are flagged against the full
// sequence before it is cut down to the most recent maxEntries.
func BuildTimeline(events []models.BehaviorEvent, maxEntries int) []models.TimelineEntry {
	var timeline []models.TimelineEntry
	seen := make(map[string]bool)

	for _, e := range events {
		switch {
		case e.Kind.IsTitle():
			if n := len(timeline); n > 0 && timeline[n-1].Title == e.Detail {
				continue
			}
			timeline = append(timeline, models.TimelineEntry{
				Timestamp: e.Timestamp,
				App:       e.Context,
				Title:     e.Detail,
				IsRevisit: seen[e.Detail],
			})
			seen[e.Detail] = true

		case e.Kind == models.KindDwell || e.Kind == models.KindClick:
			if n := len(timeline); n > 0 && timeline[n-1].AXContext == "" {
				timeline[n-1].AXContext = e.Detail
			}

		case e.Kind == models.KindClipboard:
			if n := len(timeline); n > 0 && timeline[n-1].ClipboardContent == "" {
				timeline[n-1].ClipboardContent = e.Detail
			}
		}
	}

	if maxEntries > 0 && len(timeline) > maxEntries {
		timeline = timeline[len(timeline)-maxEntries:]
	}
	return timeline
}

// ComputeMetrics derives the objective signals for one cycle. events is the
// whole detection window; snap may be nil.
func ComputeMetrics(timeline []models.TimelineEntry, events []models.BehaviorEvent, triggerApp string, snap *models.TabSnapshot) models.ObjectiveMetrics {
	var m models.ObjectiveMetrics

	counts := make(map[string]int)
	var titles []string
	for _, entry := range timeline {
		if counts[entry.Title] == 0 {
			titles = append(titles, entry.Title)
		}
		counts[entry.Title]++
	}
	for _, n := range counts {
		if n >= 2 {
			m.RevisitCount++
		}
	}

	if snap != nil && len(snap.Tabs) > 0 {
		browsed := 0
		for _, title := range titles {
			if snap.HasTitle(title) {
				browsed++
			}
		}
		m.BrowsedTabRatio = float64(browsed) / float64(len(snap.Tabs))
		if m.BrowsedTabRatio > 1 {
			m.BrowsedTabRatio = 1
		}
	}

	for _, entry := range timeline {
		if entry.ClipboardContent != "" && relevant(entry.ClipboardContent, titles) {
			m.ClipboardRelevance++
		}
	}

	var total, trigger int
	for _, e := range events {
		if !e.Kind.IsTitle() {
			continue
		}
		total++
		if e.Context == triggerApp {
			trigger++
		}
	}
	if total > 0 {
		m.TriggerAppFocus = float64(trigger) / float64(total)
	}

	return m
}

// relevant reports whether clip and any title contain one another, ignoring
// case.
func relevant(clip string, titles []string) bool {
	c := strings.ToLower(strings.TrimSpace(clip))
	if c == "" {
		return false
	}
	for _, title := range titles {
		t := strings.ToLower(strings.TrimSpace(title))
		if t == "" {
			continue
		}
		if strings.Contains(t, c) || strings.Contains(c, t) {
			return true
		}
	}
	return false
}
