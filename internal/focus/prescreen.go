package focus

import (
	"strings"
	"time"

	"github.com/actionsum/nudge/internal/models"
)

// Pre-screen thresholds. The with-snapshot and without-snapshot profiles are
// intentionally asymmetric.
const (
	minTitleEventsWithSnapshot    = 3
	minTitleEventsWithoutSnapshot = 4
	minDistinctTitles             = 2
	minSnapshotTabs               = 4
)

// Candidate describes one application considered by the pre-screen.
type Candidate struct {
	App            string
	TitleEvents    int
	DistinctTitles int
	Snapshot       *models.TabSnapshot
}

// SnapshotTabs returns the tab count of the candidate's snapshot, or 0.
func (c Candidate) SnapshotTabs() int {
	if c.Snapshot == nil {
		return 0
	}
	return len(c.Snapshot.Tabs)
}

// Qualifies applies the with- or without-snapshot profile.
func (c Candidate) Qualifies() bool {
	if c.DistinctTitles < minDistinctTitles {
		return false
	}
	if c.Snapshot != nil {
		return c.TitleEvents >= minTitleEventsWithSnapshot && c.SnapshotTabs() >= minSnapshotTabs
	}
	return c.TitleEvents >= minTitleEventsWithoutSnapshot
}

// PreScreen groups title events by originating application, in order of
// first appearance, and returns the first application that qualifies.
// Events without an application are ignored here.
func PreScreen(events []models.BehaviorEvent, snapshots SnapshotSource, maxAge time.Duration) (*Candidate, bool) {
	type tally struct {
		events int
		titles map[string]struct{}
	}

	var order []string
	tallies := make(map[string]*tally)
	for _, e := range events {
		if !e.Kind.IsTitle() || e.Context == "" {
			continue
		}
		t, ok := tallies[e.Context]
		if !ok {
			t = &tally{titles: make(map[string]struct{})}
			tallies[e.Context] = t
			order = append(order, e.Context)
		}
		t.events++
		t.titles[e.Detail] = struct{}{}
	}
	if len(order) == 0 {
		return nil, false
	}

	var valid []models.TabSnapshot
	if snapshots != nil {
		valid = snapshots.AllValid(maxAge)
	}

	for _, app := range order {
		t := tallies[app]
		c := Candidate{
			App:            app,
			TitleEvents:    t.events,
			DistinctTitles: len(t.titles),
			Snapshot:       snapshotFor(valid, app),
		}
		if c.Qualifies() {
			return &c, true
		}
	}
	return nil, false
}

// snapshotFor maps a display name back to its snapshot. Names compare
// case-insensitively; an application ID equal to the name also matches.
func snapshotFor(valid []models.TabSnapshot, app string) *models.TabSnapshot {
	for i := range valid {
		if strings.EqualFold(valid[i].AppName, app) || valid[i].ApplicationID == app {
			s := valid[i]
			return &s
		}
	}
	return nil
}
