// Package snapshot caches the most recent tab list per application.
package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/actionsum/nudge/internal/models"
)

// Cache is a last-write-wins map of tab snapshots keyed by application ID.
// Entries expire lazily: a read checks the age, nothing sweeps.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[string]models.TabSnapshot
	now       func() time.Time
}

// New creates an empty cache. A nil clock means time.Now.
func New(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		snapshots: make(map[string]models.TabSnapshot),
		now:       now,
	}
}

// Store replaces whatever snapshot was held for applicationID.
func (c *Cache) Store(appName, applicationID string, tabs []models.Tab) {
	copied := make([]models.Tab, len(tabs))
	copy(copied, tabs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[applicationID] = models.TabSnapshot{
		AppName:       appName,
		ApplicationID: applicationID,
		Tabs:          copied,
		CapturedAt:    c.now(),
	}
}

// Get returns the snapshot for applicationID if it is no older than maxAge.
func (c *Cache) Get(applicationID string, maxAge time.Duration) *models.TabSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[applicationID]
	if !ok || !c.fresh(snap, maxAge) {
		return nil
	}
	return cloneSnapshot(snap)
}

// AllValid returns every snapshot no older than maxAge, ordered by
// application ID.
func (c *Cache) AllValid(maxAge time.Duration) []models.TabSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.TabSnapshot, 0, len(c.snapshots))
	for _, snap := range c.snapshots {
		if c.fresh(snap, maxAge) {
			out = append(out, *cloneSnapshot(snap))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ApplicationID < out[j].ApplicationID
	})
	return out
}

// Len returns the number of stored snapshots, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}

func (c *Cache) fresh(snap models.TabSnapshot, maxAge time.Duration) bool {
	return c.now().Sub(snap.CapturedAt) <= maxAge
}

func cloneSnapshot(snap models.TabSnapshot) *models.TabSnapshot {
	tabs := make([]models.Tab, len(snap.Tabs))
	copy(tabs, snap.Tabs)
	snap.Tabs = tabs
	return &snap
}
