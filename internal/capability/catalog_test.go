package capability

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/actionsum/nudge/internal/database"
	"github.com/actionsum/nudge/internal/models"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "nudge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func seed(t *testing.T, c *Catalog) {
	t.Helper()
	ctx := context.Background()
	for _, item := range []models.Capability{
		{Name: "stock-watch", Description: "Track stock prices", Keywords: "Stocks, Portfolio , finance", Installed: true},
		{Name: "sheet-macros", Description: "Record spreadsheet macros", Keywords: "spreadsheet,automation", Installed: true},
		{Name: "portfolio-report", Description: "Weekly portfolio summary", Keywords: "finance"},
		{Name: "translate", Description: "Translate selected text", Keywords: "language"},
	} {
		item := item
		require.NoError(t, c.Add(ctx, &item))
	}
}

func TestNamesListsInstalled(t *testing.T) {
	c := newCatalog(t)
	seed(t, c)

	assert.Equal(t, []string{"sheet-macros", "stock-watch"}, c.Names(context.Background()))
}

func TestSearchRanksByHits(t *testing.T) {
	c := newCatalog(t)
	seed(t, c)

	matches := c.Search(context.Background(), []string{"portfolio", "FINANCE"}, 5)
	require.Len(t, matches, 2)
	assert.Equal(t, "portfolio-report", matches[0].Name)
	assert.Equal(t, "stock-watch", matches[1].Name)

	matches = c.Search(context.Background(), []string{"portfolio", "finance"}, 1)
	assert.Len(t, matches, 1)
}

func TestSearchDegradesToEmpty(t *testing.T) {
	c := newCatalog(t)
	seed(t, c)

	assert.Empty(t, c.Search(context.Background(), nil, 5))
	assert.Empty(t, c.Search(context.Background(), []string{"  "}, 5))
	assert.Empty(t, c.Search(context.Background(), []string{"weather"}, 5))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	assert.Empty(t, c.Search(ctx, []string{"stock"}, 5))
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	c := newCatalog(t)
	seed(t, c)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, &models.Capability{Name: "discounts", Description: "Flag 100% off deals"}))

	assert.Empty(t, c.Search(ctx, []string{"_"}, 10))
	assert.Empty(t, c.Search(ctx, []string{`\`}, 10))

	matches := c.Search(ctx, []string{"%"}, 10)
	require.Len(t, matches, 1)
	assert.Equal(t, "discounts", matches[0].Name)

	matches = c.Search(ctx, []string{"stock_watch"}, 10)
	assert.Empty(t, matches)
}

func TestAddReplacesByName(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, &models.Capability{Name: "translate", Description: "old"}))
	require.NoError(t, c.Add(ctx, &models.Capability{Name: " translate ", Description: "new", Keywords: "Language", Installed: true}))

	caps, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, "new", caps[0].Description)
	assert.Equal(t, "language", caps[0].Keywords)
	assert.True(t, caps[0].Installed)

	assert.Error(t, c.Add(ctx, &models.Capability{Name: " "}))
}

func TestRemoveAndClear(t *testing.T) {
	c := newCatalog(t)
	seed(t, c)
	ctx := context.Background()

	require.NoError(t, c.Remove(ctx, "translate"))
	assert.ErrorIs(t, c.Remove(ctx, "translate"), gorm.ErrRecordNotFound)

	caps, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, caps, 3)

	require.NoError(t, c.Clear(ctx))
	caps, err = c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, caps)
}
