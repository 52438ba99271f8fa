package notify

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/nudge/internal/models"
)

type fakeStore struct {
	stored []*models.Detection
	err    error
}

func (f *fakeStore) CreateDetection(d *models.Detection) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, d)
	return nil
}

func result() models.Result {
	return models.Result{
		ID:          "r1",
		Source:      models.SourceFocus,
		Confidence:  models.ConfidenceHigh,
		Theme:       "stock research",
		Observation: "Comparing three stocks",
		Offer:       "Build a table?\n\nRelated:\n- stock-watch: Track prices",
		DetectedAt:  time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC),
	}
}

func TestConsole(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer

	NewConsole(&out).OnResult(result())

	assert.Equal(t, "[14:05:09] FOCUS (high) stock research\n"+
		"  Comparing three stocks\n"+
		"  > Build a table?\n"+
		"  > Related:\n"+
		"  > - stock-watch: Track prices\n", out.String())
}

func TestFanoutAndStore(t *testing.T) {
	color.NoColor = true
	store := &fakeStore{}
	var out bytes.Buffer

	Fanout{NewStore(store), NewConsole(&out)}.OnResult(result())

	require.Len(t, store.stored, 1)
	assert.Equal(t, "r1", store.stored[0].ResultID)
	assert.Equal(t, "focus", store.stored[0].Source)
	assert.Contains(t, out.String(), "FOCUS")
}

func TestStoreFailureDoesNotStopFanout(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer

	Fanout{NewStore(&fakeStore{err: errors.New("disk full")}), NewConsole(&out)}.OnResult(result())

	assert.NotEmpty(t, out.String())
}
