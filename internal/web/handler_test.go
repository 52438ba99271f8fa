package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/nudge/internal/buffer"
	"github.com/actionsum/nudge/internal/database"
	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/internal/reporter"
	"github.com/actionsum/nudge/internal/sensing"
	"github.com/actionsum/nudge/internal/snapshot"
)

type fakeStatus struct{}

func (fakeStatus) Status() sensing.Status {
	return sensing.Status{Running: true, Threshold: 5, Sensitivity: 1}
}

type fixture struct {
	mux   *http.ServeMux
	buf   *buffer.EventBuffer
	cache *snapshot.Cache
	repo  *database.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "nudge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		mux:   http.NewServeMux(),
		buf:   buffer.New(0, 0),
		cache: snapshot.New(nil),
		repo:  database.NewRepository(db),
	}
	NewHandler(Deps{
		Events:    f.buf,
		Snapshots: f.cache,
		Buffer:    f.buf,
		Sensing:   fakeStatus{},
		Repo:      f.repo,
		Reporter:  reporter.New(f.repo),
	}).SetupRoutes(f.mux)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestPostEvents(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/events", `{"kind": "tabSwitch", "detail": "StockA", "context": "Browser"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = f.do(http.MethodPost, "/api/events", `[{"kind": "click", "detail": "Buy"}, {"kind": "dwell", "detail": "Chart"}]`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"accepted": 2}`, rec.Body.String())

	events := f.buf.Snapshot(time.Minute)
	require.Len(t, events, 3)
	assert.Equal(t, models.KindTabSwitch, events[0].Kind)
	assert.Equal(t, "Browser", events[0].Context)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPostEventsRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/events", `{"kind": "scroll"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/events", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/events", `[{"kind": "click"}, {"kind": ""}]`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/events", "").Code)
	assert.Zero(t, f.buf.Len())

	rec := f.do(http.MethodOptions, "/api/events", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPostTabs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/tabs", `{"app_name": "Browser", "application_id": "org.example.browser",
		"tabs": [{"title": "StockA", "is_active": true}, {"title": "StockB"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	snap := f.cache.Get("org.example.browser", time.Minute)
	require.NotNil(t, snap)
	assert.Equal(t, "Browser", snap.AppName)
	require.Len(t, snap.Tabs, 2)
	assert.True(t, snap.Tabs[0].IsActive)

	events := f.buf.Snapshot(time.Minute)
	require.Len(t, events, 1)
	assert.Equal(t, models.KindTabSnapshot, events[0].Kind)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/tabs", `{"app_name": "Browser"}`).Code)
}

func TestStatusAndHistory(t *testing.T) {
	f := newFixture(t)
	f.buf.Append(models.NewEvent(models.KindClipboard, "x", "Sheets"))
	require.NoError(t, f.repo.CreateDetection(models.DetectionFromResult(models.Result{
		ID: "r1", Source: models.SourceFocus, Confidence: models.ConfidenceHigh,
		Theme: "stocks", Observation: "o", DetectedAt: time.Now(),
	})))

	rec := f.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Contains(t, string(status["buffer"]), `"clipboard":1`)
	assert.Contains(t, string(status["sensing"]), `"threshold":5`)
	assert.Contains(t, string(status["latest_detection"]), `"result_id":"r1"`)

	rec = f.do(http.MethodGet, "/api/detections?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detections []models.Detection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detections))
	require.Len(t, detections, 1)
	assert.Equal(t, "stocks", detections[0].Theme)

	rec = f.do(http.MethodGet, "/api/report?period=week", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"focus_count":1`)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/report?period=year", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
}
