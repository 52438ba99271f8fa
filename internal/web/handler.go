package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/actionsum/nudge/internal/database"
	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/internal/reporter"
	"github.com/actionsum/nudge/internal/sensing"
)

const maxBody = 1 << 20

// EventSink accepts events from external producers.
type EventSink interface {
	Append(models.BehaviorEvent)
}

// SnapshotSink accepts tab snapshots from the tab-capture collaborator.
type SnapshotSink interface {
	Store(appName, applicationID string, tabs []models.Tab)
}

// BufferStats reports the event buffer's contents.
type BufferStats interface {
	Len() int
	Stats() map[models.EventKind]int
}

// StatusSource reports the detection loops' state.
type StatusSource interface {
	Status() sensing.Status
}

// Deps wires the handler. Repo and Reporter may be nil when the daemon runs
// without a database.
type Deps struct {
	Events    EventSink
	Snapshots SnapshotSink
	Buffer    BufferStats
	Sensing   StatusSource
	Repo      *database.Repository
	Reporter  *reporter.Reporter
}

type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/tabs", h.handleTabs)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/detections", h.handleDetections)
	mux.HandleFunc("/api/report", h.handleReport)

	mux.HandleFunc("/health", h.handleHealth)
}

type eventRequest struct {
	Timestamp time.Time        `json:"timestamp"`
	Kind      models.EventKind `json:"kind"`
	Detail    string           `json:"detail"`
	Context   string           `json:"context"`
}

// handleEvents accepts one event object or an array of them.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		setCORS(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	var batch []eventRequest
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(body, &batch)
	} else {
		var one eventRequest
		err = json.Unmarshal(body, &one)
		batch = []eventRequest{one}
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	for i, e := range batch {
		if !e.Kind.Valid() {
			http.Error(w, fmt.Sprintf("event %d: unknown kind %q", i, e.Kind), http.StatusBadRequest)
			return
		}
	}

	now := time.Now()
	for _, e := range batch {
		ts := e.Timestamp
		if ts.IsZero() || ts.After(now) {
			ts = now
		}
		h.deps.Events.Append(models.BehaviorEvent{
			Timestamp: ts,
			Kind:      e.Kind,
			Detail:    e.Detail,
			Context:   e.Context,
		})
	}

	respondStatus(w, http.StatusAccepted, map[string]int{"accepted": len(batch)})
}

type tabsRequest struct {
	AppName       string       `json:"app_name"`
	ApplicationID string       `json:"application_id"`
	Tabs          []models.Tab `json:"tabs"`
}

func (h *Handler) handleTabs(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		setCORS(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tabsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.ApplicationID == "" {
		http.Error(w, "application_id is required", http.StatusBadRequest)
		return
	}
	if req.AppName == "" {
		req.AppName = req.ApplicationID
	}

	h.deps.Snapshots.Store(req.AppName, req.ApplicationID, req.Tabs)
	h.deps.Events.Append(models.NewEvent(models.KindTabSnapshot, strconv.Itoa(len(req.Tabs)), req.AppName))

	respondStatus(w, http.StatusAccepted, map[string]int{"tabs": len(req.Tabs)})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"running": true,
	}
	if h.deps.Buffer != nil {
		status["buffer"] = map[string]interface{}{
			"events":  h.deps.Buffer.Len(),
			"by_kind": h.deps.Buffer.Stats(),
		}
	}
	if h.deps.Sensing != nil {
		status["sensing"] = h.deps.Sensing.Status()
	}
	if h.deps.Repo != nil {
		if latest, err := h.deps.Repo.GetLatestDetection(); err == nil && latest != nil {
			status["latest_detection"] = latest
		}
	}

	respondJSON(w, status)
}

func (h *Handler) handleDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Repo == nil {
		http.Error(w, "History not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50 // default
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	detections, err := h.deps.Repo.GetRecentDetections(limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch detections: %v", err), http.StatusInternalServerError)
		return
	}
	if detections == nil {
		detections = []*models.Detection{}
	}

	respondJSON(w, detections)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Reporter == nil {
		http.Error(w, "Reports not available", http.StatusServiceUnavailable)
		return
	}

	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}

	report, err := h.deps.Reporter.GenerateReport(periodType)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate report: %v", err), http.StatusBadRequest)
		return
	}

	respondJSON(w, report)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondStatus(w, http.StatusOK, data)
}

func respondStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	setCORS(w)
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON: %v", err)
	}
}

// setCORS lets browser-extension producers post from their own origin.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
