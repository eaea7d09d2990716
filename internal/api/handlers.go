package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/j-veylop/cliproxy-usage-tui/internal/db"
	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services/collector"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

// defaultSlidingMinutes is used when /api/usage/sliding has no minutes parameter.
const defaultSlidingMinutes = 300

// Collector reports health and accepts manual polls.
type Collector interface {
	Health() collector.Health
	Trigger() bool
}

// UsageQuerier reconciles windowed usage.
type UsageQuerier interface {
	Window(ctx context.Context, spec engine.WindowSpec) (engine.Result, error)
	Planner() *engine.Planner
}

// Limits lists rate-limit statuses and records manual resets.
type Limits interface {
	RateLimitStatuses(ctx context.Context) ([]models.RateLimitStatus, error)
	ResetLimit(ctx context.Context, id int64) error
}

// Handler implements the HTTP endpoints.
type Handler struct {
	collector Collector
	usage     UsageQuerier
	limits    Limits
	now       func() time.Time
}

// NewHandler creates a handler backed by the given services.
func NewHandler(c Collector, u UsageQuerier, l Limits) *Handler {
	return &Handler{collector: c, usage: u, limits: l, now: time.Now}
}

type anomalyResponse struct {
	At      time.Time           `json:"at"`
	Kind    engine.AnomalyKind  `json:"kind"`
	Key     models.CompositeKey `json:"key"`
	Message string              `json:"message"`
}

type usageResponse struct {
	ByModel    map[string]models.Counters `json:"byModel"`
	ByEndpoint map[string]models.Counters `json:"byEndpoint"`
	Rows       []engine.KeyUsage          `json:"rows"`
	Anomalies  []anomalyResponse          `json:"anomalies"`
	Window     engine.Range               `json:"window"`
	Total      models.Counters            `json:"total"`
}

func newUsageResponse(res engine.Result) usageResponse {
	resp := usageResponse{
		Window:     res.Window,
		Total:      res.Total,
		Rows:       res.Rows(),
		ByModel:    res.GroupBy(engine.ByModel),
		ByEndpoint: res.GroupBy(engine.ByEndpoint),
		Anomalies:  make([]anomalyResponse, 0, len(res.Anomalies)),
	}
	for _, a := range res.Anomalies {
		msg := ""
		if a.Err != nil {
			msg = a.Err.Error()
		}
		resp.Anomalies = append(resp.Anomalies, anomalyResponse{At: a.At, Kind: a.Kind, Key: a.Key, Message: msg})
	}
	return resp
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CollectorHealth handles GET /api/collector/health.
func (h *Handler) CollectorHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.collector.Health())
}

// TriggerCollect handles POST /api/collector/trigger.
func (h *Handler) TriggerCollect(w http.ResponseWriter, _ *http.Request) {
	status := "triggered"
	if !h.collector.Trigger() {
		status = "pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

// Usage handles GET /api/usage?from=YYYY-MM-DD&to=YYYY-MM-DD. A missing to
// means today and a missing from means the same day as to.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	loc := h.usage.Planner().Location
	q := r.URL.Query()

	to, err := parseDate(q.Get("to"), h.now().In(loc), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date: "+err.Error())
		return
	}
	from, err := parseDate(q.Get("from"), to, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date: "+err.Error())
		return
	}

	spec := engine.Days(from, to)
	if from.Format(time.DateOnly) == to.Format(time.DateOnly) {
		spec = engine.Day(to)
	}
	h.writeUsage(w, r, spec)
}

// SlidingUsage handles GET /api/usage/sliding?minutes=N.
func (h *Handler) SlidingUsage(w http.ResponseWriter, r *http.Request) {
	minutes := defaultSlidingMinutes
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		minutes = n
	}
	h.writeUsage(w, r, engine.Sliding(h.now(), time.Duration(minutes)*time.Minute))
}

func (h *Handler) writeUsage(w http.ResponseWriter, r *http.Request, spec engine.WindowSpec) {
	res, err := h.usage.Window(r.Context(), spec)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidWindow) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Usage query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "usage query failed")
		return
	}
	writeJSON(w, http.StatusOK, newUsageResponse(res))
}

// Limits handles GET /api/limits.
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.limits.RateLimitStatuses(r.Context())
	if err != nil {
		logger.Error("Failed to load rate limit statuses", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rate limits")
		return
	}
	if statuses == nil {
		statuses = []models.RateLimitStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

// ResetLimit handles POST /api/limits/{id}/reset.
func (h *Handler) ResetLimit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid rate limit id")
		return
	}

	if err := h.limits.ResetLimit(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rate limit not found")
			return
		}
		logger.Error("Failed to reset rate limit", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset rate limit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "id": id})
}

// parseDate reads a YYYY-MM-DD date in loc, falling back to def when empty.
func parseDate(v string, def time.Time, loc *time.Location) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseInLocation(time.DateOnly, v, loc)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
