package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/store"
)

// Handler implements the API endpoints.
type Handler struct {
	store        store.HistoryStore
	scorer       Scorer
	scoreTimeout time.Duration
}

// NewHandler returns a Handler. scorer may be nil, which disables
// on-demand scoring.
func NewHandler(st store.HistoryStore, scorer Scorer, scoreTimeout time.Duration) *Handler {
	return &Handler{store: st, scorer: scorer, scoreTimeout: scoreTimeout}
}

// Health reports whether the history store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	snaps, err := h.store.GetHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, model.NewError(model.ErrPersistence, chi.URLParam(r, "id"), err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": nonNilSnapshots(snaps)})
}

func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.store.GetLatestBySubject(r.Context(), id)
	if err != nil {
		writeError(w, model.NewError(model.ErrPersistence, id, err))
		return
	}
	if snap == nil {
		writeError(w, model.NewError(model.ErrNotFound, id, errors.New("subject has never been scored")))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) Risk(w http.ResponseWriter, r *http.Request) {
	category, ok := model.ParseRiskCategory(chi.URLParam(r, "category"))
	if !ok {
		writeError(w, model.NewError(model.ErrInvalid, "", errors.New("unknown risk category")))
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	snaps, err := h.store.ListByRiskCategory(r.Context(), category, limit)
	if err != nil {
		writeError(w, model.NewError(model.ErrPersistence, "", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "snapshots": nonNilSnapshots(snaps)})
}

// Score runs the pipeline synchronously. The run is detached from the
// client connection so a disconnect cannot abandon a half-finished subject.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "scoring is not enabled on this server"})
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.scoreTimeout)
	defer cancel()

	snap, err := h.scorer.Score(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.AlertFilter{
		SubjectID:      q.Get("subject_id"),
		UnresolvedOnly: q.Get("unresolved") == "true",
		Limit:          limit,
	}
	alerts, err := h.store.ListAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, model.NewError(model.ErrPersistence, filter.SubjectID, err))
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ResolveAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		if model.KindOf(err) == model.ErrUnknown {
			err = model.NewError(model.ErrPersistence, "", err)
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, model.NewError(model.ErrInvalid, "", errors.New("limit must be a non-negative integer")))
		return 0, false
	}
	return n, true
}

func nonNilSnapshots(s []model.ScoreSnapshot) []model.ScoreSnapshot {
	if s == nil {
		return []model.ScoreSnapshot{}
	}
	return s
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(err error) int {
	switch model.KindOf(err) {
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrInvalid:
		return http.StatusBadRequest
	case model.ErrCollection:
		return http.StatusBadGateway
	case model.ErrPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(model.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
