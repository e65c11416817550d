package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/abhisek/tutorloop/internal/batch"
	"github.com/abhisek/tutorloop/internal/knowunity"
	"github.com/abhisek/tutorloop/internal/session"
	"github.com/abhisek/tutorloop/internal/store"
	"github.com/abhisek/tutorloop/internal/trace"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type handler struct {
	repos      Repos
	log        *zap.Logger
	traceLimit int
}

// predictionsResponse is the body of GET /api/predictions. RunID is empty
// when predictions were derived from persisted sessions.
type predictionsResponse struct {
	RunID       string                 `json:"run_id,omitempty"`
	Source      string                 `json:"source"`
	Predictions []knowunity.Prediction `json:"predictions"`
}

// predictions serves a run's predictions. Without ?run= it uses the latest
// run, falling back to finalized sessions when no run is stored.
// ?source=sessions forces the session-derived view.
func (h *handler) predictions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if q.Get("source") != "sessions" {
		runID := q.Get("run")
		if runID == "" {
			latest, err := h.repos.Predictions.LatestRunID(ctx)
			if err != nil {
				h.internalError(w, "latest run", err)
				return
			}
			runID = latest
		}
		if runID != "" {
			recs, err := h.repos.Predictions.ListRun(ctx, runID)
			if err != nil {
				h.internalError(w, "list run", err)
				return
			}
			if len(recs) == 0 {
				http.Error(w, "run not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, predictionsResponse{
				RunID:       runID,
				Source:      "run",
				Predictions: batch.RecordPredictions(recs),
			})
			return
		}
	}

	sessions, err := h.repos.Sessions.List(ctx, "")
	if err != nil {
		h.internalError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, predictionsResponse{
		Source:      "sessions",
		Predictions: batch.SessionPredictions(sessions),
	})
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repos.Sessions.List(r.Context(), r.URL.Query().Get("student"))
	if err != nil {
		h.internalError(w, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *handler) showSession(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "student")
	topicID := chi.URLParam(r, "topic")

	s, err := h.repos.Sessions.Get(r.Context(), studentID, topicID)
	if err != nil {
		h.internalError(w, "get session", err)
		return
	}
	if s == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) traces(w http.ResponseWriter, r *http.Request) {
	limit := h.traceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.repos.Traces.ListTraces(r.Context(), store.TraceFilter{
		StudentID: chi.URLParam(r, "student"),
		TopicID:   r.URL.Query().Get("topic"),
		Limit:     limit,
	})
	if err != nil {
		h.internalError(w, "list traces", err)
		return
	}
	if events == nil {
		events = []trace.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error("request failed", zap.String("op", op), zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
