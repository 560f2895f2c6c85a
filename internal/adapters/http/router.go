package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

// JobTracking is the part of the job tracker the worker API exposes.
type JobTracking interface {
	Track(ctx context.Context, jobID string, kind domain.JobKind) error
	Active() []string
}

// Router serves the worker's tracking API.
type Router struct {
	tracker JobTracking
	store   ports.TrackedJobStore
	metrics http.Handler
	logger  *slog.Logger
}

func NewRouter(tracker JobTracking, store ports.TrackedJobStore, metrics http.Handler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		tracker: tracker,
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}
	mux.HandleFunc("/v1/jobs", rt.jobs)
	mux.HandleFunc("/v1/jobs/", rt.getJobByID)
	return accessLogMiddleware(rt.logger, mux)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		active := rt.tracker.Active()
		sort.Strings(active)
		annotate(r.Context(), "active_jobs", len(active))
		writeJSON(w, http.StatusOK, map[string]any{"active": active})
	case http.MethodPost:
		rt.trackJob(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) trackJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"job_id"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	kind := domain.JobKind(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = domain.JobKindAnalysis
	}
	annotate(r.Context(), "job_id", strings.TrimSpace(req.JobID), "kind", string(kind))

	if err := rt.tracker.Track(r.Context(), req.JobID, kind); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": strings.TrimSpace(req.JobID), "kind": string(kind)})
}

func (rt *Router) getJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	annotate(r.Context(), "job_id", id)

	job, err := rt.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	annotate(r.Context(), "kind", string(job.Kind), "state", string(job.State))
	writeJSON(w, http.StatusOK, job)
}

// errorStatus maps a domain error kind onto the response status.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound, "job_not_found"
	case errors.Is(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable, "temporary"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := errorStatus(err)
	annotate(r.Context(), "error_kind", kind, "error", err.Error())

	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		message = "internal error"
	case http.StatusNotFound:
		message = "job not found"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
