// Package api serves job status and finished records over HTTP. The same
// router runs behind the local server and behind API Gateway on Lambda.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/videointel/internal/fusion"
	"github.com/fpang/videointel/internal/jobs"
	"github.com/fpang/videointel/internal/output"
	"github.com/fpang/videointel/internal/record"
	"github.com/fpang/videointel/internal/store"
)

// Submitter queues a local video for processing.
type Submitter interface {
	Submit(ctx context.Context, path string) (*store.Job, error)
}

// ServerConfig wires the router to its backends. Submit is optional; when
// nil, POST /v1/jobs is not served.
type ServerConfig struct {
	Jobs      store.JobStore
	Records   output.Reader
	Submit    Submitter
	Version   string
	StartTime time.Time
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggingMiddleware())

	r.Get("/healthz", healthHandler(cfg))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/videos/{videoID}/record", getRecordHandler(cfg))
		if cfg.Submit != nil {
			r.Post("/jobs", submitJobHandler(cfg))
		}
	})

	return r
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

// JobsResponse is returned by GET /v1/jobs.
type JobsResponse struct {
	Jobs []*store.Job `json:"jobs"`
}

// SubmitRequest is the body of POST /v1/jobs.
type SubmitRequest struct {
	Path string `json:"path"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := store.DefaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500", "BAD_REQUEST")
				return
			}
			limit = n
		}
		list, err := cfg.Jobs.ListJobs(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list jobs")
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}
		if list == nil {
			list = []*store.Job{}
		}
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: list})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := jobs.Normalize(chi.URLParam(r, "id"))
		job, err := cfg.Jobs.GetJob(r.Context(), id)
		if err != nil {
			log.Error().Err(err).Str("jobId", id).Msg("Failed to get job")
			WriteError(w, http.StatusInternalServerError, "failed to get job", "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func getRecordHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "videoID")
		rec, err := cfg.Records.Read(r.Context(), videoID)
		if errors.Is(err, output.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "record not found", "NOT_FOUND")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("videoId", videoID).Msg("Failed to read record")
			WriteError(w, http.StatusInternalServerError, "failed to read record", "INTERNAL_ERROR")
			return
		}
		data, err := record.Encode(rec)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to encode record", "INTERNAL_ERROR")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func submitJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.Path == "" {
			WriteError(w, http.StatusBadRequest, "body must be {\"path\": \"...\"}", "BAD_REQUEST")
			return
		}
		job, err := cfg.Submit.Submit(r.Context(), req.Path)
		if err != nil {
			status, code := http.StatusBadRequest, "BAD_REQUEST"
			if errors.Is(err, fusion.ErrQueueFull) {
				status, code = http.StatusServiceUnavailable, "QUEUE_FULL"
			}
			WriteError(w, status, err.Error(), code)
			return
		}
		w.Header().Set("Location", "/v1/jobs/"+job.ID)
		WriteJSON(w, http.StatusAccepted, job)
	}
}
