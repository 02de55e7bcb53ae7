// File: internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/auth"
	"github.com/xkilldash9x/autoapply/internal/service"
	"github.com/xkilldash9x/autoapply/internal/workflow"
)

// maxBodyBytes caps the /apply request body.
const maxBodyBytes = 64 << 10

// Applier is the service behind the HTTP boundary.
type Applier interface {
	Apply(ctx context.Context, jobURL string) (workflow.Result, error)
	Health() service.Health
	Reset(ctx context.Context)
}

// ApplyRequest is the /apply body.
type ApplyRequest struct {
	JobURL string `json:"job_url"`
}

// ErrorResponse is returned for requests that never produced a Result.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Handlers serves the HTTP endpoints.
type Handlers struct {
	log     *zap.Logger
	applier Applier
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, applier Applier) *Handlers {
	return &Handlers{
		log:     logger.Named("handlers"),
		applier: applier,
	}
}

// HandleApply runs one application. Success and workflow failures both
// return 200 with the Result; only requests that never reached the workflow
// get an error status.
func (h *Handlers) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil || strings.TrimSpace(req.JobURL) == "" {
		h.respondWithError(w, http.StatusBadRequest, "No job URL")
		return
	}
	jobURL := strings.TrimSpace(req.JobURL)

	res, err := h.applier.Apply(r.Context(), jobURL)
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusOK, res)
	case errors.Is(err, service.ErrBusy):
		h.respondWithError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, auth.ErrAuthenticationFailed):
		h.log.Error("Apply rejected: login failed.", zap.String("job_url", jobURL), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Login failed")
	default:
		h.log.Error("Apply request failed.", zap.String("job_url", jobURL), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

// HandleHealth reports service status. It never waits on a running apply.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, h.applier.Health())
}

// HandleReset closes the browser session and zeroes the counters.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.applier.Reset(context.WithoutCancel(r.Context()))
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, ErrorResponse{Status: "error", Message: message})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
