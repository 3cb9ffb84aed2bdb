package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/pkg/errors"
)

// CalculationService is satisfied by *calculation.Service.
type CalculationService interface {
	Calculate(ctx context.Context, req calculation.Request) (*run.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*run.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*run.Run, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
}

type CalculationHandler struct {
	svc     CalculationService
	maxBody int64
	logger  logging.Logger
}

func NewCalculationHandler(svc CalculationService, maxBody int64, log logging.Logger) *CalculationHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &CalculationHandler{svc: svc, maxBody: maxBody, logger: log}
}

// Calculate handles POST /api/v1/calculate.
func (h *CalculationHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculation.Request
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeAppError(w, err)
		return
	}
	res, err := h.svc.Calculate(r.Context(), req)
	if err != nil {
		h.logger.Warn("Calculate request failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func runID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		return uuid.Nil, errors.InvalidParam("invalid run id").WithDetail(chi.URLParam(r, "runID"))
	}
	return id, nil
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *CalculationHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	res, err := h.svc.GetRun(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteRun handles DELETE /api/v1/runs/{runID}.
func (h *CalculationHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.svc.DeleteRun(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ListRunsResponse struct {
	Runs   []*run.Run `json:"runs"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// ListRuns handles GET /api/v1/runs.
func (h *CalculationHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	runs, err := h.svc.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if runs == nil {
		runs = []*run.Run{}
	}
	writeJSON(w, http.StatusOK, ListRunsResponse{Runs: runs, Limit: limit, Offset: offset})
}
