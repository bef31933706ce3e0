// Package httpx exposes the opsdesk operator API.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/target/opsdesk/internal/domain/model"
)

// JobRegistry is the slice of the job registry the API needs.
type JobRegistry interface {
	List(ctx context.Context) ([]*model.JobDefinition, error)
	Get(ctx context.Context, id int64) (*model.JobDefinition, error)
	Activate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
}

// RunLedger is the slice of the run ledger the API needs.
type RunLedger interface {
	LastCompleted(ctx context.Context, jobID int64) (*model.JobRun, error)
	History(ctx context.Context, jobID int64, limit int) ([]*model.JobRun, error)
	Get(ctx context.Context, runID int64) (*model.JobRun, error)
}

// JobHandlers provides HTTP handlers for the job catalog and its run history.
type JobHandlers struct {
	Registry JobRegistry
	Ledger   RunLedger
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// ListJobs returns every job definition.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Registry.List(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if defs == nil {
		defs = []*model.JobDefinition{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": defs})
}

// GetJob returns one job definition.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	def, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, def)
}

// ActivateJob marks a job definition active.
func (h *JobHandlers) ActivateJob(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// DeactivateJob marks a job definition inactive.
func (h *JobHandlers) DeactivateJob(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *JobHandlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var err error
	if active {
		err = h.Registry.Activate(r.Context(), id)
	} else {
		err = h.Registry.Deactivate(r.Context(), id)
	}
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
}

// LastCompletedRun returns the newest successful run of a job, or 404 when there is none.
func (h *JobHandlers) LastCompletedRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	run, err := h.Ledger.LastCompleted(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if run == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("job has no completed run"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// ListRuns returns a job's recent runs, newest first. ?limit= caps the count.
func (h *JobHandlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit := parseIntQuery(r, "limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	runs, err := h.Ledger.History(r.Context(), id, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []*model.JobRun{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun returns one run by id.
func (h *JobHandlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	run, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}
