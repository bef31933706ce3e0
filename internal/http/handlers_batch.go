package httpx

import (
	"context"
	"net/http"

	"github.com/target/opsdesk/internal/domain/model"
)

// BatchRunner executes triggers and exposes the latest activity snapshot.
type BatchRunner interface {
	Run(ctx context.Context, trig model.Trigger) (*model.BatchReport, error)
	LatestActivity(ctx context.Context) (*model.ActivitySnapshot, error)
}

// BatchHandlers provides HTTP handlers for triggering pipeline runs.
type BatchHandlers struct {
	Svc BatchRunner
}

// Trigger runs the posted trigger synchronously and returns the aggregate report.
// Item failures are part of a 200 report; only fatal errors change the status.
func (h *BatchHandlers) Trigger(w http.ResponseWriter, r *http.Request) {
	var trig model.Trigger
	if !DecodeJSON(w, r, &trig) {
		return
	}
	report, err := h.Svc.Run(r.Context(), trig)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// LatestActivity returns the stored activity snapshot.
func (h *BatchHandlers) LatestActivity(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Svc.LatestActivity(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}
