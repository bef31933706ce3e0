package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
)

// DormantReportHandlerOptions groups dependencies for DormantReportHandler.
type DormantReportHandlerOptions struct {
	Settings     core.SettingsRepository // Required
	DormantAfter time.Duration           // Optional; defaults to 90 days
	Logger       *slog.Logger
	Now          func() time.Time
}

// DormantReportHandler lists entities from the latest activity snapshot that were never
// active or have been idle longer than DormantAfter.
type DormantReportHandler struct {
	settings     core.SettingsRepository
	dormantAfter time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

var _ JobHandler = (*DormantReportHandler)(nil)

// NewDormantReportHandler constructs the handler. It panics when Settings is nil.
func NewDormantReportHandler(opts DormantReportHandlerOptions) *DormantReportHandler {
	if opts.Settings == nil {
		panic("DormantReportHandler requires a SettingsRepository")
	}
	after := opts.DormantAfter
	if after <= 0 {
		after = 90 * 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &DormantReportHandler{
		settings:     opts.Settings,
		dormantAfter: after,
		logger:       logger.With("component", "dormant_report"),
		now:          now,
	}
}

// Handle builds the report. A missing snapshot yields an empty report.
func (h *DormantReportHandler) Handle(ctx context.Context, req HandlerRequest) (any, error) {
	cutoff := h.now().UTC().Add(-h.dormantAfter)
	report := model.DormantReport{Cutoff: cutoff, Dormant: []model.ActivityEntry{}}

	snap, err := h.settings.GetSnapshot(ctx)
	switch {
	case errors.Is(err, model.ErrSnapshotNotFound):
		return report, nil
	case err != nil:
		return nil, fmt.Errorf("load activity snapshot: %w", err)
	}
	report.SnapshotAt = snap.FinishedAt

	for _, entry := range snap.Entries {
		if isDormant(entry.LastActivity, cutoff) {
			report.Dormant = append(report.Dormant, entry)
		}
	}

	var jobID int64
	if req.Job != nil {
		jobID = req.Job.ID
	}
	h.logger.InfoContext(ctx, "dormant report finished", "job_id", jobID, "dormant", len(report.Dormant))
	return report, nil
}

// isDormant treats empty and unparseable values as never active.
func isDormant(lastActivity string, cutoff time.Time) bool {
	ts, ok := parseTimestamp(lastActivity)
	if !ok {
		return true
	}
	return ts.Before(cutoff)
}
