package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
)

const defaultErrorScanQuery = `SELECT id, severity, title, detail, script, created_at
FROM execution_log
WHERE severity = ANY($1) AND created_at > $2
ORDER BY created_at ASC
LIMIT $3`

// ErrorScanConfig tunes the recent error scan.
type ErrorScanConfig struct {
	// Lookback bounds the window when the job has never completed successfully.
	Lookback time.Duration
	// Threshold names the lowest severity reported; empty or unknown names mean ERROR.
	Threshold string
	// Limit caps the number of entries in one payload.
	Limit int
	// Query overrides the log lookup. It receives severities, since and limit as $1..$3.
	Query string
}

// checkpointReader is the slice of the run ledger the scan depends on.
type checkpointReader interface {
	LastCompletedRun(ctx context.Context, jobID int64) (time.Time, bool, error)
}

// ErrorScanHandlerOptions groups dependencies for ErrorScanHandler.
type ErrorScanHandlerOptions struct {
	Source core.QuerySource // Required
	Ledger checkpointReader // Required
	Config ErrorScanConfig
	Logger *slog.Logger
	Now    func() time.Time
}

// ErrorScanHandler reports execution log entries at or above a severity threshold that were
// written after the job's last successful run.
type ErrorScanHandler struct {
	source    core.QuerySource
	ledger    checkpointReader
	cfg       ErrorScanConfig
	threshold model.Severity
	logger    *slog.Logger
	now       func() time.Time
}

var _ JobHandler = (*ErrorScanHandler)(nil)

// NewErrorScanHandler constructs the handler. It panics when Source or Ledger is nil.
func NewErrorScanHandler(opts ErrorScanHandlerOptions) *ErrorScanHandler {
	if opts.Source == nil || opts.Ledger == nil {
		panic("ErrorScanHandler requires a QuerySource and a run ledger")
	}
	cfg := opts.Config
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 500
	}
	if cfg.Query == "" {
		cfg.Query = defaultErrorScanQuery
	}
	threshold, ok := model.ParseSeverity(strings.ToUpper(strings.TrimSpace(cfg.Threshold)))
	if !ok {
		threshold = model.SeverityError
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ErrorScanHandler{
		source:    opts.Source,
		ledger:    opts.Ledger,
		cfg:       cfg,
		threshold: threshold,
		logger:    logger.With("component", "error_scan"),
		now:       now,
	}
}

// Handle runs the scan for req.Job.
func (h *ErrorScanHandler) Handle(ctx context.Context, req HandlerRequest) (any, error) {
	if req.Job == nil {
		return nil, fmt.Errorf("error scan: %w", model.ErrJobNotFound)
	}
	until := h.now().UTC()
	since, err := h.windowStart(ctx, req.Job.ID, until)
	if err != nil {
		return nil, err
	}

	rows, err := h.source.Query(ctx, core.Query{
		Text: h.cfg.Query,
		Args: []any{h.threshold.AtOrAbove(), since, h.cfg.Limit},
	})
	if err != nil {
		return nil, fmt.Errorf("query execution log: %w", err)
	}

	result := model.ErrorScanResult{Since: since, Until: until, Entries: make([]model.LogEntry, 0, len(rows))}
	for _, row := range rows {
		entry := model.LogEntry{
			ID:       rowString(row, "id"),
			Severity: rowString(row, "severity"),
			Title:    rowString(row, "title"),
			Detail:   rowString(row, "detail"),
			Script:   rowString(row, "script"),
		}
		if ts, ok := rowTime(row, "created_at"); ok {
			entry.CreatedAt = ts.UTC()
		}
		result.Entries = append(result.Entries, entry)
	}

	h.logger.InfoContext(ctx, "error scan finished",
		"job_id", req.Job.ID,
		"run_id", req.RunID,
		"since", since,
		"entries", len(result.Entries),
	)
	return result, nil
}

// windowStart returns the checkpoint of the last completed run, or until minus the lookback.
func (h *ErrorScanHandler) windowStart(ctx context.Context, jobID int64, until time.Time) (time.Time, error) {
	last, ok, err := h.ledger.LastCompletedRun(ctx, jobID)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return until.Add(-h.cfg.Lookback), nil
	}
	return last.UTC(), nil
}
