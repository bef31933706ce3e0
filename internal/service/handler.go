package service

import (
	"context"

	"github.com/target/opsdesk/internal/domain/model"
)

// HandlerRequest carries the definition and the open run a handler works under.
type HandlerRequest struct {
	Job   *model.JobDefinition
	RunID int64
}

// JobHandler executes one maintenance job. The returned value is serialized as the run payload.
type JobHandler interface {
	Handle(ctx context.Context, req HandlerRequest) (any, error)
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, req HandlerRequest) (any, error)

// Handle implements JobHandler.
func (f JobHandlerFunc) Handle(ctx context.Context, req HandlerRequest) (any, error) {
	return f(ctx, req)
}

// Built-in handler ids. Installers register definitions under these ids.
const (
	ErrorScanJobID     int64 = 1
	DormantReportJobID int64 = 2
)
