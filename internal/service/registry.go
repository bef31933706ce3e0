package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
)

// JobRegistryServiceOptions groups dependencies for JobRegistryService.
type JobRegistryServiceOptions struct {
	Repo   core.JobDefinitionRepository // Required
	Logger *slog.Logger                 // Optional
}

// bulkInstaller is implemented by repositories that can install a catalog atomically.
type bulkInstaller interface {
	UpsertAll(ctx context.Context, reqs []*model.InstallJobRequest) ([]*model.JobDefinition, error)
}

// JobRegistryService is the catalog of job definitions.
type JobRegistryService struct {
	repo   core.JobDefinitionRepository
	logger *slog.Logger
}

// NewJobRegistryService constructs the registry. It panics when Repo is nil.
func NewJobRegistryService(opts JobRegistryServiceOptions) *JobRegistryService {
	if opts.Repo == nil {
		panic("JobRegistryService requires a JobDefinitionRepository")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRegistryService{repo: opts.Repo, logger: logger.With("component", "job_registry")}
}

// ListActive returns active definitions ordered by id ascending.
func (s *JobRegistryService) ListActive(ctx context.Context, schedulableOnly bool) ([]*model.JobDefinition, error) {
	defs, err := s.repo.ListActive(ctx, schedulableOnly)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	out := defs[:0:0]
	for _, d := range defs {
		if d == nil || !d.Active || (schedulableOnly && !d.Schedulable) {
			continue
		}
		out = append(out, d)
	}
	sortByID(out)
	return out, nil
}

// List returns every definition ordered by id ascending.
func (s *JobRegistryService) List(ctx context.Context) ([]*model.JobDefinition, error) {
	defs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	sortByID(defs)
	return defs, nil
}

// Get returns the definition or an error wrapping model.ErrJobNotFound.
func (s *JobRegistryService) Get(ctx context.Context, id int64) (*model.JobDefinition, error) {
	def, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	if def == nil {
		return nil, fmt.Errorf("job %d: %w", id, model.ErrJobNotFound)
	}
	return def, nil
}

// Install creates or refreshes definitions. When the repository supports it the
// whole catalog is written in one transaction.
func (s *JobRegistryService) Install(
	ctx context.Context,
	reqs []*model.InstallJobRequest,
) ([]*model.JobDefinition, error) {
	if bulk, ok := s.repo.(bulkInstaller); ok {
		defs, err := bulk.UpsertAll(ctx, reqs)
		if err != nil {
			return nil, fmt.Errorf("install jobs: %w", err)
		}
		s.logger.InfoContext(ctx, "installed job definitions", "count", len(defs))
		return defs, nil
	}

	out := make([]*model.JobDefinition, 0, len(reqs))
	for _, req := range reqs {
		def, err := s.repo.Upsert(ctx, req)
		if err != nil {
			return out, fmt.Errorf("install job: %w", err)
		}
		out = append(out, def)
	}
	s.logger.InfoContext(ctx, "installed job definitions", "count", len(out))
	return out, nil
}

// Activate marks a definition active.
func (s *JobRegistryService) Activate(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, true)
}

// Deactivate marks a definition inactive. Definitions are never deleted.
func (s *JobRegistryService) Deactivate(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, false)
}

func (s *JobRegistryService) setActive(ctx context.Context, id int64, active bool) error {
	ok, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return fmt.Errorf("set job %d active=%t: %w", id, active, err)
	}
	if !ok {
		return fmt.Errorf("job %d: %w", id, model.ErrJobNotFound)
	}
	s.logger.InfoContext(ctx, "job activation changed", "job_id", id, "active", active)
	return nil
}

func sortByID(defs []*model.JobDefinition) {
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
}
