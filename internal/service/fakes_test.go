package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
	"github.com/target/opsdesk/internal/observability/notify"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type memJobRepo struct {
	mu   sync.Mutex
	defs map[int64]*model.JobDefinition
	err  error
}

var _ core.JobDefinitionRepository = (*memJobRepo)(nil)

func newMemJobRepo(defs ...*model.JobDefinition) *memJobRepo {
	r := &memJobRepo{defs: make(map[int64]*model.JobDefinition)}
	for _, d := range defs {
		r.defs[d.ID] = d
	}
	return r
}

func (r *memJobRepo) ListActive(_ context.Context, schedulableOnly bool) ([]*model.JobDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*model.JobDefinition
	for _, d := range r.defs {
		if d.Active && (!schedulableOnly || d.Schedulable) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memJobRepo) List(context.Context) ([]*model.JobDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.JobDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memJobRepo) GetByID(_ context.Context, id int64) (*model.JobDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	d, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, model.ErrJobNotFound)
	}
	cp := *d
	return &cp, nil
}

func (r *memJobRepo) Upsert(_ context.Context, req *model.InstallJobRequest) (*model.JobDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &model.JobDefinition{ID: req.ID, Name: req.Name, Schedulable: req.Schedulable, Active: req.Active}
	if prev, ok := r.defs[req.ID]; ok {
		d.Active = prev.Active
	}
	r.defs[req.ID] = d
	return d, nil
}

func (r *memJobRepo) SetActive(_ context.Context, id int64, active bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.defs[id]
	if !ok {
		return false, nil
	}
	d.Active = active
	return true, nil
}

// memRunRepo is an in-memory ledger. Each Create advances its clock by one second.
type memRunRepo struct {
	mu          sync.Mutex
	runs        []*model.JobRun
	completions map[int64]int
	tick        int
	createErr   error
	completeErr map[int64]error
}

var _ core.JobRunRepository = (*memRunRepo)(nil)

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{completions: make(map[int64]int)}
}

func (r *memRunRepo) Create(_ context.Context, jobID *int64) (*model.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.tick++
	run := &model.JobRun{ID: int64(len(r.runs) + 1), CreatedAt: baseTime.Add(time.Duration(r.tick) * time.Second)}
	if jobID != nil {
		id := *jobID
		run.JobID = &id
	}
	r.runs = append(r.runs, run)
	cp := *run
	return &cp, nil
}

// Complete fails once ctx is done, the way database/sql does.
func (r *memRunRepo) Complete(ctx context.Context, p model.CompleteRunParams) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.completeErr[p.RunID]; err != nil {
		return false, err
	}
	r.completions[p.RunID]++
	for _, run := range r.runs {
		if run.ID != p.RunID || run.FinishedAt != nil {
			continue
		}
		finished := run.CreatedAt.Add(time.Millisecond)
		payload := p.Payload
		run.Completed = p.Completed
		run.ResultPayload = &payload
		run.FinishedAt = &finished
		return true, nil
	}
	return false, nil
}

func (r *memRunRepo) LastCompleted(_ context.Context, jobID int64) (*model.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *model.JobRun
	for _, run := range r.runs {
		if run.JobID == nil || *run.JobID != jobID || !run.Completed {
			continue
		}
		if last == nil || run.CreatedAt.After(last.CreatedAt) {
			last = run
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (r *memRunRepo) GetByID(_ context.Context, id int64) (*model.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ID == id {
			cp := *run
			return &cp, nil
		}
	}
	return nil, model.ErrRunNotFound
}

func (r *memRunRepo) ListByJob(_ context.Context, jobID int64, _ int) ([]*model.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.JobRun
	for i := len(r.runs) - 1; i >= 0; i-- {
		if run := r.runs[i]; run.JobID != nil && *run.JobID == jobID {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRunRepo) runsFor(jobID int64) []*model.JobRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.JobRun
	for _, run := range r.runs {
		if run.JobID != nil && *run.JobID == jobID {
			out = append(out, run)
		}
	}
	return out
}

type memSettings struct {
	mu     sync.Mutex
	snap   *model.ActivitySnapshot
	puts   int
	putErr error
}

var _ core.SettingsRepository = (*memSettings)(nil)

func (s *memSettings) GetSnapshot(context.Context) (*model.ActivitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, model.ErrSnapshotNotFound
	}
	cp := *s.snap
	return &cp, nil
}

func (s *memSettings) PutSnapshot(_ context.Context, snap *model.ActivitySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	cp := *snap
	s.snap = &cp
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

type staticCatalog []model.EntityKey

func (c staticCatalog) List(context.Context) ([]model.EntityKey, error) {
	return c, nil
}

func activeJob(id int64, name string) *model.JobDefinition {
	return &model.JobDefinition{ID: id, Name: name, Active: true, Schedulable: true}
}
