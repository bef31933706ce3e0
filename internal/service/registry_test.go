package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/opsdesk/internal/domain/model"
	"github.com/target/opsdesk/internal/mocks"
)

func TestNewJobRegistryServicePanicsWithoutRepo(t *testing.T) {
	assert.Panics(t, func() { NewJobRegistryService(JobRegistryServiceOptions{}) })
}

func TestJobRegistryService_ListActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobDefinitionRepository(ctrl)
	svc := NewJobRegistryService(JobRegistryServiceOptions{Repo: repo})

	manual := activeJob(3, "manual")
	manual.Schedulable = false
	repo.EXPECT().ListActive(gomock.Any(), true).Return([]*model.JobDefinition{
		activeJob(8, "b"), manual, activeJob(1, "a"), nil,
	}, nil)

	defs, err := svc.ListActive(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, int64(1), defs[0].ID)
	assert.Equal(t, int64(8), defs[1].ID)
}

func TestJobRegistryService_ListActiveError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobDefinitionRepository(ctrl)
	svc := NewJobRegistryService(JobRegistryServiceOptions{Repo: repo})

	repo.EXPECT().ListActive(gomock.Any(), false).Return(nil, errors.New("connection refused"))

	_, err := svc.ListActive(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestJobRegistryService_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobDefinitionRepository(ctrl)
	svc := NewJobRegistryService(JobRegistryServiceOptions{Repo: repo})
	ctx := context.Background()

	repo.EXPECT().GetByID(gomock.Any(), int64(1)).Return(activeJob(1, "scan"), nil)
	repo.EXPECT().GetByID(gomock.Any(), int64(2)).Return(nil, model.ErrJobNotFound)
	repo.EXPECT().GetByID(gomock.Any(), int64(3)).Return(nil, nil)

	def, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "scan", def.Name)

	_, err = svc.Get(ctx, 2)
	require.ErrorIs(t, err, model.ErrJobNotFound)

	_, err = svc.Get(ctx, 3)
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestJobRegistryService_ActivateDeactivate(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobDefinitionRepository(ctrl)
	svc := NewJobRegistryService(JobRegistryServiceOptions{Repo: repo})
	ctx := context.Background()

	gomock.InOrder(
		repo.EXPECT().SetActive(gomock.Any(), int64(4), true).Return(true, nil),
		repo.EXPECT().SetActive(gomock.Any(), int64(4), false).Return(true, nil),
		repo.EXPECT().SetActive(gomock.Any(), int64(5), false).Return(false, nil),
	)

	require.NoError(t, svc.Activate(ctx, 4))
	require.NoError(t, svc.Deactivate(ctx, 4))
	require.ErrorIs(t, svc.Deactivate(ctx, 5), model.ErrJobNotFound)
}

func TestJobRegistryService_InstallFallsBackToUpsert(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobDefinitionRepository(ctrl)
	svc := NewJobRegistryService(JobRegistryServiceOptions{Repo: repo})

	reqs := []*model.InstallJobRequest{
		{ID: 1, Name: "Recent error scan", Schedulable: true, Active: true},
		{ID: 2, Name: "Dormant entity report"},
	}
	repo.EXPECT().Upsert(gomock.Any(), reqs[0]).Return(activeJob(1, "Recent error scan"), nil)
	repo.EXPECT().Upsert(gomock.Any(), reqs[1]).Return(&model.JobDefinition{ID: 2, Name: "Dormant entity report"}, nil)

	defs, err := svc.Install(context.Background(), reqs)
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}

type bulkRepo struct {
	*memJobRepo
	calls int
}

func (b *bulkRepo) UpsertAll(ctx context.Context, reqs []*model.InstallJobRequest) ([]*model.JobDefinition, error) {
	b.calls++
	out := make([]*model.JobDefinition, 0, len(reqs))
	for _, r := range reqs {
		d, err := b.Upsert(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func TestJobRegistryService_InstallUsesBulkWhenAvailable(t *testing.T) {
	repo := &bulkRepo{memJobRepo: newMemJobRepo()}
	svc := NewJobRegistryService(JobRegistryServiceOptions{Repo: repo})

	defs, err := svc.Install(context.Background(), []*model.InstallJobRequest{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
	require.NoError(t, err)
	assert.Len(t, defs, 2)
	assert.Equal(t, 1, repo.calls)
}
