package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/opsdesk/internal/domain/model"
	"github.com/target/opsdesk/internal/mocks"
	"github.com/target/opsdesk/internal/service"
)

type jobTestHarness struct {
	router  http.Handler
	defRepo *mocks.MockJobDefinitionRepository
	runRepo *mocks.MockJobRunRepository
}

func newJobTestHarness(t *testing.T) *jobTestHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	defRepo := mocks.NewMockJobDefinitionRepository(ctrl)
	runRepo := mocks.NewMockJobRunRepository(ctrl)
	router := NewRouter(RouterServices{
		Registry: service.NewJobRegistryService(service.JobRegistryServiceOptions{Repo: defRepo}),
		Ledger:   service.NewRunLedgerService(service.RunLedgerServiceOptions{Repo: runRepo}),
		Batch:    &fakeBatchRunner{},
	})
	return &jobTestHarness{router: router, defRepo: defRepo, runRepo: runRepo}
}

func (h *jobTestHarness) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestListJobs(t *testing.T) {
	h := newJobTestHarness(t)
	h.defRepo.EXPECT().List(gomock.Any()).Return([]*model.JobDefinition{
		{ID: 2, Name: "dormant report", Active: true},
		{ID: 1, Name: "error scan", Active: false},
	}, nil)

	rec := h.do(http.MethodGet, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs []model.JobDefinition `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 2)
	assert.Equal(t, int64(1), body.Jobs[0].ID)
	assert.Equal(t, int64(2), body.Jobs[1].ID)
}

func TestListJobs_Empty(t *testing.T) {
	h := newJobTestHarness(t)
	h.defRepo.EXPECT().List(gomock.Any()).Return(nil, nil)

	rec := h.do(http.MethodGet, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobs":[]}`, rec.Body.String())
}

func TestGetJob(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h := newJobTestHarness(t)
		h.defRepo.EXPECT().GetByID(gomock.Any(), int64(1)).Return(&model.JobDefinition{ID: 1, Name: "error scan"}, nil)

		rec := h.do(http.MethodGet, "/api/jobs/1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "error scan", decodeBody(t, rec)["name"])
	})

	t.Run("not found", func(t *testing.T) {
		h := newJobTestHarness(t)
		h.defRepo.EXPECT().GetByID(gomock.Any(), int64(9)).Return(nil, model.ErrJobNotFound)

		rec := h.do(http.MethodGet, "/api/jobs/9")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeBody(t, rec)["error"])
	})

	t.Run("bad id", func(t *testing.T) {
		h := newJobTestHarness(t)
		rec := h.do(http.MethodGet, "/api/jobs/abc")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_path", decodeBody(t, rec)["error"])
	})

	t.Run("repository failure", func(t *testing.T) {
		h := newJobTestHarness(t)
		h.defRepo.EXPECT().GetByID(gomock.Any(), int64(1)).Return(nil, errors.New("connection reset"))

		rec := h.do(http.MethodGet, "/api/jobs/1")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal", decodeBody(t, rec)["error"])
	})
}

func TestActivateDeactivateJob(t *testing.T) {
	h := newJobTestHarness(t)
	h.defRepo.EXPECT().SetActive(gomock.Any(), int64(3), true).Return(true, nil)
	h.defRepo.EXPECT().SetActive(gomock.Any(), int64(3), false).Return(true, nil)
	h.defRepo.EXPECT().SetActive(gomock.Any(), int64(4), true).Return(false, nil)

	rec := h.do(http.MethodPost, "/api/jobs/3/activate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":3,"active":true}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/jobs/3/deactivate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":3,"active":false}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/jobs/4/activate")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLastCompletedRun(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	jobID := int64(1)

	t.Run("present", func(t *testing.T) {
		h := newJobTestHarness(t)
		h.runRepo.EXPECT().LastCompleted(gomock.Any(), int64(1)).
			Return(&model.JobRun{ID: 7, JobID: &jobID, CreatedAt: created, Completed: true}, nil)

		rec := h.do(http.MethodGet, "/api/jobs/1/runs/last-completed")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.InDelta(t, 7, body["id"], 0)
		assert.Equal(t, true, body["completed"])
	})

	t.Run("never completed", func(t *testing.T) {
		h := newJobTestHarness(t)
		h.runRepo.EXPECT().LastCompleted(gomock.Any(), int64(1)).Return(nil, nil)

		rec := h.do(http.MethodGet, "/api/jobs/1/runs/last-completed")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListRuns_LimitClamped(t *testing.T) {
	h := newJobTestHarness(t)
	h.runRepo.EXPECT().ListByJob(gomock.Any(), int64(1), defaultHistoryLimit).Return(nil, nil)
	h.runRepo.EXPECT().ListByJob(gomock.Any(), int64(1), 5).Return([]*model.JobRun{{ID: 1}}, nil)

	rec := h.do(http.MethodGet, "/api/jobs/1/runs?limit=100000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/jobs/1/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	h := newJobTestHarness(t)
	h.runRepo.EXPECT().GetByID(gomock.Any(), int64(12)).Return(nil, model.ErrRunNotFound)

	rec := h.do(http.MethodGet, "/api/runs/12")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
