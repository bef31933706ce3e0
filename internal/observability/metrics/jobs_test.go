package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/opsdesk/internal/observability/statsd"
)

func TestEmitBatch(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitBatch(rec, BatchMetric{Selector: "allJobs", Items: 3, Failed: 1, Duration: time.Second})

	runs := rec.Find("batch.run")
	require.Len(t, runs, 1)
	assert.Equal(t, "allJobs", runs[0].Tags["selector"])
	assert.Equal(t, ResultSuccess, runs[0].Tags["result"])

	failed := rec.Find("batch.failed")
	require.Len(t, failed, 1)
	assert.InDelta(t, 1, failed[0].Value, 0)
	assert.Len(t, rec.Find("batch.duration"), 1)
}

func TestEmitBatchErrorAndNoop(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitBatch(rec, BatchMetric{Selector: "job", Err: errors.New("boom")})
	EmitBatch(rec, BatchMetric{Selector: "entityScan"})

	runs := rec.Find("batch.run")
	require.Len(t, runs, 2)
	assert.Equal(t, ResultError, runs[0].Tags["result"])
	assert.NotEmpty(t, runs[0].Tags["error_class"])
	assert.Equal(t, ResultNoop, runs[1].Tags["result"])
	assert.Empty(t, rec.Find("batch.failed"))
}

func TestEmitJobRun(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitJobRun(rec, JobRunMetric{JobID: "1", Completed: false, Duration: time.Millisecond})

	runs := rec.Find("job.run")
	require.Len(t, runs, 1)
	assert.Equal(t, ResultError, runs[0].Tags["result"])
	assert.Equal(t, "1", runs[0].Tags["job_id"])
}

func TestEmitNilSink(t *testing.T) {
	EmitBatch(nil, BatchMetric{})
	EmitJobRun(nil, JobRunMetric{})
}
