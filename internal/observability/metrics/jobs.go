// Package metrics translates batch and job lifecycle events into StatsD samples.
package metrics

import (
	"time"

	obserrors "github.com/target/opsdesk/internal/observability/errors"
	"github.com/target/opsdesk/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// BatchMetric summarises one pipeline invocation.
type BatchMetric struct {
	Selector string
	Items    int
	Failed   int
	Duration time.Duration
	Err      error
}

// EmitBatch emits batch.run, batch.items, batch.failed and batch.duration.
func EmitBatch(sink statsd.Sink, in BatchMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Items == 0:
		result = ResultNoop
	}

	tags := map[string]string{
		"selector": in.Selector,
		"result":   result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("batch.run", 1, tags)
	sink.Gauge("batch.items", float64(in.Items), CloneTags(tags))
	if in.Failed > 0 {
		sink.Count("batch.failed", int64(in.Failed), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("batch.duration", in.Duration, CloneTags(tags))
	}
}

// JobRunMetric captures the outcome of one job run.
type JobRunMetric struct {
	JobID     string
	Completed bool
	Duration  time.Duration
	Err       error
}

// EmitJobRun emits job.run and job.duration for a single job.
func EmitJobRun(sink statsd.Sink, in JobRunMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Err != nil || !in.Completed {
		result = ResultError
	}
	tags := map[string]string{
		"job_id": in.JobID,
		"result": result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.run", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
