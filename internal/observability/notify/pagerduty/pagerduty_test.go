package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/opsdesk/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{RoutingKey: "  "})
	require.Error(t, err)
}

func TestBuildEventTrigger(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	ev, ok := client.buildEvent(notify.Message{
		JobID:    "123",
		Subject:  "Job 123 failed",
		Body:     "boom",
		Failed:   true,
		Metadata: map[string]string{"run_id": "9", "job_id": "spoofed"},
	})
	require.True(t, ok)

	assert.Equal(t, actionTrigger, ev.EventAction)
	assert.Equal(t, "opsdesk:job:123", ev.DedupKey)
	require.NotNil(t, ev.Payload)
	assert.Equal(t, notify.SeverityCritical, ev.Payload.Severity)
	assert.Equal(t, "opsdesk", ev.Payload.Source)
	assert.Equal(t, "batch", ev.Payload.Component)
	assert.Equal(t, "Job 123 failed", ev.Payload.Summary)
	assert.Equal(t, "9", ev.Payload.CustomDetails["run_id"])
	assert.Equal(t, "123", ev.Payload.CustomDetails["job_id"], "message fields override metadata")
}

func TestBuildEventScanFailureSummary(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	ev, ok := client.buildEvent(notify.Message{Failed: true})
	require.True(t, ok)
	assert.Equal(t, "opsdesk:scan", ev.DedupKey)
	assert.Equal(t, "Batch job scan failed", ev.Payload.Summary)
}

func TestBuildEventSuccess(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	ev, ok := client.buildEvent(notify.Message{JobID: "5"})
	require.True(t, ok)
	assert.Equal(t, actionResolve, ev.EventAction)
	assert.Equal(t, "opsdesk:job:5", ev.DedupKey)
	assert.Nil(t, ev.Payload)

	_, ok = client.buildEvent(notify.Message{})
	assert.False(t, ok, "successful scans have no incident to resolve")
}

func TestSendPostsEvents(t *testing.T) {
	var (
		mu      sync.Mutex
		actions []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		actions = append(actions, body["event_action"].(string))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Send(ctx, notify.Message{}))
	require.NoError(t, client.Send(ctx, notify.Message{JobID: "1", Failed: true}))
	require.NoError(t, client.Send(ctx, notify.Message{JobID: "1"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{actionTrigger, actionResolve}, actions)
}
