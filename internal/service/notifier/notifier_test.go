package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/opsdesk/internal/observability/notify"
)

func TestServiceSendFansOut(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.Message
	)
	capture := notify.SinkFunc(func(_ context.Context, msg notify.Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	})

	svc := NewService(Options{
		DefaultAuthor:  "opsdesk@example.com",
		DefaultReplyTo: "noreply@example.com",
		Sinks: []SinkRegistration{
			{Name: "one", Sink: capture},
			{Name: "two", Sink: capture},
			{Name: "nil"},
		},
	})
	require.True(t, svc.Enabled())

	svc.Send(context.Background(), notify.Message{JobID: "1", Subject: "done", Failed: true})

	require.Len(t, received, 2)
	for _, msg := range received {
		assert.Equal(t, "opsdesk@example.com", msg.Author)
		assert.Equal(t, "noreply@example.com", msg.ReplyTo)
		assert.Equal(t, notify.SeverityCritical, msg.Severity)
	}
}

func TestServiceKeepsCallerAuthor(t *testing.T) {
	var got notify.Message
	svc := NewService(Options{
		DefaultAuthor: "default@example.com",
		Sinks: []SinkRegistration{{Sink: notify.SinkFunc(func(_ context.Context, msg notify.Message) error {
			got = msg
			return nil
		})}},
	})

	svc.Send(context.Background(), notify.Message{Author: "job@example.com"})
	assert.Equal(t, "job@example.com", got.Author)
	assert.Equal(t, notify.SeverityInfo, got.Severity)
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	assert.False(t, svc.Enabled())
	svc.Send(context.Background(), notify.Message{})
}

func TestServiceSwallowsSinkErrors(t *testing.T) {
	var delivered bool
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.Message) error {
				return errors.New("boom")
			})},
			{Name: "ok", Sink: notify.SinkFunc(func(context.Context, notify.Message) error {
				delivered = true
				return nil
			})},
		},
	})

	svc.Send(context.Background(), notify.Message{JobID: "1"})
	assert.True(t, delivered)
}
