// Package notifier fans completion messages out to every configured sink.
package notifier

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// DefaultAuthor fills Message.Author when the caller leaves it empty.
	DefaultAuthor string
	// DefaultReplyTo fills Message.ReplyTo when the caller leaves it empty.
	DefaultReplyTo string
}

// Service dispatches messages to all registered sinks.
type Service struct {
	logger         *slog.Logger
	sinks          []SinkRegistration
	defaultAuthor  string
	defaultReplyTo string
}

var _ core.Notifier = (*Service)(nil)

// NewService constructs a notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	return &Service{
		logger:         logger,
		sinks:          sinks,
		defaultAuthor:  strings.TrimSpace(opts.DefaultAuthor),
		defaultReplyTo: strings.TrimSpace(opts.DefaultReplyTo),
	}
}

// Send delivers msg to every sink concurrently and waits for them to finish.
// Sink errors are logged and never returned.
func (s *Service) Send(ctx context.Context, msg notify.Message) {
	if len(s.sinks) == 0 {
		return
	}

	if msg.Author == "" {
		msg.Author = s.defaultAuthor
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = s.defaultReplyTo
	}
	if msg.Severity == "" {
		msg.Severity = notify.SeverityInfo
		if msg.Failed {
			msg.Severity = notify.SeverityCritical
		}
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.Send(ctx, msg); err != nil {
				s.logger.ErrorContext(ctx, "notification delivery error",
					"sink", entry.Name,
					"job_id", msg.JobID,
					"subject", msg.Subject,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
