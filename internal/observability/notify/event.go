// Package notify defines the message shape and sink contract for completion notifications.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityInfo     = "info"
	SeverityCritical = "critical"
)

// Message is one completion notification. Recipients and ReplyTo are email addresses;
// chat and paging sinks ignore them.
type Message struct {
	Author     string
	Recipients []string
	ReplyTo    string
	Subject    string
	Body       string
	// JobID is empty for entity scans.
	JobID      string
	Failed     bool
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of delivering completion messages.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, msg Message) error

// Send implements the Sink interface.
func (f SinkFunc) Send(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}
