// Package pagerduty pages on failed batch runs through the Events API v2 and
// resolves the incident when the same job later succeeds.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/opsdesk/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

const (
	actionTrigger = "trigger"
	actionResolve = "resolve"
)

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	// Endpoint overrides APIEndpoint.
	Endpoint   string
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes batch run events.
type Client struct {
	routingKey string
	source     string
	component  string
	poster     notify.Poster
}

type event struct {
	RoutingKey  string        `json:"routing_key"`
	EventAction string        `json:"event_action"`
	DedupKey    string        `json:"dedup_key"`
	Payload     *eventPayload `json:"payload,omitempty"`
}

type eventPayload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), "opsdesk"),
		component:  notify.Fallback(strings.TrimSpace(cfg.Component), "batch"),
		poster: notify.Poster{
			Service: "pagerduty",
			URL:     notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
			Client:  hc,
			Retries: max(cfg.RetryLimit, 0),
		},
	}, nil
}

// Send triggers an incident for a failed run. A successful run of a job resolves
// that job's incident; successful entity scans send nothing.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	ev, ok := c.buildEvent(msg)
	if !ok {
		return nil
	}
	return c.poster.PostJSON(ctx, ev)
}

func (c *Client) buildEvent(msg notify.Message) (event, bool) {
	ev := event{RoutingKey: c.routingKey, DedupKey: dedupKey(msg.JobID)}
	if !msg.Failed {
		if msg.JobID == "" {
			return event{}, false
		}
		ev.EventAction = actionResolve
		return ev, true
	}

	occurredAt := msg.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	details := make(map[string]string, len(msg.Metadata)+3)
	for k, v := range msg.Metadata {
		details[k] = v
	}
	details["job_id"] = msg.JobID
	details["body"] = msg.Body
	details["author"] = msg.Author

	ev.EventAction = actionTrigger
	ev.Payload = &eventPayload{
		Summary:       notify.Fallback(msg.Subject, fmt.Sprintf("Batch job %s failed", notify.Fallback(msg.JobID, "scan"))),
		Severity:      notify.Fallback(strings.ToLower(msg.Severity), notify.SeverityCritical),
		Source:        c.source,
		Component:     c.component,
		Timestamp:     occurredAt.Format(time.RFC3339),
		CustomDetails: details,
	}
	return ev, true
}

func dedupKey(jobID string) string {
	if jobID == "" {
		return "opsdesk:scan"
	}
	return "opsdesk:job:" + jobID
}
