// Package slack posts batch run summaries to an incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/opsdesk/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// RunURLPrefix turns job ids into links, e.g. https://opsdesk.example/jobs.
	RunURLPrefix string
}

// Client posts completion notifications to a Slack webhook.
type Client struct {
	channel   string
	username  string
	runPrefix *url.URL
	poster    notify.Poster
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
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
		channel:   strings.TrimSpace(cfg.Channel),
		username:  notify.Fallback(strings.TrimSpace(cfg.Username), "opsdesk"),
		runPrefix: parseRunPrefix(cfg.RunURLPrefix),
		poster: notify.Poster{
			Service: "slack",
			URL:     webhookURL,
			Client:  hc,
			Retries: max(cfg.RetryLimit, 0),
		},
	}, nil
}

// Send posts a formatted message to Slack.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	return c.poster.PostJSON(ctx, c.formatMessage(msg))
}

func (c *Client) formatMessage(msg notify.Message) webhookPayload {
	var b strings.Builder
	if msg.Failed {
		b.WriteString("*Batch run failed*")
	} else {
		b.WriteString("*Batch run finished*")
	}
	if msg.Subject != "" {
		b.WriteString(" " + escaper.Replace(msg.Subject))
	}
	b.WriteByte('\n')

	severity := msg.Severity
	if severity == "" {
		severity = notify.SeverityInfo
		if msg.Failed {
			severity = notify.SeverityCritical
		}
	}
	writeField(&b, "", "Severity", severity)
	writeField(&b, "", "Job", c.formatJobValue(msg.JobID))
	writeField(&b, "", "Author", escaper.Replace(msg.Author))
	writeField(&b, "", "Summary", escaper.Replace(msg.Body))

	if len(msg.Metadata) > 0 {
		b.WriteString("• Metadata:\n")
		keys := make([]string, 0, len(msg.Metadata))
		for k := range msg.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			writeField(&b, "    ", k, escaper.Replace(msg.Metadata[k]))
		}
	}

	ts := msg.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString("• Timestamp: " + ts.UTC().Format(time.RFC3339))

	return webhookPayload{Text: b.String(), Username: c.username, Channel: c.channel}
}

func writeField(b *strings.Builder, indent, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s• %s: %s\n", indent, label, value)
}

// formatJobValue renders the job id, linked to its run history when a prefix is configured.
func (c *Client) formatJobValue(jobID string) string {
	id := escaper.Replace(strings.TrimSpace(jobID))
	if id == "" || c.runPrefix == nil {
		return id
	}
	return fmt.Sprintf("<%s|%s>", c.runPrefix.JoinPath(id).String(), id)
}

func parseRunPrefix(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}
