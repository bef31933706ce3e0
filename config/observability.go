package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "opsdesk"

// ObservabilityConfig groups configuration that controls metrics and notification fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"opsdesk"`

	// Tags are attached to every metric, written as key:value pairs separated by commas.
	Tags map[string]string `env:"OBSERVABILITY_METRICS_TAGS"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	c.Prefix = strings.TrimSpace(c.Prefix)
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls completion notifications.
type ObservabilityNotificationsConfig struct {
	Enabled        bool                        `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"          envDefault:"false"`
	Timeout        time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"          envDefault:"5s"`
	RetryLimit     int                         `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT"      envDefault:"3"`
	DefaultAuthor  string                      `env:"OBSERVABILITY_NOTIFICATIONS_DEFAULT_AUTHOR"   envDefault:"opsdesk@localhost"`
	DefaultReplyTo string                      `env:"OBSERVABILITY_NOTIFICATIONS_DEFAULT_REPLY_TO"`
	Slack          SlackNotificationConfig     `                                                                           envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty      PagerDutyNotificationConfig `                                                                           envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
	SMTP           SMTPNotificationConfig      `                                                                           envPrefix:"OBSERVABILITY_NOTIFICATIONS_SMTP_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	c.DefaultAuthor = strings.TrimSpace(c.DefaultAuthor)
	c.DefaultReplyTo = strings.TrimSpace(c.DefaultReplyTo)

	c.Slack.sanitize()
	c.PagerDuty.sanitize()
	c.SMTP.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		c.SMTP.Enabled = false
		return
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}

	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}

	if c.SMTP.Enabled && c.SMTP.Host == "" {
		c.SMTP.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled      bool   `env:"ENABLED"        envDefault:"false"`
	WebhookURL   string `env:"WEBHOOK_URL"`
	Channel      string `env:"CHANNEL"`
	Username     string `env:"USERNAME"       envDefault:"opsdesk"`
	RunURLPrefix string `env:"RUN_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.RunURLPrefix = strings.TrimSpace(c.RunURLPrefix)
	if c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 fan-out.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"opsdesk"`
	Component  string `env:"COMPONENT"   envDefault:"opsdesk"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = defaultObservabilityName
	}
}

// SMTPNotificationConfig controls email delivery through a relay.
type SMTPNotificationConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"     envDefault:"25"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"     envDefault:"opsdesk@localhost"`
}

func (c *SMTPNotificationConfig) sanitize() {
	c.Host = strings.TrimSpace(c.Host)
	c.From = strings.TrimSpace(c.From)
	if c.Port <= 0 {
		c.Port = 25
	}
}
