package config

import (
	"strings"
	"time"
)

const maxBatchConcurrency = 64

// BatchConfig tunes the pipeline and the built-in jobs.
type BatchConfig struct {
	// Concurrency is the worker pool size for the process stage.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`

	// ItemTimeout bounds one work item.
	ItemTimeout time.Duration `env:"ITEM_TIMEOUT" envDefault:"30s"`

	// AggregateTimeout bounds recording run results after every item finished.
	AggregateTimeout time.Duration `env:"AGGREGATE_TIMEOUT" envDefault:"1m"`

	// ErrorScanLookback is the window used when the error scan has never completed.
	ErrorScanLookback time.Duration `env:"ERROR_SCAN_LOOKBACK" envDefault:"24h"`

	// ErrorScanThreshold is the lowest severity the error scan reports.
	ErrorScanThreshold string `env:"ERROR_SCAN_THRESHOLD" envDefault:"ERROR"`

	// ErrorScanLimit caps the entries stored on one error-scan run.
	ErrorScanLimit int `env:"ERROR_SCAN_LIMIT" envDefault:"500"`

	// DormantAfter is the idle period after which an entity is reported as dormant.
	DormantAfter time.Duration `env:"DORMANT_AFTER" envDefault:"2160h"`

	// ScanRecipients receive a summary after each entity scan.
	ScanRecipients []string `env:"SCAN_RECIPIENTS" envSeparator:","`
}

// Sanitize clamps pipeline settings to safe ranges.
func (c *BatchConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Concurrency > maxBatchConcurrency {
		c.Concurrency = maxBatchConcurrency
	}
	if c.ItemTimeout < 0 {
		c.ItemTimeout = 0
	}
	if c.AggregateTimeout <= 0 {
		c.AggregateTimeout = time.Minute
	}
	if c.ErrorScanLookback <= 0 {
		c.ErrorScanLookback = 24 * time.Hour
	}
	c.ErrorScanThreshold = strings.ToUpper(strings.TrimSpace(c.ErrorScanThreshold))
	if c.ErrorScanLimit <= 0 {
		c.ErrorScanLimit = 500
	}
	if c.DormantAfter <= 0 {
		c.DormantAfter = 90 * 24 * time.Hour
	}

	recipients := c.ScanRecipients[:0]
	for _, r := range c.ScanRecipients {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	c.ScanRecipients = recipients
}
