package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeScheduler runs the cron trigger.
	ServiceModeScheduler ServiceMode = "scheduler"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeScheduler}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeScheduler:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, scheduler)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SchedulerConfig contains cron trigger configuration. An empty spec disables that trigger.
type SchedulerConfig struct {
	// RunAllCron fires a run of every active schedulable job.
	RunAllCron string `env:"SCHEDULER_RUN_ALL_CRON" envDefault:"0 * * * *"`

	// EntityScanCron fires a catalog-wide entity activity scan.
	EntityScanCron string `env:"SCHEDULER_ENTITY_SCAN_CRON" envDefault:"30 2 * * *"`

	// Timezone is an IANA location name for interpreting cron specs.
	Timezone string `env:"SCHEDULER_TIMEZONE" envDefault:"UTC"`

	// Timeout bounds one scheduled invocation.
	Timeout time.Duration `env:"SCHEDULER_TIMEOUT" envDefault:"1h"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	s.RunAllCron = strings.TrimSpace(s.RunAllCron)
	s.EntityScanCron = strings.TrimSpace(s.EntityScanCron)
	if s.Timezone = strings.TrimSpace(s.Timezone); s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if s.Timeout < 0 {
		s.Timeout = 0
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (s *SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
