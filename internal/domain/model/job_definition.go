// Package model defines the core data types shared by the opsdesk batch engine.
package model

import (
	"errors"
	"strings"
	"time"
)

// JobDefinition describes a maintenance job known to the registry.
// Definitions are never deleted; they are deactivated instead.
type JobDefinition struct {
	ID                 int64     `json:"id"                   db:"id"                   yaml:"id"`
	Name               string    `json:"name"                 db:"name"                 yaml:"name"`
	Description        string    `json:"description"          db:"description"          yaml:"description"`
	Schedulable        bool      `json:"schedulable"          db:"schedulable"          yaml:"schedulable"`
	NotifyOnCompletion bool      `json:"notify_on_completion" db:"notify_on_completion" yaml:"notify_on_completion"`
	NotifyRecipients   []string  `json:"notify_recipients"    db:"notify_recipients"    yaml:"notify_recipients"`
	Active             bool      `json:"active"               db:"active"               yaml:"active"`
	CreatedAt          time.Time `json:"created_at"           db:"created_at"           yaml:"-"`
	UpdatedAt          time.Time `json:"updated_at"           db:"updated_at"           yaml:"-"`
}

// Runnable reports whether a "run all" sweep should pick this definition up.
func (d *JobDefinition) Runnable() bool {
	return d != nil && d.Active && d.Schedulable
}

// InstallJobRequest is the installer payload used to create or refresh a job definition.
type InstallJobRequest struct {
	ID                 int64    `json:"id"                   yaml:"id"`
	Name               string   `json:"name"                 yaml:"name"`
	Description        string   `json:"description"          yaml:"description"`
	Schedulable        bool     `json:"schedulable"          yaml:"schedulable"`
	NotifyOnCompletion bool     `json:"notify_on_completion" yaml:"notify_on_completion"`
	NotifyRecipients   []string `json:"notify_recipients"    yaml:"notify_recipients"`
	Active             bool     `json:"active"               yaml:"active"`
}

// Validate validates the InstallJobRequest fields.
func (r *InstallJobRequest) Validate() error {
	if r.ID <= 0 {
		return errors.New("job id must be positive")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("job name is required")
	}
	if r.NotifyOnCompletion && len(r.NotifyRecipients) == 0 {
		return errors.New("notify_recipients is required when notify_on_completion is set")
	}
	return nil
}
