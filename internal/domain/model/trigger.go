package model

import (
	"errors"
	"fmt"
	"strings"
)

// Selector chooses what a pipeline invocation works on.
type Selector string

const (
	// SelectorJob runs a single job definition.
	SelectorJob Selector = "job"
	// SelectorAllJobs runs every active, schedulable job definition.
	SelectorAllJobs Selector = "allJobs"
	// SelectorEntityScan resolves last activity for a list of entities.
	SelectorEntityScan Selector = "entityScan"
)

// Valid returns true if the selector is known.
func (s Selector) Valid() bool {
	return s == SelectorJob || s == SelectorAllJobs || s == SelectorEntityScan
}

// Trigger is the input supplied by the HTTP adapter, the admin CLI, or the timer.
type Trigger struct {
	Selector Selector    `json:"selector"`
	JobID    *int64      `json:"jobId,omitempty"`
	Entities []EntityKey `json:"entities,omitempty"`
}

// MaxTriggerEntities bounds the number of entities a single trigger may carry.
const MaxTriggerEntities = 5000

// Validate rejects malformed triggers before any pipeline work starts.
func (t *Trigger) Validate() error {
	if !t.Selector.Valid() {
		return fmt.Errorf("invalid selector %q", t.Selector)
	}
	switch t.Selector {
	case SelectorJob:
		if t.JobID == nil || *t.JobID <= 0 {
			return errors.New("jobId is required for selector job")
		}
	case SelectorAllJobs:
		if t.JobID != nil {
			return errors.New("jobId is not allowed for selector allJobs")
		}
	case SelectorEntityScan:
		if len(t.Entities) == 0 {
			return errors.New("entities is required for selector entityScan")
		}
		if len(t.Entities) > MaxTriggerEntities {
			return fmt.Errorf("entities exceeds maximum of %d", MaxTriggerEntities)
		}
		for i := range t.Entities {
			if strings.TrimSpace(t.Entities[i].Name) == "" {
				return fmt.Errorf("entities[%d].name is required", i)
			}
			if strings.TrimSpace(string(t.Entities[i].Type)) == "" {
				return fmt.Errorf("entities[%d].type is required", i)
			}
		}
	}
	return nil
}
