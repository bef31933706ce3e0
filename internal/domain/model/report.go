package model

import (
	"encoding/json"
	"time"
)

// JobOutcome is the per-item summary of one maintenance job execution.
type JobOutcome struct {
	JobID     int64           `json:"job_id"`
	RunID     int64           `json:"run_id"`
	Completed bool            `json:"completed"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// BatchReport is what a trigger receives once a pipeline invocation finishes.
type BatchReport struct {
	BatchID    string            `json:"batch_id"`
	Selector   Selector          `json:"selector"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Items      int               `json:"items"`
	Failed     int               `json:"failed"`
	Jobs       []JobOutcome      `json:"jobs,omitempty"`
	Activity   *ActivitySnapshot `json:"activity,omitempty"`
}

// Severity is the log severity scale used by the error scan.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityAudit
	SeverityError
	SeverityEmergency
)

var severityNames = map[Severity]string{
	SeverityDebug:     "DEBUG",
	SeverityAudit:     "AUDIT",
	SeverityError:     "ERROR",
	SeverityEmergency: "EMERGENCY",
}

// String returns the canonical upper-case name.
func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseSeverity maps a name to a Severity; unknown names report false.
func ParseSeverity(name string) (Severity, bool) {
	for s, n := range severityNames {
		if n == name {
			return s, true
		}
	}
	return SeverityDebug, false
}

// AtOrAbove lists the names of every severity at or above s.
func (s Severity) AtOrAbove() []string {
	var out []string
	for lvl := s; lvl <= SeverityEmergency; lvl++ {
		out = append(out, lvl.String())
	}
	return out
}

// LogEntry is one execution log row returned by the error scan.
type LogEntry struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	Script    string    `json:"script"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorScanResult is the payload stored on an error-scan run.
type ErrorScanResult struct {
	Since   time.Time  `json:"since"`
	Until   time.Time  `json:"until"`
	Entries []LogEntry `json:"entries"`
}

// DormantReport is the payload stored on a dormant-entity report run.
type DormantReport struct {
	SnapshotAt time.Time       `json:"snapshot_at"`
	Cutoff     time.Time       `json:"cutoff"`
	Dormant    []ActivityEntry `json:"dormant"`
}
