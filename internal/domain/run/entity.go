package run

import (
	"encoding/json"
	"time"
)

// BatchMode selects which news a run pulls
type BatchMode string

const (
	ModeOnlyUnprocessed      BatchMode = "only_unprocessed"
	ModeRecheckAll           BatchMode = "recheck_all"
	ModeRecheckSelectedRange BatchMode = "recheck_selected_range"
)

// Valid checks if batch mode is valid
func (m BatchMode) Valid() bool {
	switch m {
	case ModeOnlyUnprocessed, ModeRecheckAll, ModeRecheckSelectedRange:
		return true
	}
	return false
}

// String returns string representation
func (m BatchMode) String() string {
	return string(m)
}

// Status defines processing run lifecycle status
type Status string

const (
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

// Terminal reports whether the status is an end state
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// ProcessingRun is the audit row for one batch invocation
type ProcessingRun struct {
	BatchID            string          `db:"batch_id"`
	Mode               BatchMode       `db:"mode"`
	BatchSizeRequested int             `db:"batch_size_requested"`
	BatchSizeActual    int             `db:"batch_size_actual"`
	StartedAt          time.Time       `db:"started_at"`
	FinishedAt         *time.Time      `db:"finished_at"`
	Status             Status          `db:"status"`
	Metrics            json.RawMessage `db:"metrics"` // serialized Metrics
	Operator           *string         `db:"operator"`
	ChunkCount         int             `db:"chunk_count"`
	Version            string          `db:"version"`

	// Reserved for crash-resume support; persisted but never populated.
	ResumeToken *string `db:"resume_token"`
}

// ParseMetrics decodes the serialized run metrics
func (r *ProcessingRun) ParseMetrics() (*Metrics, error) {
	var m Metrics
	if len(r.Metrics) == 0 {
		return &m, nil
	}
	if err := json.Unmarshal(r.Metrics, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
