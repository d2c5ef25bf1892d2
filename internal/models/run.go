package models

import "time"

// RunOutcome classifies how a transcription request ended.
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunDegraded  RunOutcome = "degraded"
	RunFailed    RunOutcome = "failed"
	RunRejected  RunOutcome = "rejected"
)

// RunRecord is the telemetry written once per request.
type RunRecord struct {
	RequestID     string     `json:"request_id" db:"request_id"`
	Outcome       RunOutcome `json:"outcome" db:"outcome"`
	ErrorCategory string     `json:"error_category,omitempty" db:"error_category"`
	Detail        string     `json:"detail,omitempty" db:"detail"`
	ModelSpec     string     `json:"model_spec,omitempty" db:"model_spec"`
	DurationSec   float64    `json:"duration_sec" db:"duration_sec"`
	Timings       TimingInfo `json:"timings_ms"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}
