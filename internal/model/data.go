package model

import "time"

// Execution statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ExecutionResult is what the executor publishes for a Request. The request
// fields travel with it so downstream stages never need a lookup.
type ExecutionResult struct {
	Request
	Status           string         `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	OutputSeries     []SeriesRecord `json:"output_series"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      time.Time      `json:"completed_at"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
}

// Validation is the verdict block attached by the validator.
type Validation struct {
	Metric          string    `json:"metric"`
	CalculatedValue *float64  `json:"calculated_value"` // nil when no data
	Threshold       float64   `json:"threshold"`
	Passed          bool      `json:"passed"`
	Reason          string    `json:"reason"`
	ValidatedAt     time.Time `json:"validated_at"`
}

// Verdict is an ExecutionResult annotated with its Validation. It is the
// payload of both validation topics.
type Verdict struct {
	ExecutionResult
	Validation Validation `json:"validation"`
}

// ObservedValue returns the calculated value and whether it is defined.
func (v Verdict) ObservedValue() (float64, bool) {
	if v.Validation.CalculatedValue == nil {
		return 0, false
	}
	return *v.Validation.CalculatedValue, true
}
