package model

import "time"

// StageMetrics tracks one loop stage.
type StageMetrics struct {
	StageName        string        `json:"stage_name"`
	StartTime        time.Time     `json:"start_time"`
	Status           string        `json:"status"` // "idle", "running", "stopped"
	WorkerCount      int           `json:"worker_count"`
	MessagesHandled  int64         `json:"messages_handled"`
	ErrorCount       int64         `json:"error_count"`
	LastMessageAt    *time.Time    `json:"last_message_at,omitempty"`
	TotalProcessTime time.Duration `json:"total_process_time"`
	AverageLatency   time.Duration `json:"average_latency"`
}

// LoopMetrics is a snapshot of the feedback loop counters.
type LoopMetrics struct {
	StartTime         time.Time               `json:"start_time"`
	Uptime            time.Duration           `json:"uptime"`
	RequestsSubmitted int64                   `json:"requests_submitted"`
	RunsExecuted      int64                   `json:"runs_executed"`
	ExecutionErrors   int64                   `json:"execution_errors"`
	VerdictsPassed    int64                   `json:"verdicts_passed"`
	VerdictsFailed    int64                   `json:"verdicts_failed"`
	VariantsGenerated int64                   `json:"variants_generated"`
	TerminalLeaves    int64                   `json:"terminal_leaves"` // system failures not re-expanded
	DuplicateVerdicts int64                   `json:"duplicate_verdicts"`
	TransientRetries  int64                   `json:"transient_retries"`
	FamiliesTracked   int                     `json:"families_tracked"`
	FamiliesPassed    int                     `json:"families_passed"`
	StageMetrics      map[string]StageMetrics `json:"stage_metrics"`
	RecentErrors      []ErrorDetail           `json:"recent_errors"`
}

// ErrorDetail represents an error with context.
type ErrorDetail struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	RequestID string    `json:"request_id,omitempty"`
	ErrorType string    `json:"error_type"` // "transient", "execution", "decode", "dead_letter"
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}
