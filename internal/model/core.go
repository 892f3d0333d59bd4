package model

import "time"

// FamilyMember is the tracker's view of one request in a run family.
type FamilyMember struct {
	RequestID     string    `json:"request_id"`
	ParentID      string    `json:"parent_id,omitempty"`
	Origin        Origin    `json:"origin"`
	Reported      bool      `json:"reported"` // a verdict has been recorded
	Passed        bool      `json:"passed"`
	ObservedValue *float64  `json:"observed_value"`
	Reason        string    `json:"reason,omitempty"`
	ValidatedAt   time.Time `json:"validated_at,omitempty"`
}

// BestMember identifies the passing member with the highest observed value.
type BestMember struct {
	RequestID     string    `json:"request_id"`
	ObservedValue float64   `json:"observed_value"`
	ValidatedAt   time.Time `json:"validated_at"`
}

// FamilySnapshot is a point-in-time copy of a run family aggregate.
type FamilySnapshot struct {
	RootID          string         `json:"root_id"`
	Members         []FamilyMember `json:"members"` // sorted by request id
	FamilyPassed    bool           `json:"family_passed"`
	BestMember      *BestMember    `json:"best_member"`
	ReportedCount   int            `json:"reported_count"`
	PassedCount     int            `json:"passed_count"`
	ExpectedMembers int            `json:"expected_members"`
	PendingMembers  int            `json:"pending_members"`
	Settled         bool           `json:"settled"` // no further verdict can change family_passed
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Member returns the member with the given id.
func (s FamilySnapshot) Member(id string) (FamilyMember, bool) {
	for _, m := range s.Members {
		if m.RequestID == id {
			return m, true
		}
	}
	return FamilyMember{}, false
}

// Poll states returned to callers.
const (
	StatePending  = "pending"
	StateComplete = "complete"
	StateTimeout  = "timeout"
)

// FamilyResult is the projection served by the poll endpoint.
type FamilyResult struct {
	RootID        string   `json:"root_id"`
	RequestID     string   `json:"request_id"` // id the caller asked about
	State         string   `json:"state"`
	FamilyPassed  bool     `json:"family_passed"`
	BestRequestID string   `json:"best_request_id,omitempty"`
	BestValue     *float64 `json:"best_observed_value"`
	TotalRuns     int      `json:"total_runs"`
	PassedCount   int      `json:"passed_count"`
	IsVariant     bool     `json:"is_variant"` // best member is a generated variant
	Settled       bool     `json:"settled"`
}

// NewFamilyResult projects a snapshot into a complete FamilyResult.
func NewFamilyResult(requestID string, s FamilySnapshot) FamilyResult {
	res := FamilyResult{
		RootID:       s.RootID,
		RequestID:    requestID,
		State:        StateComplete,
		FamilyPassed: s.FamilyPassed,
		TotalRuns:    s.ReportedCount,
		PassedCount:  s.PassedCount,
		Settled:      s.Settled,
	}
	if s.BestMember != nil {
		v := s.BestMember.ObservedValue
		res.BestRequestID = s.BestMember.RequestID
		res.BestValue = &v
		res.IsVariant = s.BestMember.RequestID != s.RootID
	}
	return res
}

// RunRecord is a stored run: the request plus whatever outcome is known so far.
type RunRecord struct {
	RequestID       string     `json:"request_id"`
	RootID          string     `json:"root_id"`
	ParentID        string     `json:"parent_id,omitempty"`
	Origin          Origin     `json:"origin"`
	ModelReference  string     `json:"model_reference"`
	Parameters      Parameters `json:"parameters"`
	Criterion       Criterion  `json:"criterion"`
	Status          string     `json:"status"` // submitted, completed, failed
	ErrorMessage    string     `json:"error_message,omitempty"`
	Passed          *bool      `json:"passed"`
	CalculatedValue *float64   `json:"calculated_value"`
	Reason          string     `json:"reason,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`
}

// RelatedRuns is the read-only family projection served for inspection.
type RelatedRuns struct {
	ParentKey string         `json:"parent_key"`
	ParentRun *RunRecord     `json:"parent_run"`
	Runs      []RunRecord    `json:"runs"`
	Family    FamilySnapshot `json:"family"`
}

// RunStatistics summarises a stored time series.
type RunStatistics struct {
	DataPoints int      `json:"data_points"`
	Field      string   `json:"field,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	Min        *float64 `json:"min,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
}
