package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// SubmitRequest is the body of POST /simulation.
type SubmitRequest struct {
	ModelReference string                 `json:"model_reference"`
	ModelData      string                 `json:"model_data,omitempty"` // base64, optional if already stored
	Parameters     map[string]interface{} `json:"parameters"`
	Criterion      *SubmitCriterion       `json:"criterion"`
	InputSeries    []SeriesRecord         `json:"input_series,omitempty"`
	Window         *Window                `json:"window,omitempty"`
}

// SubmitCriterion keeps target_value loose so a missing or non-numeric target
// can be reported instead of silently decoding to zero.
type SubmitCriterion struct {
	FieldName   string      `json:"field_name"`
	TargetValue interface{} `json:"target_value"`
}

// ValidationError reports malformed input at submission time.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the submission and returns the resolved criterion.
func (s SubmitRequest) Validate() (Criterion, error) {
	if strings.TrimSpace(s.ModelReference) == "" {
		return Criterion{}, invalid("model_reference", "is required")
	}
	if s.Criterion == nil {
		return Criterion{}, invalid("criterion", "is required")
	}
	if strings.TrimSpace(s.Criterion.FieldName) == "" {
		return Criterion{}, invalid("criterion.field_name", "is required")
	}
	target, ok := toFloat(s.Criterion.TargetValue)
	if !ok {
		return Criterion{}, invalid("criterion.target_value", "must be a number, got %T", s.Criterion.TargetValue)
	}
	for name, v := range s.Parameters {
		if strings.TrimSpace(name) == "" {
			return Criterion{}, invalid("parameters", "empty parameter name")
		}
		if _, isString := v.(string); isString {
			continue
		}
		if !IsNumericValue(v) {
			return Criterion{}, invalid("parameters."+name, "must be a number or a string, got %T", v)
		}
		if f, _ := toFloat(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return Criterion{}, invalid("parameters."+name, "must be finite")
		}
	}
	if s.Window != nil && s.Window.StopTime <= s.Window.StartTime {
		return Criterion{}, invalid("window", "stop_time must be greater than start_time")
	}
	return Criterion{FieldName: s.Criterion.FieldName, TargetValue: target}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
