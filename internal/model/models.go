package model

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Origin tells who created a request. It never changes once set.
type Origin string

const (
	OriginUser   Origin = "user"   // submitted through the API
	OriginSystem Origin = "system" // generated variant
)

// GenerationSuffix separates a parent id from a variant index.
const GenerationSuffix = "_gen_"

var generationPattern = regexp.MustCompile(`^(.+)` + GenerationSuffix + `(\d+)$`)

// Parameters maps a parameter name to a number or a string. Numbers decoded from
// the bus arrive as json.Number.
type Parameters map[string]interface{}

// Clone returns a shallow copy of the parameter set.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// MarshalJSON writes integral float values with a fractional part ("1.0"), so
// they are not taken for integer parameters once decoded again.
func (p Parameters) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1e15 {
			v = json.Number(strconv.FormatFloat(f, 'f', 1, 64))
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// Criterion is "max(FieldName) over the output series must be >= TargetValue".
type Criterion struct {
	FieldName   string  `json:"field_name"`
	TargetValue float64 `json:"target_value"`
}

// Metric returns the name of the observed metric, e.g. "max_h".
func (c Criterion) Metric() string {
	return "max_" + c.FieldName
}

// Window is the simulated time span handed to the executor.
type Window struct {
	StartTime float64 `json:"start_time"`
	StopTime  float64 `json:"stop_time"`
}

// DefaultWindow matches what the runner assumes when a request has none.
var DefaultWindow = Window{StartTime: 0, StopTime: 10}

// SeriesRecord is a single sample of a time series, e.g. {"time": 0.1, "h": 0.95}.
type SeriesRecord map[string]interface{}

// Request is the unit of work published on the requests topic.
type Request struct {
	RequestID      string         `json:"request_id"`
	ParentID       string         `json:"parent_id,omitempty"`
	RootID         string         `json:"root_id,omitempty"`
	Origin         Origin         `json:"origin"`
	Parameters     Parameters     `json:"parameters"`
	Criterion      Criterion      `json:"criterion"`
	ModelReference string         `json:"model_reference"`
	InputSeries    []SeriesRecord `json:"input_series,omitempty"`
	Window         *Window        `json:"window,omitempty"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}

// FamilyRoot resolves the id of the USER request this request descends from.
// Generation depth is capped at one, so the parent of a variant is the root.
func (r Request) FamilyRoot() string {
	switch {
	case r.RootID != "":
		return r.RootID
	case r.Origin == OriginUser:
		return r.RequestID
	case r.ParentID != "":
		return r.ParentID
	default:
		return RootFromID(r.RequestID)
	}
}

// SimulationWindow returns the request window or DefaultWindow.
func (r Request) SimulationWindow() Window {
	if r.Window == nil {
		return DefaultWindow
	}
	return *r.Window
}

// VariantID builds the id of the index-th (1-based) variant of parentID.
func VariantID(parentID string, index int) string {
	return fmt.Sprintf("%s%s%d", parentID, GenerationSuffix, index)
}

// RootFromID strips a trailing "_gen_<n>" suffix. Ids without one are returned as is.
func RootFromID(id string) string {
	if m := generationPattern.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return id
}

// IsVariantID reports whether id carries a generation suffix.
func IsVariantID(id string) bool {
	return generationPattern.MatchString(id)
}

// IsNumericValue reports whether v is a JSON or Go number. Numeric-looking
// strings are not numbers here; they are copied through untouched.
func IsNumericValue(v interface{}) bool {
	switch n := v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	default:
		return false
	}
}

// IsIntegerValue reports whether v is a number without a fractional notation.
func IsIntegerValue(v interface{}) bool {
	switch n := v.(type) {
	case int, int32, int64, uint, uint32, uint64:
		return true
	case json.Number:
		s := n.String()
		if strings.ContainsAny(s, ".eE") {
			return false
		}
		_, err := strconv.ParseInt(s, 10, 64)
		return err == nil
	default:
		return false
	}
}
