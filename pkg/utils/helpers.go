package utils

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ParseDuration safely parses a duration string like "5m", returning fallback
// when d is empty or malformed.
func ParseDuration(d string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(d) == "" {
		return fallback
	}
	duration, err := time.ParseDuration(d)
	if err != nil || duration < 0 {
		return fallback
	}
	return duration
}

// Numeric converts supported values to float64. Numeric strings are accepted
// since series samples often arrive from CSV uploads as text.
// The second return value is false for anything that is not a finite-or-infinite
// number (NaN is rejected).
func Numeric(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		return 0, false
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() < reflect.Int || rv.Kind() > reflect.Float64 || rv.Kind() == reflect.Uintptr {
			return 0, false
		}
		f = rv.Convert(reflect.TypeOf(float64(0))).Float()
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
