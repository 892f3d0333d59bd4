package simulate

import (
	"context"
	"encoding/json"
	"testing"

	"go-sim-loop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxField(series []model.SeriesRecord, field string) float64 {
	best := series[0][field].(float64)
	for _, rec := range series {
		if v := rec[field].(float64); v > best {
			best = v
		}
	}
	return best
}

func TestBouncingBall_DefaultRun(t *testing.T) {
	sim := NewBouncingBall()
	series, err := sim.Simulate(context.Background(), nil, model.Request{})
	require.NoError(t, err)

	// default window [0, 10] with a 10ms step
	require.Len(t, series, 1001)
	assert.Equal(t, 0.0, series[0]["time"])
	assert.Equal(t, 10.0, series[len(series)-1]["time"])
	assert.Equal(t, 1.0, maxField(series, "h"))
	for _, rec := range series {
		assert.GreaterOrEqual(t, rec["h"].(float64), 0.0)
	}
}

func TestBouncingBall_HigherDropReachesHigher(t *testing.T) {
	sim := NewBouncingBall()
	req := model.Request{
		Parameters: model.Parameters{"h0": json.Number("2"), "e": 0.8, "g": -9.81},
		Window:     &model.Window{StartTime: 0, StopTime: 3},
	}
	series, err := sim.Simulate(context.Background(), []byte(`{"step": 0.001}`), req)
	require.NoError(t, err)
	assert.Len(t, series, 3001)
	assert.Equal(t, 2.0, maxField(series, "h"))
}

func TestBouncingBall_Rejects(t *testing.T) {
	sim := NewBouncingBall()
	tests := []struct {
		name  string
		model []byte
		req   model.Request
		want  error
	}{
		{"restitution above one", nil, model.Request{Parameters: model.Parameters{"e": 1.5}}, ErrInvalidParameter},
		{"non numeric gravity", nil, model.Request{Parameters: model.Parameters{"g": "heavy"}}, ErrInvalidParameter},
		{"negative height", nil, model.Request{Parameters: model.Parameters{"h0": -1}}, ErrInvalidParameter},
		{"zero step", []byte(`{"step": 0}`), model.Request{}, ErrInvalidParameter},
		{"empty window", nil, model.Request{Window: &model.Window{StartTime: 5, StopTime: 5}}, ErrInvalidWindow},
		{"huge window", nil, model.Request{Window: &model.Window{StartTime: 0, StopTime: 1e6}}, ErrInvalidWindow},
		{"window beyond int range", nil, model.Request{Window: &model.Window{StartTime: 0, StopTime: 1e300}}, ErrInvalidWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Simulate(context.Background(), tt.model, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBouncingBall_IgnoresBinaryModels(t *testing.T) {
	sim := NewBouncingBall()
	_, err := sim.Simulate(context.Background(), []byte{0x50, 0x4b, 0x03, 0x04}, model.Request{})
	assert.NoError(t, err)

	_, err = sim.Simulate(context.Background(), []byte(`{"step": "fast"}`), model.Request{})
	assert.Error(t, err)
}
