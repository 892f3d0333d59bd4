// Package simulate holds the reference simulator the executor runs when no
// external model runtime is configured.
package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go-sim-loop/internal/model"
	"go-sim-loop/pkg/utils"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidWindow    = errors.New("invalid simulation window")
)

// maxSteps bounds the size of one output series.
const maxSteps = 1_000_000

// Settings are read from the model file when it holds a JSON object.
type Settings struct {
	Step float64 `json:"step"`
}

// BouncingBall integrates a ball dropped under gravity that loses energy on
// every bounce. Parameters: g (gravity, m/s^2, sign ignored), e (restitution
// in [0,1]), h0 (initial height), v0 (initial velocity). The output has the
// fields time, h and v.
type BouncingBall struct {
	Step float64 // integration step when the model does not set one
}

// NewBouncingBall returns a simulator with a 10ms step.
func NewBouncingBall() *BouncingBall {
	return &BouncingBall{Step: 0.01}
}

// Simulate runs the model over the request window.
func (b *BouncingBall) Simulate(ctx context.Context, modelData []byte, req model.Request) ([]model.SeriesRecord, error) {
	settings := Settings{Step: b.Step}
	if trimmed := bytes.TrimSpace(modelData); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &settings); err != nil {
			return nil, fmt.Errorf("read model settings: %w", err)
		}
	}
	if settings.Step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %v", ErrInvalidParameter, settings.Step)
	}

	g, err := param(req.Parameters, "g", 9.81)
	if err != nil {
		return nil, err
	}
	e, err := param(req.Parameters, "e", 0.7)
	if err != nil {
		return nil, err
	}
	h, err := param(req.Parameters, "h0", 1.0)
	if err != nil {
		return nil, err
	}
	v, err := param(req.Parameters, "v0", 0)
	if err != nil {
		return nil, err
	}
	g = math.Abs(g)
	if e < 0 || e > 1 {
		return nil, fmt.Errorf("%w: e must be within [0, 1], got %v", ErrInvalidParameter, e)
	}
	if h < 0 {
		return nil, fmt.Errorf("%w: h0 must not be negative, got %v", ErrInvalidParameter, h)
	}

	w := req.SimulationWindow()
	if w.StopTime <= w.StartTime {
		return nil, fmt.Errorf("%w: stop %v <= start %v", ErrInvalidWindow, w.StopTime, w.StartTime)
	}
	n := math.Ceil((w.StopTime-w.StartTime)/settings.Step - 1e-9)
	if !(n <= maxSteps) {
		return nil, fmt.Errorf("%w: %g steps exceed the limit of %d", ErrInvalidWindow, n, maxSteps)
	}
	steps := int(n)

	out := make([]model.SeriesRecord, 0, steps+1)
	out = append(out, sample(w.StartTime, h, v))
	for i := 1; i <= steps; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		dt := settings.Step
		t := w.StartTime + float64(i)*settings.Step
		if t > w.StopTime {
			dt -= t - w.StopTime
			t = w.StopTime
		}

		v -= g * dt
		h += v * dt
		if h <= 0 && v < 0 {
			h = -h * e
			v = -v * e
		}
		out = append(out, sample(t, h, v))
	}
	return out, nil
}

func sample(t, h, v float64) model.SeriesRecord {
	return model.SeriesRecord{"time": round(t), "h": round(h), "v": round(v)}
}

func round(x float64) float64 {
	return math.Round(x*1e9) / 1e9
}

func param(p model.Parameters, name string, fallback float64) (float64, error) {
	raw, ok := p[name]
	if !ok {
		return fallback, nil
	}
	f, ok := utils.Numeric(raw)
	if !ok || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s=%v", ErrInvalidParameter, name, raw)
	}
	return f, nil
}
