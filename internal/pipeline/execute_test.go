package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/logging"
	"go-sim-loop/internal/model"
	"go-sim-loop/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticModels serves every reference except those listed as missing.
type staticModels struct {
	missing map[string]bool
}

func (m staticModels) Fetch(_ context.Context, ref string) ([]byte, error) {
	if m.missing[ref] {
		return nil, fmt.Errorf("%w: %s", store.ErrModelNotFound, ref)
	}
	return []byte("{}"), nil
}

// flakyModels fails the first fails fetches with an unknown error.
type flakyModels struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (m *flakyModels) Fetch(context.Context, string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.fails {
		return nil, errors.New("connection reset")
	}
	return []byte("{}"), nil
}

// flatSimulator outputs two samples whose "h" equals the h0 parameter.
type flatSimulator struct {
	err error
}

func (s flatSimulator) Simulate(_ context.Context, _ []byte, req model.Request) ([]model.SeriesRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	h, _ := toF(req.Parameters["h0"])
	return []model.SeriesRecord{{"time": 0.0, "h": h}, {"time": 1.0, "h": h}}, nil
}

func newTestExecutor(models ModelFetcher, sim Simulator, p bus.Publisher) *Executor {
	return &Executor{
		Models:       models,
		Simulator:    sim,
		Publisher:    p,
		ResultsTopic: "simulation-results",
		FetchRetry:   fastRetry,
		PublishRetry: fastRetry,
		Metrics:      NewLoopTracker(nil, logging.Discard()),
		Logger:       logging.Discard(),
	}
}

func TestExecutor_Execute(t *testing.T) {
	ctx := context.Background()
	req := userRequest("root")

	t.Run("completed", func(t *testing.T) {
		e := newTestExecutor(staticModels{}, flatSimulator{}, nil)
		res, err := e.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, res.Status)
		assert.Len(t, res.OutputSeries, 2)
		assert.Equal(t, req.RequestID, res.RequestID)
		assert.False(t, res.CompletedAt.Before(res.StartedAt))
		assert.GreaterOrEqual(t, res.ProcessingTimeMS, 0.0)
	})

	t.Run("missing model is an execution error", func(t *testing.T) {
		e := newTestExecutor(staticModels{missing: map[string]bool{"ball.json": true}}, flatSimulator{}, nil)
		res, err := e.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, res.Status)
		assert.Contains(t, res.ErrorMessage, "not found")
		assert.Empty(t, res.OutputSeries)
	})

	t.Run("simulator error is an execution error", func(t *testing.T) {
		e := newTestExecutor(staticModels{}, flatSimulator{err: errors.New("solver diverged")}, nil)
		res, err := e.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, res.Status)
		assert.Equal(t, "solver diverged", res.ErrorMessage)
	})

	t.Run("transient simulator error is returned", func(t *testing.T) {
		e := newTestExecutor(staticModels{}, flatSimulator{err: fmt.Errorf("license server: %w", ErrTransient)}, nil)
		_, err := e.Execute(ctx, req)
		assert.ErrorIs(t, err, ErrTransient)
	})

	t.Run("fetch is retried", func(t *testing.T) {
		models := &flakyModels{fails: 2}
		e := newTestExecutor(models, flatSimulator{}, nil)
		res, err := e.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, res.Status)
		assert.Equal(t, 3, models.calls)
		assert.EqualValues(t, 2, e.Metrics.Metrics().TransientRetries)
	})
}

func TestExecutor_HandlePublishesResult(t *testing.T) {
	ctx := context.Background()
	broker := bus.NewMemoryBroker(bus.DefaultOptions())
	defer broker.Close()
	e := newTestExecutor(staticModels{}, flatSimulator{}, broker)
	e.Now = func() time.Time { return validatedAt }

	payload, err := json.Marshal(userRequest("root"))
	require.NoError(t, err)
	require.NoError(t, e.Handle(ctx, bus.Message{Topic: "simulation", Key: "root", Value: payload}))

	msgs := broker.Messages("simulation-results")
	require.Len(t, msgs, 1)
	var res model.ExecutionResult
	require.NoError(t, bus.Decode(msgs[0], &res))
	assert.Equal(t, "root", res.RequestID)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, model.OriginUser, res.Origin)
	assert.Equal(t, json.Number("1"), res.OutputSeries[0]["h"])
	assert.EqualValues(t, 1, e.Metrics.Metrics().RunsExecuted)
}
