package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/model"
	"go-sim-loop/internal/store"
)

// Simulator runs a model for a request and returns its output series.
// Returning an error wrapping ErrTransient asks for the run to be retried;
// any other error is reported as an execution error.
type Simulator interface {
	Simulate(ctx context.Context, modelData []byte, req model.Request) ([]model.SeriesRecord, error)
}

// ModelFetcher resolves a model reference to its content.
type ModelFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Executor consumes requests, runs them and publishes one execution result per
// request. Runs are never cancelled mid-flight by the loop itself.
type Executor struct {
	Models       ModelFetcher
	Simulator    Simulator
	Publisher    bus.Publisher
	ResultsTopic string
	FetchRetry   model.RetryConfig
	PublishRetry model.RetryConfig
	Metrics      *LoopTracker
	Logger       *slog.Logger
	Now          func() time.Time
}

// Execute fetches the model and runs the simulator. Permanent failures come
// back as a failed result; the error return is reserved for transient
// failures that should be retried by redelivery.
func (e *Executor) Execute(ctx context.Context, req model.Request) (model.ExecutionResult, error) {
	res := model.ExecutionResult{Request: req, StartedAt: e.now().UTC()}

	var data []byte
	err := Retry(ctx, e.FetchRetry, func(ctx context.Context) error {
		var ferr error
		data, ferr = e.Models.Fetch(ctx, req.ModelReference)
		return ferr
	}, e.Metrics.RetryNotifier("executor", req.RequestID))
	switch {
	case errors.Is(err, store.ErrModelNotFound):
		return e.finish(res, nil, fmt.Errorf("model %q not found", req.ModelReference)), nil
	case err != nil:
		return res, fmt.Errorf("fetch model %q: %w", req.ModelReference, err)
	}

	series, err := e.Simulator.Simulate(ctx, data, req)
	if errors.Is(err, ErrTransient) {
		return res, fmt.Errorf("simulate %s: %w", req.RequestID, err)
	}
	return e.finish(res, series, err), nil
}

func (e *Executor) finish(res model.ExecutionResult, series []model.SeriesRecord, err error) model.ExecutionResult {
	res.CompletedAt = e.now().UTC()
	res.ProcessingTimeMS = float64(res.CompletedAt.Sub(res.StartedAt).Microseconds()) / 1000
	if err != nil {
		res.Status = model.StatusFailed
		res.ErrorMessage = err.Error()
		res.OutputSeries = []model.SeriesRecord{}
		return res
	}
	res.Status = model.StatusCompleted
	if series == nil {
		series = []model.SeriesRecord{}
	}
	res.OutputSeries = series
	return res
}

// Handle is the bus handler of the executor stage.
func (e *Executor) Handle(ctx context.Context, msg bus.Message) error {
	var req model.Request
	if err := bus.Decode(msg, &req); err != nil {
		e.Metrics.RecordError("executor", msg.Key, "decode", err, false)
		e.Logger.Error("dropping undecodable request", "key", msg.Key, "error", err)
		return nil
	}

	res, err := e.Execute(ctx, req)
	if err != nil {
		e.Metrics.RecordError("executor", req.RequestID, "transient", err, true)
		return err
	}
	if res.Status == model.StatusFailed {
		e.Metrics.RecordError("executor", req.RequestID, "execution", errors.New(res.ErrorMessage), false)
	}

	err = Retry(ctx, e.PublishRetry, func(ctx context.Context) error {
		return bus.PublishJSON(ctx, e.Publisher, e.ResultsTopic, req.RequestID, res)
	}, e.Metrics.RetryNotifier("executor", req.RequestID))
	if err != nil {
		e.Metrics.RecordError("executor", req.RequestID, "transient", err, true)
		return fmt.Errorf("publish result %s: %w", req.RequestID, err)
	}

	e.Metrics.RunExecuted(res.Status == model.StatusFailed)
	e.Logger.Info("run executed",
		"request_id", req.RequestID,
		"origin", req.Origin,
		"status", res.Status,
		"points", len(res.OutputSeries),
		"processing_ms", res.ProcessingTimeMS)
	return nil
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
