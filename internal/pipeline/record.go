package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/model"
)

// RunStore is the persistence the recorder writes to.
type RunStore interface {
	SaveRequest(ctx context.Context, req model.Request) error
	SaveVerdict(ctx context.Context, v model.Verdict) error
}

// Recorder persists every request and verdict crossing the loop. Writes are
// upserts, so redelivered messages are harmless.
type Recorder struct {
	Store   RunStore
	Retry   model.RetryConfig
	Metrics *LoopTracker
	Logger  *slog.Logger
}

// HandleRequest stores a request published on the requests topic.
func (r *Recorder) HandleRequest(ctx context.Context, msg bus.Message) error {
	var req model.Request
	if err := bus.Decode(msg, &req); err != nil {
		r.Metrics.RecordError("recorder", msg.Key, "decode", err, false)
		return nil
	}
	err := Retry(ctx, r.Retry, func(ctx context.Context) error {
		return r.Store.SaveRequest(ctx, req)
	}, r.Metrics.RetryNotifier("recorder", req.RequestID))
	if err != nil {
		r.Metrics.RecordError("recorder", req.RequestID, "transient", err, true)
		return fmt.Errorf("save request %s: %w", req.RequestID, err)
	}
	return nil
}

// HandleVerdict stores a verdict and its output series.
func (r *Recorder) HandleVerdict(ctx context.Context, msg bus.Message) error {
	var v model.Verdict
	if err := bus.Decode(msg, &v); err != nil {
		r.Metrics.RecordError("recorder", msg.Key, "decode", err, false)
		return nil
	}
	err := Retry(ctx, r.Retry, func(ctx context.Context) error {
		return r.Store.SaveVerdict(ctx, v)
	}, r.Metrics.RetryNotifier("recorder", v.RequestID))
	if err != nil {
		r.Metrics.RecordError("recorder", v.RequestID, "transient", err, true)
		return fmt.Errorf("save verdict %s: %w", v.RequestID, err)
	}
	r.Logger.Debug("verdict stored", "request_id", v.RequestID, "points", len(v.OutputSeries))
	return nil
}
