package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/model"
	"go-sim-loop/pkg/utils"
)

// Observe returns the maximum numeric value of field across series. Records
// without the field or with a non-numeric value are skipped. ok is false when
// no usable value exists.
func Observe(series []model.SeriesRecord, field string) (max float64, ok bool) {
	for _, rec := range series {
		raw, present := rec[field]
		if !present {
			continue
		}
		v, numeric := utils.Numeric(raw)
		if !numeric {
			continue
		}
		if !ok || v > max {
			max, ok = v, true
		}
	}
	return max, ok
}

// ValidateResult evaluates the criterion carried by res against its output
// series. It does not depend on who created the request.
func ValidateResult(res model.ExecutionResult, now time.Time) model.Verdict {
	c := res.Criterion
	val := model.Validation{
		Metric:      c.Metric(),
		Threshold:   c.TargetValue,
		ValidatedAt: now.UTC(),
	}

	switch {
	case res.Status == model.StatusFailed:
		msg := res.ErrorMessage
		if msg == "" {
			msg = "simulation failed"
		}
		val.Reason = "execution error: " + msg
	case len(res.OutputSeries) == 0:
		val.Reason = fmt.Sprintf("no data: no '%s' data in simulation results", c.FieldName)
	default:
		observed, ok := Observe(res.OutputSeries, c.FieldName)
		if !ok {
			val.Reason = fmt.Sprintf("no data: no numeric values for '%s'", c.FieldName)
			break
		}
		val.CalculatedValue = &observed
		val.Passed = observed >= c.TargetValue
		verb := "below"
		if val.Passed {
			verb = "meets"
		}
		val.Reason = fmt.Sprintf("max(%s)=%.4f %s target %v", c.FieldName, observed, verb, c.TargetValue)
	}

	return model.Verdict{ExecutionResult: res, Validation: val}
}

// Validator consumes execution results and publishes one verdict per result to
// the success or failure topic.
type Validator struct {
	Publisher    bus.Publisher
	SuccessTopic string
	FailureTopic string
	Retry        model.RetryConfig
	Metrics      *LoopTracker
	Logger       *slog.Logger
	Now          func() time.Time
}

// Handle is the bus handler of the validator stage.
func (v *Validator) Handle(ctx context.Context, msg bus.Message) error {
	var res model.ExecutionResult
	if err := bus.Decode(msg, &res); err != nil {
		v.Metrics.RecordError("validator", msg.Key, "decode", err, false)
		v.Logger.Error("dropping undecodable result", "key", msg.Key, "error", err)
		return nil
	}

	verdict := ValidateResult(res, v.now())
	topic := v.FailureTopic
	if verdict.Validation.Passed {
		topic = v.SuccessTopic
	}

	err := Retry(ctx, v.Retry, func(ctx context.Context) error {
		return bus.PublishJSON(ctx, v.Publisher, topic, verdict.RequestID, verdict)
	}, v.Metrics.RetryNotifier("validator", verdict.RequestID))
	if err != nil {
		v.Metrics.RecordError("validator", verdict.RequestID, "transient", err, true)
		return fmt.Errorf("publish verdict %s: %w", verdict.RequestID, err)
	}

	v.Metrics.Verdict(verdict.Validation.Passed)
	v.Logger.Info("result validated",
		"request_id", verdict.RequestID,
		"origin", verdict.Origin,
		"passed", verdict.Validation.Passed,
		"reason", verdict.Validation.Reason)
	return nil
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
