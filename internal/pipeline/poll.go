package pipeline

import (
	"context"
	"time"

	"go-sim-loop/internal/model"
)

// Responder answers completion polls from the tracker's state.
type Responder struct {
	tracker *Tracker
	maxWait time.Duration
}

// NewResponder creates a responder. maxWait caps server-side long polls.
func NewResponder(tracker *Tracker, maxWait time.Duration) *Responder {
	return &Responder{tracker: tracker, maxWait: maxWait}
}

// Poll reports pending until any verdict of the request's family exists, then
// the family result.
func (r *Responder) Poll(requestID string) model.FamilyResult {
	root := r.tracker.RootOf(requestID)
	snap, ok := r.tracker.GetFamily(root)
	if !ok || snap.ReportedCount == 0 {
		return model.FamilyResult{RootID: root, RequestID: requestID, State: model.StatePending}
	}
	return model.NewFamilyResult(requestID, snap)
}

// Wait returns the result immediately when it is final (the family passed or
// settled); otherwise it blocks until the family changes, wait elapses or ctx
// is done, and returns the latest result.
func (r *Responder) Wait(ctx context.Context, requestID string, wait time.Duration) model.FamilyResult {
	if r.maxWait > 0 && wait > r.maxWait {
		wait = r.maxWait
	}
	changed := r.tracker.Watch(r.tracker.RootOf(requestID))

	res := r.Poll(requestID)
	if wait <= 0 || IsFinal(res) {
		return res
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-changed:
		case <-timer.C:
			return r.Poll(requestID)
		case <-ctx.Done():
			return r.Poll(requestID)
		}
		// an untracked root is woken by any new family
		root := r.tracker.RootOf(requestID)
		changed = r.tracker.Watch(root)
		if r.tracker.tracked(root) {
			return r.Poll(requestID)
		}
	}
}

// IsFinal reports whether no further verdict can change a result's outcome.
func IsFinal(res model.FamilyResult) bool {
	return res.State == model.StateComplete && (res.FamilyPassed || res.Settled)
}

// AwaitOptions configures AwaitFamily.
type AwaitOptions struct {
	Budget   time.Duration // total wait before giving up with a timeout state
	Interval time.Duration // pause between polls
}

// DefaultAwaitOptions matches the client defaults: poll every 3s for up to 5m.
func DefaultAwaitOptions() AwaitOptions {
	return AwaitOptions{Budget: 5 * time.Minute, Interval: 3 * time.Second}
}

// FetchFunc retrieves the current result of the awaited request.
type FetchFunc func(ctx context.Context) (model.FamilyResult, error)

// AwaitFamily polls fetch until the result is final or the budget is spent.
// Fetch errors are retried on the next tick. When the budget runs out the last
// known result is returned with State set to timeout.
func AwaitFamily(ctx context.Context, fetch FetchFunc, opts AwaitOptions) (model.FamilyResult, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultAwaitOptions().Interval
	}
	deadline := time.Now().Add(opts.Budget)

	var last model.FamilyResult
	var lastErr error
	for {
		res, err := fetch(ctx)
		if err == nil {
			last, lastErr = res, nil
			if IsFinal(res) {
				return res, nil
			}
		} else {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			last.State = model.StateTimeout
			return last, lastErr
		}
		timer := time.NewTimer(min(opts.Interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}
