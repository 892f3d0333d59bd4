package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-sim-loop/internal/model"
)

// maxRecentErrors bounds the error history kept in memory.
const maxRecentErrors = 50

// ErrorSink persists stage errors.
type ErrorSink interface {
	SaveRunError(ctx context.Context, runID, stage string, err error) error
}

// LoopTracker collects loop counters and per-stage timings. A nil tracker is
// valid and records nothing.
type LoopTracker struct {
	mu       sync.RWMutex
	metrics  model.LoopMetrics
	families func() (tracked, passed int)

	errorCh chan model.ErrorDetail
	sink    ErrorSink
	logger  *slog.Logger
}

// NewLoopTracker creates a tracker. sink may be nil.
func NewLoopTracker(sink ErrorSink, logger *slog.Logger) *LoopTracker {
	return &LoopTracker{
		metrics: model.LoopMetrics{
			StartTime:    time.Now(),
			StageMetrics: make(map[string]model.StageMetrics),
			RecentErrors: make([]model.ErrorDetail, 0),
		},
		errorCh: make(chan model.ErrorDetail, 1000),
		sink:    sink,
		logger:  logger.With("component", "metrics"),
	}
}

// Run persists recorded errors until ctx is done.
func (lt *LoopTracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case detail := <-lt.errorCh:
			if lt.sink == nil || detail.RequestID == "" {
				continue
			}
			err := lt.sink.SaveRunError(ctx, detail.RequestID, detail.Stage,
				fmt.Errorf("%s: %s", detail.ErrorType, detail.Message))
			if err != nil {
				lt.logger.Warn("failed to persist stage error", "request_id", detail.RequestID, "error", err)
			}
		}
	}
}

// SetFamilyCounter installs the source of the family counts.
func (lt *LoopTracker) SetFamilyCounter(f func() (tracked, passed int)) {
	if lt == nil {
		return
	}
	lt.mu.Lock()
	lt.families = f
	lt.mu.Unlock()
}

// StartStage marks a stage as running with the given number of workers.
func (lt *LoopTracker) StartStage(stage string, workers int) {
	if lt == nil {
		return
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	sm := lt.metrics.StageMetrics[stage]
	sm.StageName = stage
	sm.StartTime = time.Now()
	sm.Status = "running"
	sm.WorkerCount += workers
	lt.metrics.StageMetrics[stage] = sm
	lt.logger.Debug("stage started", "stage", stage, "workers", sm.WorkerCount)
}

// StopStage marks a stage as stopped.
func (lt *LoopTracker) StopStage(stage string) {
	if lt == nil {
		return
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	sm := lt.metrics.StageMetrics[stage]
	sm.Status = "stopped"
	lt.metrics.StageMetrics[stage] = sm
}

// ObserveMessage records one handled message of a stage.
func (lt *LoopTracker) ObserveMessage(stage string, started time.Time, err error) {
	if lt == nil {
		return
	}
	now := time.Now()
	lt.mu.Lock()
	defer lt.mu.Unlock()
	sm := lt.metrics.StageMetrics[stage]
	sm.StageName = stage
	sm.MessagesHandled++
	if err != nil {
		sm.ErrorCount++
	}
	sm.LastMessageAt = &now
	sm.TotalProcessTime += now.Sub(started)
	sm.AverageLatency = sm.TotalProcessTime / time.Duration(sm.MessagesHandled)
	lt.metrics.StageMetrics[stage] = sm
}

func (lt *LoopTracker) add(f func(m *model.LoopMetrics)) {
	if lt == nil {
		return
	}
	lt.mu.Lock()
	f(&lt.metrics)
	lt.mu.Unlock()
}

func (lt *LoopTracker) RequestSubmitted() {
	lt.add(func(m *model.LoopMetrics) { m.RequestsSubmitted++ })
}

// TerminalLeaf counts a failed variant that was not expanded.
func (lt *LoopTracker) TerminalLeaf() {
	lt.add(func(m *model.LoopMetrics) { m.TerminalLeaves++ })
}

func (lt *LoopTracker) DuplicateVerdict() {
	lt.add(func(m *model.LoopMetrics) { m.DuplicateVerdicts++ })
}

func (lt *LoopTracker) VariantsGenerated(n int) {
	lt.add(func(m *model.LoopMetrics) { m.VariantsGenerated += int64(n) })
}

func (lt *LoopTracker) RunExecuted(failed bool) {
	lt.add(func(m *model.LoopMetrics) {
		m.RunsExecuted++
		if failed {
			m.ExecutionErrors++
		}
	})
}

func (lt *LoopTracker) Verdict(passed bool) {
	lt.add(func(m *model.LoopMetrics) {
		if passed {
			m.VerdictsPassed++
		} else {
			m.VerdictsFailed++
		}
	})
}

// RetryNotifier returns a RetryNotify that counts and logs retries.
func (lt *LoopTracker) RetryNotifier(stage, requestID string) RetryNotify {
	return func(attempt int, delay time.Duration, err error) {
		if lt == nil {
			return
		}
		lt.add(func(m *model.LoopMetrics) { m.TransientRetries++ })
		lt.logger.Warn("retrying operation",
			"stage", stage, "request_id", requestID, "attempt", attempt, "delay", delay, "error", err)
	}
}

// RecordError keeps an error in the recent history and queues it for
// persistence. When the queue is full the error is only kept in memory.
func (lt *LoopTracker) RecordError(stage, requestID, errorType string, err error, retryable bool) {
	if lt == nil || err == nil {
		return
	}
	detail := model.ErrorDetail{
		Timestamp: time.Now(),
		Stage:     stage,
		RequestID: requestID,
		ErrorType: errorType,
		Message:   err.Error(),
		Retryable: retryable,
	}

	lt.mu.Lock()
	lt.metrics.RecentErrors = append(lt.metrics.RecentErrors, detail)
	if n := len(lt.metrics.RecentErrors); n > maxRecentErrors {
		lt.metrics.RecentErrors = append([]model.ErrorDetail(nil), lt.metrics.RecentErrors[n-maxRecentErrors:]...)
	}
	lt.mu.Unlock()

	select {
	case lt.errorCh <- detail:
	default:
		lt.logger.Warn("error queue full, not persisting", "stage", stage, "request_id", requestID)
	}
}

// Metrics returns a copy of the current counters.
func (lt *LoopTracker) Metrics() model.LoopMetrics {
	if lt == nil {
		return model.LoopMetrics{}
	}
	lt.mu.RLock()
	m := lt.metrics
	m.StageMetrics = make(map[string]model.StageMetrics, len(lt.metrics.StageMetrics))
	for k, v := range lt.metrics.StageMetrics {
		m.StageMetrics[k] = v
	}
	m.RecentErrors = append([]model.ErrorDetail(nil), lt.metrics.RecentErrors...)
	families := lt.families
	lt.mu.RUnlock()

	m.Uptime = time.Since(m.StartTime)
	if families != nil {
		m.FamiliesTracked, m.FamiliesPassed = families()
	}
	return m
}
