package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/config"
	"go-sim-loop/internal/logging"
	"go-sim-loop/internal/model"
	"go-sim-loop/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopHarness struct {
	loop   *Loop
	broker *bus.MemoryBroker
	store  *store.Store
}

func startLoop(t *testing.T, sim Simulator) *loopHarness {
	t.Helper()
	cfg := config.Default()
	cfg.Generator.Strategy = "fixed"
	cfg.Workers = config.WorkersConfig{Executor: 3, Validator: 2, Generator: 1}
	for op := range cfg.Retry {
		cfg.Retry[op] = fastRetry
	}

	broker := bus.NewMemoryBroker(bus.Options{RedeliveryDelay: 5 * time.Millisecond, MaxRedeliveries: 3, Logger: logging.Discard()})
	st, err := store.Open(filepath.Join(t.TempDir(), "loop.db"))
	require.NoError(t, err)

	loop, err := NewLoop(cfg, Deps{
		Broker:    broker,
		Models:    staticModels{},
		Simulator: sim,
		Store:     st,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		broker.Close()
		st.Close()
	})
	return &loopHarness{loop: loop, broker: broker, store: st}
}

func (h *loopHarness) submit(t *testing.T, id string, h0, target float64) {
	t.Helper()
	req := model.Request{
		RequestID:      id,
		Origin:         model.OriginUser,
		Parameters:     model.Parameters{"h0": h0, "n": 3, "mode": "drop"},
		Criterion:      model.Criterion{FieldName: "h", TargetValue: target},
		ModelReference: "ball.json",
		SubmittedAt:    time.Now().UTC(),
	}
	require.NoError(t, h.loop.Submit(context.Background(), req))
}

// waitReported blocks until the family of root has n verdicts.
func (h *loopHarness) waitReported(t *testing.T, root string, n int) model.FamilySnapshot {
	t.Helper()
	var snap model.FamilySnapshot
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = h.loop.Tracker.GetFamily(root)
		return ok && snap.ReportedCount == n
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func (h *loopHarness) requestsFor(t *testing.T, root string) []model.Request {
	t.Helper()
	seen := map[string]bool{}
	var out []model.Request
	for _, msg := range h.broker.Messages("simulation") {
		var req model.Request
		require.NoError(t, bus.Decode(msg, &req))
		if req.FamilyRoot() != root || seen[req.RequestID] {
			continue
		}
		seen[req.RequestID] = true
		out = append(out, req)
	}
	return out
}

func TestLoop_ImmediateSuccess(t *testing.T) {
	h := startLoop(t, flatSimulator{})
	h.submit(t, "root-a", 1.3, 1.2)

	snap := h.waitReported(t, "root-a", 1)
	assert.True(t, snap.FamilyPassed)
	assert.True(t, snap.Settled)
	assert.Equal(t, "root-a", snap.BestMember.RequestID)

	// nothing is generated for a passing user request
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.requestsFor(t, "root-a"), 1)
	assert.Empty(t, h.broker.Messages("validation-failure"))

	res := h.loop.Responder.Poll("root-a")
	assert.Equal(t, model.StateComplete, res.State)
	assert.True(t, res.FamilyPassed)
	assert.False(t, res.IsVariant)
	assert.Equal(t, 1, res.TotalRuns)
}

func TestLoop_VariantRescuesFailedRequest(t *testing.T) {
	h := startLoop(t, flatSimulator{})
	// fixed scales 1.15 and 1.20 lift h0 = 1.0 over 1.12
	h.submit(t, "root-b", 1.0, 1.12)

	snap := h.waitReported(t, "root-b", 11)
	assert.True(t, snap.FamilyPassed)
	assert.Equal(t, 2, snap.PassedCount)
	require.NotNil(t, snap.BestMember)
	assert.Equal(t, model.VariantID("root-b", 7), snap.BestMember.RequestID)
	assert.InDelta(t, 1.2, snap.BestMember.ObservedValue, 1e-9)

	root, ok := snap.Member("root-b")
	require.True(t, ok)
	assert.False(t, root.Passed)

	res := h.loop.Responder.Poll("root-b")
	assert.True(t, res.FamilyPassed)
	assert.True(t, res.IsVariant)
	assert.Equal(t, 11, res.TotalRuns)

	require.Eventually(t, func() bool {
		runs, err := h.store.ListFamily(context.Background(), "root-b")
		if err != nil || len(runs) != 11 {
			return false
		}
		for _, r := range runs {
			if r.Passed == nil {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLoop_GenerationDepthIsOne(t *testing.T) {
	h := startLoop(t, flatSimulator{})
	h.submit(t, "root-c", 1.0, 5)

	snap := h.waitReported(t, "root-c", 11)
	assert.False(t, snap.FamilyPassed)
	assert.True(t, snap.Settled)
	assert.Nil(t, snap.BestMember)

	// give a runaway generator time to show itself
	time.Sleep(100 * time.Millisecond)
	reqs := h.requestsFor(t, "root-c")
	require.Len(t, reqs, 11)

	system := 0
	for _, r := range reqs {
		if r.Origin == model.OriginUser {
			assert.Equal(t, "root-c", r.RequestID)
			continue
		}
		system++
		assert.Equal(t, "root-c", r.ParentID)
		assert.Equal(t, 1, strings.Count(r.RequestID, model.GenerationSuffix))
		assert.True(t, model.IsIntegerValue(r.Parameters["n"]))
		assert.Equal(t, "drop", r.Parameters["mode"])
	}
	assert.Equal(t, 10, system)

	m := h.loop.Metrics.Metrics()
	assert.EqualValues(t, 10, m.VariantsGenerated)
	assert.EqualValues(t, 10, m.TerminalLeaves)
	assert.EqualValues(t, 11, m.VerdictsFailed)
	assert.Equal(t, 1, m.FamiliesTracked)
}

func TestLoop_ExecutionErrorsStillExpand(t *testing.T) {
	h := startLoop(t, flatSimulator{err: assert.AnError})
	h.submit(t, "root-d", 1.0, 0)

	snap := h.waitReported(t, "root-d", 11)
	assert.False(t, snap.FamilyPassed)
	for _, m := range snap.Members {
		assert.True(t, strings.HasPrefix(m.Reason, "execution error"), m.Reason)
		assert.Nil(t, m.ObservedValue)
	}

	require.Eventually(t, func() bool {
		msgs, err := h.store.RunErrors(context.Background(), "root-d")
		return err == nil && len(msgs) > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLoop_HydrateRestoresFamilies(t *testing.T) {
	h := startLoop(t, flatSimulator{})
	h.submit(t, "root-e", 2.0, 1.0)
	h.waitReported(t, "root-e", 1)
	require.Eventually(t, func() bool {
		r, err := h.store.GetRun(context.Background(), "root-e")
		return err == nil && r.Passed != nil
	}, 5*time.Second, 10*time.Millisecond)

	cfg := config.Default()
	fresh, err := NewLoop(cfg, Deps{Broker: h.broker, Models: staticModels{}, Simulator: flatSimulator{}, Store: h.store, Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, fresh.Hydrate(context.Background()))

	snap, ok := fresh.Tracker.GetFamily("root-e")
	require.True(t, ok)
	assert.True(t, snap.FamilyPassed)
	assert.Equal(t, "root-e", snap.BestMember.RequestID)
}
