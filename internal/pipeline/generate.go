package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/model"
)

// Generator turns a failed verdict of a user request into N sibling variants.
// Failed variants are leaves: they are never expanded, which caps the family
// depth at one.
type Generator struct {
	Publisher     bus.Publisher
	RequestsTopic string
	Variants      int
	Strategy      VariationStrategy
	Retry         model.RetryConfig
	Metrics       *LoopTracker
	Logger        *slog.Logger
	Now           func() time.Time

	mu        sync.Mutex
	published map[string]struct{}
}

// ShouldExpand reports whether a verdict may produce variants.
func ShouldExpand(v model.Verdict) bool {
	return !v.Validation.Passed && v.Origin == model.OriginUser
}

// BuildVariants derives n variant requests from the parent of a failed verdict.
func BuildVariants(parent model.Request, n int, strategy VariationStrategy, now time.Time) []model.Request {
	root := parent.FamilyRoot()
	variants := make([]model.Request, 0, n)
	for i := 1; i <= n; i++ {
		var window *model.Window
		if parent.Window != nil {
			w := *parent.Window
			window = &w
		}
		variants = append(variants, model.Request{
			RequestID:      model.VariantID(parent.RequestID, i),
			ParentID:       parent.RequestID,
			RootID:         root,
			Origin:         model.OriginSystem,
			Parameters:     strategy.Vary(parent.Parameters, i),
			Criterion:      parent.Criterion,
			ModelReference: parent.ModelReference,
			InputSeries:    parent.InputSeries,
			Window:         window,
			SubmittedAt:    now.UTC(),
		})
	}
	return variants
}

// Handle is the bus handler of the generator stage.
func (g *Generator) Handle(ctx context.Context, msg bus.Message) error {
	var v model.Verdict
	if err := bus.Decode(msg, &v); err != nil {
		g.Metrics.RecordError("generator", msg.Key, "decode", err, false)
		g.Logger.Error("dropping undecodable verdict", "key", msg.Key, "error", err)
		return nil
	}

	if v.Validation.Passed {
		return nil
	}
	if !ShouldExpand(v) {
		g.Metrics.TerminalLeaf()
		g.Logger.Debug("variant failed, not expanding", "request_id", v.RequestID, "parent_id", v.ParentID)
		return nil
	}

	variants := BuildVariants(v.Request, g.Variants, g.Strategy, g.now())
	sent := 0
	for _, req := range variants {
		if g.seen(req.RequestID) {
			continue
		}
		err := Retry(ctx, g.Retry, func(ctx context.Context) error {
			return bus.PublishJSON(ctx, g.Publisher, g.RequestsTopic, req.RequestID, req)
		}, g.Metrics.RetryNotifier("generator", req.RequestID))
		if err != nil {
			g.Metrics.RecordError("generator", req.RequestID, "transient", err, true)
			return fmt.Errorf("publish variant %s: %w", req.RequestID, err)
		}
		g.markPublished(req.RequestID)
		sent++
	}

	g.Metrics.VariantsGenerated(sent)
	g.Logger.Info("variants generated",
		"parent_id", v.RequestID,
		"strategy", g.Strategy.Name(),
		"published", sent,
		"reason", v.Validation.Reason)
	return nil
}

// seen reports whether a variant id was already published, so a redelivered
// verdict does not add siblings beyond N.
func (g *Generator) seen(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.published[id]
	return ok
}

func (g *Generator) markPublished(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.published == nil {
		g.published = make(map[string]struct{})
	}
	g.published[id] = struct{}{}
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
