// Package pipeline implements the closed feedback loop: execute, validate and,
// on failure of a user request, generate variants that go around once more.
// Stages share nothing but topics; each runs as its own consumer group.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/config"
	"go-sim-loop/internal/model"
	"go-sim-loop/internal/store"
)

// Consumer group names.
const (
	GroupExecutor  = "executor"
	GroupValidator = "validator"
	GroupGenerator = "generator"
	GroupTracker   = "tracker"
	GroupRecorder  = "recorder"
)

// Deps are the collaborators of a Loop. Store is optional; without it nothing
// is persisted.
type Deps struct {
	Broker    bus.Broker
	Models    ModelFetcher
	Simulator Simulator
	Store     *store.Store
	Logger    *slog.Logger
}

// Loop owns the stages of the feedback loop.
type Loop struct {
	cfg    *config.Config
	broker bus.Broker
	store  *store.Store
	logger *slog.Logger

	Tracker   *Tracker
	Responder *Responder
	Metrics   *LoopTracker

	executor  *Executor
	validator *Validator
	generator *Generator
	recorder  *Recorder
}

// NewLoop wires the stages from configuration.
func NewLoop(cfg *config.Config, deps Deps) (*Loop, error) {
	if deps.Broker == nil || deps.Models == nil || deps.Simulator == nil {
		return nil, errors.New("loop needs a broker, a model fetcher and a simulator")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := cfg.Generator
	strategy, err := NewStrategy(g.Strategy, PerturbationConfig{
		NormalMin:   g.NormalMin,
		NormalMax:   g.NormalMax,
		OutlierMin:  g.OutlierMin,
		OutlierMax:  g.OutlierMax,
		MinOutliers: g.MinOutliers,
		MaxOutliers: g.MaxOutliers,
	}, g.Seed)
	if err != nil {
		return nil, err
	}

	var sink ErrorSink
	if deps.Store != nil {
		sink = deps.Store
	}
	metrics := NewLoopTracker(sink, logger)
	tracker := NewTracker(g.Variants, metrics, logger)
	metrics.SetFamilyCounter(tracker.Counts)

	l := &Loop{
		cfg:       cfg,
		broker:    deps.Broker,
		store:     deps.Store,
		logger:    logger,
		Tracker:   tracker,
		Responder: NewResponder(tracker, cfg.Poll.MaxLongPoll),
		Metrics:   metrics,
		executor: &Executor{
			Models:       deps.Models,
			Simulator:    deps.Simulator,
			Publisher:    deps.Broker,
			ResultsTopic: cfg.Topics.Results,
			FetchRetry:   cfg.RetryFor("model_fetch"),
			PublishRetry: cfg.RetryFor("publish"),
			Metrics:      metrics,
			Logger:       logger.With("component", GroupExecutor),
		},
		validator: &Validator{
			Publisher:    deps.Broker,
			SuccessTopic: cfg.Topics.ValidationSuccess,
			FailureTopic: cfg.Topics.ValidationFailure,
			Retry:        cfg.RetryFor("publish"),
			Metrics:      metrics,
			Logger:       logger.With("component", GroupValidator),
		},
		generator: &Generator{
			Publisher:     deps.Broker,
			RequestsTopic: cfg.Topics.Requests,
			Variants:      g.Variants,
			Strategy:      strategy,
			Retry:         cfg.RetryFor("publish"),
			Metrics:       metrics,
			Logger:        logger.With("component", GroupGenerator),
		},
	}
	if deps.Store != nil {
		l.recorder = &Recorder{
			Store:   deps.Store,
			Retry:   cfg.RetryFor("store"),
			Metrics: metrics,
			Logger:  logger.With("component", GroupRecorder),
		}
	}
	return l, nil
}

// Hydrate rebuilds the family aggregates from the store.
func (l *Loop) Hydrate(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	runs, err := l.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load stored runs: %w", err)
	}
	l.Tracker.Hydrate(runs)
	tracked, passed := l.Tracker.Counts()
	l.logger.Info("families restored", "runs", len(runs), "families", tracked, "passed", passed)
	return nil
}

// Submit publishes a user request into the loop. The request is stored first
// so it can be looked up before any stage has seen it.
func (l *Loop) Submit(ctx context.Context, req model.Request) error {
	if l.store != nil {
		err := Retry(ctx, l.cfg.RetryFor("store"), func(ctx context.Context) error {
			return l.store.SaveRequest(ctx, req)
		}, l.Metrics.RetryNotifier("submit", req.RequestID))
		if err != nil {
			return fmt.Errorf("save request: %w", err)
		}
	}
	l.Tracker.RegisterRequest(req)

	err := Retry(ctx, l.cfg.RetryFor("publish"), func(ctx context.Context) error {
		return bus.PublishJSON(ctx, l.broker, l.cfg.Topics.Requests, req.RequestID, req)
	}, l.Metrics.RetryNotifier("submit", req.RequestID))
	if err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	l.Metrics.RequestSubmitted()
	l.logger.Info("request submitted", "request_id", req.RequestID, "model_reference", req.ModelReference)
	return nil
}

// Run starts every stage and blocks until ctx is done and all consumers have
// returned.
func (l *Loop) Run(ctx context.Context) error {
	t := l.cfg.Topics
	w := l.cfg.Workers

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Metrics.Run(ctx)
	}()

	l.consume(ctx, &wg, GroupTracker, t.Requests, 1, l.Tracker.HandleRequest)
	l.consume(ctx, &wg, GroupTracker, t.ValidationSuccess, 1, l.Tracker.HandleVerdict)
	l.consume(ctx, &wg, GroupTracker, t.ValidationFailure, 1, l.Tracker.HandleVerdict)
	if l.recorder != nil {
		l.consume(ctx, &wg, GroupRecorder, t.Requests, 1, l.recorder.HandleRequest)
		l.consume(ctx, &wg, GroupRecorder, t.ValidationSuccess, 1, l.recorder.HandleVerdict)
		l.consume(ctx, &wg, GroupRecorder, t.ValidationFailure, 1, l.recorder.HandleVerdict)
	}
	l.consume(ctx, &wg, GroupExecutor, t.Requests, w.Executor, l.executor.Handle)
	l.consume(ctx, &wg, GroupValidator, t.Results, w.Validator, l.validator.Handle)
	l.consume(ctx, &wg, GroupGenerator, t.ValidationFailure, w.Generator, l.generator.Handle)

	l.logger.Info("feedback loop started",
		"executors", w.Executor, "validators", w.Validator, "generators", w.Generator,
		"variants", l.cfg.Generator.Variants, "strategy", l.generator.Strategy.Name())

	<-ctx.Done()
	wg.Wait()
	l.logger.Info("feedback loop stopped")
	return nil
}

// consume starts workers subscribers of topic in group.
func (l *Loop) consume(ctx context.Context, wg *sync.WaitGroup, group, topic string, workers int, h bus.Handler) {
	stage := group
	l.Metrics.StartStage(stage, workers)
	observed := func(ctx context.Context, msg bus.Message) error {
		start := time.Now()
		err := h(ctx, msg)
		l.Metrics.ObserveMessage(stage, start, err)
		return err
	}

	var stageWG sync.WaitGroup
	stageWG.Add(workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			defer stageWG.Done()
			if err := l.broker.Subscribe(ctx, topic, group, observed); err != nil {
				l.logger.Error("consumer stopped", "group", group, "topic", topic, "worker", workerID, "error", err)
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		stageWG.Wait()
		l.Metrics.StopStage(stage)
	}()
}
