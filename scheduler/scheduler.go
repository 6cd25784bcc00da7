// Copyright 2025 The autometa Authors
// This file is part of the autometa library.
//
// The autometa library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The autometa library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the autometa library. If not, see <http://www.gnu.org/licenses/>.

// Package scheduler drives the trigger evaluation loop: every poll interval
// it scans the full on-chain workflow registry, evaluates each workflow's
// trigger concurrently and enqueues the ready ones for the job worker.
// Evaluation never mutates chain state, so a crashed sweep loses nothing;
// the next sweep sees the same registry and repeats the work.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"golang.org/x/sync/errgroup"

	"github.com/autometa-labs/autometa/triggers"
	"github.com/autometa-labs/autometa/workflow"
)

const (
	// DefaultPollInterval is the sweep cadence.
	DefaultPollInterval = 10 * time.Second

	// DefaultMaxConcurrent caps in-flight evaluations per sweep.
	DefaultMaxConcurrent = 5
)

var (
	sweepTimer     = metrics.NewRegisteredTimer("scheduler/sweep", nil)
	scannedMeter   = metrics.NewRegisteredMeter("scheduler/scanned", nil)
	readyMeter     = metrics.NewRegisteredMeter("scheduler/ready", nil)
	evalFailMeter  = metrics.NewRegisteredMeter("scheduler/evalfail", nil)
	enqueueCounter = metrics.NewRegisteredCounter("scheduler/enqueued", nil)
)

// Registry is the read surface of the on-chain workflow catalog.
type Registry interface {
	TotalWorkflows(ctx context.Context) (uint64, error)
	GetWorkflow(ctx context.Context, id uint64) (*workflow.Workflow, error)
}

// Queue is the producer side of the job handoff.
type Queue interface {
	Push(ctx context.Context, job *workflow.Job) error
	Len(ctx context.Context) (int64, error)
}

// Scheduler owns the periodic sweep over the registry.
type Scheduler struct {
	registry Registry
	queue    Queue
	evals    map[workflow.TriggerType]triggers.Evaluator

	poll    time.Duration
	maxEval int
	log     log.Logger
}

// New creates a scheduler. Zero poll or maxEval select the defaults.
func New(registry Registry, queue Queue, evals map[workflow.TriggerType]triggers.Evaluator, poll time.Duration, maxEval int) *Scheduler {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if maxEval <= 0 {
		maxEval = DefaultMaxConcurrent
	}
	return &Scheduler{
		registry: registry,
		queue:    queue,
		evals:    evals,
		poll:     poll,
		maxEval:  maxEval,
		log:      log.New("module", "scheduler"),
	}
}

// Run sweeps until the context is cancelled. A failing sweep is logged and
// the loop carries on; the registry is the source of truth and the next tick
// retries from scratch.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Scheduler started", "poll", s.poll, "concurrency", s.maxEval)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if n, err := s.Sweep(ctx); err != nil {
			s.log.Error("Sweep failed", "err", err)
		} else if depth, err := s.queue.Len(ctx); err != nil {
			s.log.Info("Sweep complete", "enqueued", n)
			s.log.Warn("Queue depth unavailable", "err", err)
		} else {
			s.log.Info("Sweep complete", "enqueued", n, "depth", depth)
		}
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep scans ids 1..totalWorkflows, evaluates their triggers concurrently
// and enqueues the ready workflows in ascending id order. Per-workflow
// failures (fetch or evaluation) are logged and skipped so one broken
// workflow cannot stall the rest. Returns the number of jobs enqueued.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { sweepTimer.UpdateSince(start) }()

	total, err := s.registry.TotalWorkflows(ctx)
	if err != nil {
		return 0, err
	}
	scannedMeter.Mark(int64(total))

	var (
		mu    sync.Mutex
		ready []*workflow.Workflow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxEval)
	for id := uint64(1); id <= total; id++ {
		id := id
		g.Go(func() error {
			wf, err := s.registry.GetWorkflow(gctx, id)
			if err != nil {
				evalFailMeter.Mark(1)
				s.log.Warn("Workflow fetch failed", "wf", id, "err", err)
				return nil
			}
			ok, err := s.evaluate(gctx, wf)
			if err != nil {
				evalFailMeter.Mark(1)
				s.log.Warn("Trigger evaluation failed", "wf", id, "trigger", wf.TriggerType, "err", err)
				return nil
			}
			if ok {
				mu.Lock()
				ready = append(ready, wf)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	readyMeter.Mark(int64(len(ready)))

	// Concurrent evaluation scrambles completion order; restore id order
	// before enqueueing so the worker drains workflows deterministically.
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })

	enqueued := 0
	for _, wf := range ready {
		if err := s.queue.Push(ctx, workflow.NewJob(wf)); err != nil {
			s.log.Error("Enqueue failed", "wf", wf.ID, "err", err)
			continue
		}
		enqueueCounter.Inc(1)
		enqueued++
		s.log.Info("Workflow ready", "wf", wf.ID, "trigger", wf.TriggerType, "action", wf.ActionType)
	}
	return enqueued, nil
}

// evaluate dispatches on the trigger type. Unknown types are skipped rather
// than failed: a registry newer than this binary must not wedge the sweep.
func (s *Scheduler) evaluate(ctx context.Context, wf *workflow.Workflow) (bool, error) {
	eval, ok := s.evals[wf.TriggerType]
	if !ok {
		s.log.Debug("No evaluator for trigger type", "wf", wf.ID, "trigger", wf.TriggerType)
		return false, nil
	}
	return eval.Ready(ctx, wf)
}
