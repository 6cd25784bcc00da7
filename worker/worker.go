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

// Package worker is the queue consumer: it pops jobs, preflights the owner's
// escrow balance and submits the execution transaction. Every job gets
// exactly one attempt; a failed job is logged and recorded, never retried or
// re-enqueued, because the scheduler will re-produce it on the next sweep if
// its trigger still holds.
package worker

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/autometa-labs/autometa/executor"
	"github.com/autometa-labs/autometa/history"
	"github.com/autometa-labs/autometa/queue"
	"github.com/autometa-labs/autometa/workflow"
)

// DefaultInterval reschedules a workflow whose on-chain interval is zero.
const DefaultInterval = 60

var (
	processedCounter   = metrics.NewRegisteredCounter("worker/processed", nil)
	underfundedCounter = metrics.NewRegisteredCounter("worker/underfunded", nil)
	droppedCounter     = metrics.NewRegisteredCounter("worker/dropped", nil)
)

// Queue is the consumer side of the job handoff.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*workflow.Job, error)
}

// EscrowReader reads prepaid fee balances for the preflight check.
type EscrowReader interface {
	Balance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Executor submits the signed execution transaction and waits it out.
type Executor interface {
	ExecuteWorkflow(ctx context.Context, id uint64, actionData []byte, newNextRun uint64, user common.Address, gasToCharge *big.Int) (*executor.Result, error)
}

// Recorder appends execution history entries. Recording is best effort.
type Recorder interface {
	Record(ctx context.Context, e *history.Entry) error
}

// Worker drains the job queue one job at a time.
type Worker struct {
	queue   Queue
	escrow  EscrowReader
	exec    Executor
	records Recorder

	popTimeout time.Duration
	now        func() time.Time
	log        log.Logger
}

// New creates a worker. records may be nil to disable history.
func New(q Queue, escrow EscrowReader, exec Executor, records Recorder) *Worker {
	return &Worker{
		queue:      q,
		escrow:     escrow,
		exec:       exec,
		records:    records,
		popTimeout: queue.DefaultPopTimeout,
		now:        time.Now,
		log:        log.New("module", "worker"),
	}
}

// Run consumes jobs until the context is cancelled. The in-flight job is
// finished before returning; cancellation is only observed between jobs and
// inside the executor's receipt wait.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Worker started", "popTimeout", w.popTimeout)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker stopped")
			return ctx.Err()
		default:
		}
		job, err := w.queue.Pop(ctx, w.popTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("Worker stopped")
				return ctx.Err()
			}
			w.log.Error("Queue pop failed", "err", err)
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one job end to end: preflight, submit, classify the outcome.
// It never returns an error because there is no caller that could act on
// one; every path ends in a log line and a history entry.
func (w *Worker) Process(ctx context.Context, job *workflow.Job) {
	processedCounter.Inc(1)
	lg := w.log.New("wf", job.WorkflowID)

	owner, err := job.OwnerAddress()
	if err != nil {
		droppedCounter.Inc(1)
		lg.Error("Dropping job with malformed owner", "err", err)
		w.record(ctx, job, "", history.StatusDropped)
		return
	}

	// Preflight the escrow so an underfunded owner does not burn worker gas
	// on a guaranteed revert. An unreadable balance is not a reason to drop:
	// the contract enforces the real check.
	if balance, err := w.escrow.Balance(ctx, owner); err != nil {
		lg.Warn("Escrow balance check failed, proceeding", "err", err)
	} else if balance.Cmp(job.Budget()) < 0 {
		underfundedCounter.Inc(1)
		droppedCounter.Inc(1)
		lg.Warn("Dropping underfunded job", "owner", owner, "balance", balance, "budget", job.Budget())
		w.record(ctx, job, "", history.StatusDropped)
		return
	}

	actionData, err := job.ActionBytes()
	if err != nil {
		droppedCounter.Inc(1)
		lg.Error("Dropping job with malformed action data", "err", err)
		w.record(ctx, job, "", history.StatusDropped)
		return
	}

	interval := job.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	newNextRun := uint64(w.now().Unix()) + interval

	res, err := w.exec.ExecuteWorkflow(ctx, job.WorkflowID, actionData, newNextRun, owner, job.Budget())
	switch {
	case err == nil:
		if res.Receipt.Status == types.ReceiptStatusSuccessful {
			lg.Info("Execution succeeded", "tx", res.TxHash, "nextRun", newNextRun)
			w.record(ctx, job, res.TxHash.Hex(), history.StatusSuccess)
		} else {
			lg.Error("Execution reverted on chain", "tx", res.TxHash)
			w.record(ctx, job, res.TxHash.Hex(), history.StatusReverted)
		}
	case errors.Is(err, executor.ErrReceiptTimeout):
		lg.Warn("Receipt wait timed out, tx may still land", "tx", res.TxHash)
		w.record(ctx, job, res.TxHash.Hex(), history.StatusTimeout)
	case isUnderfunded(err):
		underfundedCounter.Inc(1)
		droppedCounter.Inc(1)
		lg.Warn("Execution rejected for insufficient funds", "owner", owner, "err", err)
		w.record(ctx, job, "", history.StatusDropped)
	default:
		droppedCounter.Inc(1)
		lg.Error("Execution failed", "err", err)
		w.record(ctx, job, "", history.StatusDropped)
	}
}

// isUnderfunded matches the node- and contract-side phrasings of an owner
// who cannot cover the execution fee.
func isUnderfunded(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient balance") || strings.Contains(msg, "insufficient funds")
}

func (w *Worker) record(ctx context.Context, job *workflow.Job, txHash, status string) {
	if w.records == nil {
		return
	}
	err := w.records.Record(ctx, &history.Entry{
		WorkflowID: job.WorkflowID,
		Owner:      job.Owner,
		TxHash:     txHash,
		Status:     status,
		GasBudget:  job.Budget(),
		Time:       w.now().Unix(),
	})
	if err != nil {
		w.log.Warn("History record failed", "wf", job.WorkflowID, "err", err)
	}
}
