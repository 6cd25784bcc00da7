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

// Package queue is the durable FIFO handoff between the scheduler and the
// job worker: a Redis list holding one JSON job per element, pushed at the
// tail and popped at the head. It tolerates multiple producers and
// consumers, though the system deploys one of each.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/redis/go-redis/v9"

	"github.com/autometa-labs/autometa/workflow"
)

// DefaultKey is the Redis list the jobs live under.
const DefaultKey = "workflow_jobs"

// DefaultPopTimeout is the blocking pop wait used by the worker loop.
const DefaultPopTimeout = 5 * time.Second

// ErrEmpty is returned by Pop when no job arrived within the timeout.
var ErrEmpty = errors.New("queue: no job available")

var depthGauge = metrics.NewRegisteredGauge("queue/depth", nil)

// JobQueue is a Redis-backed FIFO of execution jobs.
type JobQueue struct {
	rdb *redis.Client
	key string
	log log.Logger
}

// New connects to Redis and verifies the connection. An unreachable broker
// at startup is a configuration fault the caller should treat as fatal.
func New(ctx context.Context, redisURL string) (*JobQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	q := &JobQueue{
		rdb: redis.NewClient(opt),
		key: DefaultKey,
		log: log.New("module", "queue"),
	}
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	q.log.Info("Job queue connected", "url", redisURL, "key", q.key)
	return q, nil
}

// NewWithClient wraps an existing Redis client, mainly for tests.
func NewWithClient(rdb *redis.Client) *JobQueue {
	return &JobQueue{rdb: rdb, key: DefaultKey, log: log.New("module", "queue")}
}

// Push appends a job at the queue tail.
func (q *JobQueue) Push(ctx context.Context, job *workflow.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.log.Debug("Enqueued job", "wf", job.WorkflowID)
	return nil
}

// Pop removes and returns the job at the queue head, blocking up to timeout.
// ErrEmpty signals an idle queue, not a failure.
func (q *JobQueue) Pop(ctx context.Context, timeout time.Duration) (*workflow.Job, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("blpop: %w", err)
	}
	// BLPop returns [key, value].
	var job workflow.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	q.log.Debug("Dequeued job", "wf", job.WorkflowID)
	return &job, nil
}

// Peek returns the head job without removing it, or ErrEmpty.
func (q *JobQueue) Peek(ctx context.Context) (*workflow.Job, error) {
	res, err := q.rdb.LIndex(ctx, q.key, 0).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("lindex: %w", err)
	}
	var job workflow.Job
	if err := json.Unmarshal([]byte(res), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Len returns the current queue depth.
func (q *JobQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen: %w", err)
	}
	depthGauge.Update(n)
	return n, nil
}

// Clear drops every queued job and returns how many were removed.
func (q *JobQueue) Clear(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen: %w", err)
	}
	if err := q.rdb.Del(ctx, q.key).Err(); err != nil {
		return 0, fmt.Errorf("del: %w", err)
	}
	if n > 0 {
		q.log.Warn("Queue cleared", "removed", n)
	}
	return n, nil
}

// Client exposes the underlying Redis client so collocated stores can share
// the connection.
func (q *JobQueue) Client() *redis.Client {
	return q.rdb
}

// Close releases the underlying Redis connection.
func (q *JobQueue) Close() error {
	return q.rdb.Close()
}
