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

// Package triggers implements the readiness predicates evaluated by the
// scheduler. Evaluators are pure decision functions over a workflow snapshot
// plus whatever external state their trigger kind needs; they never mutate
// anything and a failed external lookup always reads as not-ready.
package triggers

import (
	"context"
	"time"

	"github.com/autometa-labs/autometa/workflow"
)

// Evaluator decides whether a workflow's trigger condition currently holds.
// Inactive workflows are never ready regardless of the trigger kind.
type Evaluator interface {
	Ready(ctx context.Context, wf *workflow.Workflow) (bool, error)
}

// Time is the wall-clock evaluator: ready once now has reached nextRun.
type Time struct {
	now func() time.Time
}

// NewTime creates the time trigger evaluator.
func NewTime() *Time {
	return &Time{now: time.Now}
}

// Ready reports whether the workflow's schedule has come due. Equality
// counts: a workflow with nextRun == now is ready.
func (t *Time) Ready(_ context.Context, wf *workflow.Workflow) (bool, error) {
	if !wf.Active {
		return false, nil
	}
	return t.now().Unix() >= int64(wf.NextRun), nil
}
