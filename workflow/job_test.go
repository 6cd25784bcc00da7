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

package workflow

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobJSONRoundTrip(t *testing.T) {
	wf := &Workflow{
		ID:          7,
		Owner:       testOwner,
		TriggerType: TriggerTime,
		ActionType:  ActionNativeTransfer,
		ActionData:  []byte{0x01, 0xab, 0xcd, 0x00, 0xef},
		NextRun:     1700000000,
		Interval:    3600,
		Active:      true,
		GasBudget:   new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil),
	}
	job := NewJob(wf)
	assert.Equal(t, 0, job.RetryCount)

	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, *job, decoded)

	// Action bytes must survive the hex round trip bit for bit.
	back, err := decoded.ActionBytes()
	require.NoError(t, err)
	assert.Equal(t, wf.ActionData, back)

	owner, err := decoded.OwnerAddress()
	require.NoError(t, err)
	assert.Equal(t, testOwner, owner)
}

func TestJobWireFieldNames(t *testing.T) {
	raw, err := json.Marshal(NewJob(&Workflow{GasBudget: big.NewInt(1)}))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, name := range []string{
		"workflowId", "owner", "triggerType", "actionType",
		"actionData", "nextRun", "gasBudget", "interval", "retryCount",
	} {
		assert.Contains(t, fields, name)
	}
}

func TestJobActionBytesEmpty(t *testing.T) {
	for _, raw := range []string{"", "0x"} {
		job := &Job{ActionData: raw}
		data, err := job.ActionBytes()
		require.NoError(t, err)
		assert.Empty(t, data)
	}

	// Bare hex without the 0x prefix is accepted too.
	job := &Job{ActionData: "abcd"}
	data, err := job.ActionBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, data)

	_, err = (&Job{ActionData: "0xzz"}).ActionBytes()
	assert.Error(t, err)
}

func TestJobBudgetDefaultsToZero(t *testing.T) {
	var job Job
	require.NoError(t, json.Unmarshal([]byte(`{"workflowId":1,"owner":"0x1111111111111111111111111111111111111111"}`), &job))
	assert.Zero(t, job.Budget().Sign())
}
