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
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Job is the queue payload handed from the scheduler to the worker. Field
// names are part of the wire format and must not change. Action bytes travel
// hex encoded so the payload stays valid UTF-8 JSON.
type Job struct {
	WorkflowID  uint64      `json:"workflowId"`
	Owner       string      `json:"owner"`
	TriggerType TriggerType `json:"triggerType"`
	ActionType  ActionType  `json:"actionType"`
	ActionData  string      `json:"actionData"`
	NextRun     uint64      `json:"nextRun"`
	GasBudget   *big.Int    `json:"gasBudget"`
	Interval    uint64      `json:"interval"`
	RetryCount  int         `json:"retryCount"`
}

// NewJob converts a ready workflow snapshot into its queue payload.
func NewJob(wf *Workflow) *Job {
	gasBudget := new(big.Int)
	if wf.GasBudget != nil {
		gasBudget.Set(wf.GasBudget)
	}
	return &Job{
		WorkflowID:  wf.ID,
		Owner:       wf.Owner.Hex(),
		TriggerType: wf.TriggerType,
		ActionType:  wf.ActionType,
		ActionData:  hexutil.Encode(wf.ActionData),
		NextRun:     wf.NextRun,
		GasBudget:   gasBudget,
		Interval:    wf.Interval,
		RetryCount:  0,
	}
}

// OwnerAddress parses the owner field into an address.
func (j *Job) OwnerAddress() (common.Address, error) {
	if !common.IsHexAddress(j.Owner) {
		return common.Address{}, fmt.Errorf("invalid owner address %q", j.Owner)
	}
	return common.HexToAddress(j.Owner), nil
}

// ActionBytes decodes the hex action payload. The 0x prefix is optional and
// both "" and "0x" decode to an empty byte string.
func (j *Job) ActionBytes() ([]byte, error) {
	raw := strings.TrimPrefix(j.ActionData, "0x")
	if raw == "" {
		return []byte{}, nil
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid action data hex: %w", err)
	}
	return data, nil
}

// Budget returns the gas budget, treating a missing field as zero.
func (j *Job) Budget() *big.Int {
	if j.GasBudget == nil {
		return new(big.Int)
	}
	return j.GasBudget
}
