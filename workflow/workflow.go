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

// Package workflow defines the data model shared by the scheduler and the job
// worker: on-chain workflow snapshots, queue job payloads and the wire codecs
// for trigger and action parameters.
package workflow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TriggerType enumerates the trigger predicates a workflow can be registered
// with. Values match the on-chain registry encoding.
type TriggerType uint8

const (
	TriggerTime        TriggerType = 1
	TriggerPrice       TriggerType = 2
	TriggerWalletEvent TriggerType = 3
)

// String implements fmt.Stringer.
func (t TriggerType) String() string {
	switch t {
	case TriggerTime:
		return "time"
	case TriggerPrice:
		return "price"
	case TriggerWalletEvent:
		return "wallet-event"
	default:
		return "unknown"
	}
}

// ActionType enumerates the on-chain effects the executor contract can
// interpret. Values match the on-chain registry encoding.
type ActionType uint8

const (
	ActionNativeTransfer ActionType = 1
	ActionERC20Transfer  ActionType = 2
	ActionContractCall   ActionType = 3
)

// String implements fmt.Stringer.
func (a ActionType) String() string {
	switch a {
	case ActionNativeTransfer:
		return "native-transfer"
	case ActionERC20Transfer:
		return "erc20-transfer"
	case ActionContractCall:
		return "contract-call"
	default:
		return "unknown"
	}
}

// Workflow is a read-only snapshot of a registered workflow as returned by the
// WorkflowRegistry contract. The authoritative copy lives on-chain; the
// off-chain engine never mutates one.
type Workflow struct {
	ID          uint64
	Owner       common.Address
	TriggerType TriggerType
	TriggerData []byte
	ActionType  ActionType
	ActionData  []byte
	NextRun     uint64 // unix seconds
	Interval    uint64 // reschedule delta in seconds
	Active      bool
	GasBudget   *big.Int // wei, max debit per execution
}
