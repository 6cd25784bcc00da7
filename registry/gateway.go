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

// Package registry provides read-only access to the on-chain workflow catalog
// and the fee escrow. All calls are plain eth_call views; any network or
// decode failure is returned to the caller, never fatal.
package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/autometa-labs/autometa/workflow"
)

// workflowRegistryABI covers the view surface of the WorkflowRegistry
// contract consumed by the engine.
const workflowRegistryABI = `[
	{"inputs":[],"name":"totalWorkflows","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"workflowId","type":"uint256"}],"name":"getWorkflow","outputs":[{"components":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint8","name":"triggerType","type":"uint8"},{"internalType":"bytes","name":"triggerData","type":"bytes"},{"internalType":"uint8","name":"actionType","type":"uint8"},{"internalType":"bytes","name":"actionData","type":"bytes"},{"internalType":"uint256","name":"nextRun","type":"uint256"},{"internalType":"uint256","name":"interval","type":"uint256"},{"internalType":"bool","name":"active","type":"bool"},{"internalType":"uint256","name":"gasBudget","type":"uint256"}],"internalType":"struct WorkflowRegistry.Workflow","name":"","type":"tuple"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"owner","type":"address"}],"name":"getWorkflowsByOwner","outputs":[{"internalType":"uint256[]","name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the slice of the ethclient surface the gateway needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Gateway is a stateless view caller for the WorkflowRegistry contract.
type Gateway struct {
	caller ContractCaller
	addr   common.Address
	abi    abi.ABI
	log    log.Logger
}

// registryWorkflow mirrors the registry's Workflow tuple for ABI unpacking.
type registryWorkflow struct {
	Owner       common.Address
	TriggerType uint8
	TriggerData []byte
	ActionType  uint8
	ActionData  []byte
	NextRun     *big.Int
	Interval    *big.Int
	Active      bool
	GasBudget   *big.Int
}

// NewGateway creates a registry gateway bound to the given contract address.
func NewGateway(caller ContractCaller, addr common.Address) (*Gateway, error) {
	parsed, err := abi.JSON(strings.NewReader(workflowRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &Gateway{
		caller: caller,
		addr:   addr,
		abi:    parsed,
		log:    log.New("registry", addr),
	}, nil
}

// Address returns the bound registry contract address.
func (g *Gateway) Address() common.Address { return g.addr }

func (g *Gateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	ret, err := g.caller.CallContract(ctx, ethereum.CallMsg{To: &g.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := g.abi.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// TotalWorkflows returns the number of registered workflows. Ids are dense
// starting at 1, so the result doubles as the highest valid id.
func (g *Gateway) TotalWorkflows(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, "totalWorkflows")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// GetWorkflow fetches the snapshot of a single workflow.
func (g *Gateway) GetWorkflow(ctx context.Context, id uint64) (*workflow.Workflow, error) {
	out, err := g.call(ctx, "getWorkflow", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new(registryWorkflow)).(*registryWorkflow)
	return &workflow.Workflow{
		ID:          id,
		Owner:       raw.Owner,
		TriggerType: workflow.TriggerType(raw.TriggerType),
		TriggerData: raw.TriggerData,
		ActionType:  workflow.ActionType(raw.ActionType),
		ActionData:  raw.ActionData,
		NextRun:     raw.NextRun.Uint64(),
		Interval:    raw.Interval.Uint64(),
		Active:      raw.Active,
		GasBudget:   raw.GasBudget,
	}, nil
}

// GetWorkflowsByOwner lists the workflow ids registered by an owner.
func (g *Gateway) GetWorkflowsByOwner(ctx context.Context, owner common.Address) ([]uint64, error) {
	out, err := g.call(ctx, "getWorkflowsByOwner", owner)
	if err != nil {
		return nil, err
	}
	raw := out[0].([]*big.Int)
	ids := make([]uint64, len(raw))
	for i, id := range raw {
		ids[i] = id.Uint64()
	}
	return ids, nil
}
