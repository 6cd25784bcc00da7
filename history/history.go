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

// Package history keeps the append-only record of execution attempts in
// Redis. Entries are keyed by transaction hash with a per-workflow index
// list, so both "what happened to tx X" and "show workflow Y's runs" are one
// lookup. The store is best effort: losing it costs observability, not
// correctness, since the chain itself holds the authoritative outcome.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
)

// Terminal statuses recorded per execution attempt.
const (
	StatusSuccess  = "success"
	StatusReverted = "reverted"
	StatusTimeout  = "timeout"
	StatusDropped  = "dropped"
)

// ErrNotFound is returned when no entry exists for the requested key.
var ErrNotFound = errors.New("history: no such entry")

const (
	entryKeyPrefix = "execution:"
	indexKeyPrefix = "workflow_history:"
)

// Entry is one recorded execution attempt. Dropped jobs carry no tx hash.
type Entry struct {
	WorkflowID uint64   `json:"workflowId"`
	Owner      string   `json:"owner"`
	TxHash     string   `json:"txHash,omitempty"`
	Status     string   `json:"status"`
	GasBudget  *big.Int `json:"gasBudget"`
	Time       int64    `json:"time"`
}

// Store is the Redis-backed execution record store.
type Store struct {
	rdb *redis.Client
	log log.Logger
}

// NewStore wraps an existing Redis client. The worker shares the queue's
// connection options, so there is no separate dial here.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, log: log.New("module", "history")}
}

// Record appends an entry and indexes it under its workflow. Entries without
// a tx hash (dropped before submission) live only in the workflow index.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if e.TxHash != "" {
		if err := s.rdb.Set(ctx, entryKeyPrefix+strings.ToLower(e.TxHash), payload, 0).Err(); err != nil {
			return fmt.Errorf("set entry: %w", err)
		}
	}
	indexKey := fmt.Sprintf("%s%d", indexKeyPrefix, e.WorkflowID)
	if err := s.rdb.RPush(ctx, indexKey, payload).Err(); err != nil {
		return fmt.Errorf("index entry: %w", err)
	}
	s.log.Debug("Recorded execution", "wf", e.WorkflowID, "status", e.Status, "tx", e.TxHash)
	return nil
}

// ByTxHash looks up the entry for a submitted transaction.
func (s *Store) ByTxHash(ctx context.Context, txHash common.Hash) (*Entry, error) {
	raw, err := s.rdb.Get(ctx, entryKeyPrefix+strings.ToLower(txHash.Hex())).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &e, nil
}

// ByWorkflow returns every recorded attempt for a workflow, oldest first.
func (s *Store) ByWorkflow(ctx context.Context, id uint64) ([]*Entry, error) {
	raws, err := s.rdb.LRange(ctx, fmt.Sprintf("%s%d", indexKeyPrefix, id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange index: %w", err)
	}
	entries := make([]*Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// workflowExecutedABI is the event emitted by the ActionExecutor once per
// execution, successful or not.
const workflowExecutedABI = `[
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"workflowId","type":"uint256"},{"indexed":false,"internalType":"address","name":"user","type":"address"},{"indexed":false,"internalType":"bool","name":"success","type":"bool"}],"name":"WorkflowExecuted","type":"event"}
]`

// ExecutedEvent is the decoded WorkflowExecuted payload.
type ExecutedEvent struct {
	WorkflowID *big.Int
	User       common.Address
	Success    bool
}

var executedEventABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(workflowExecutedABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ParseExecutedLog extracts the WorkflowExecuted event from a receipt. The
// event's success flag distinguishes an action that reverted inside the
// executor's try/catch from one that went through, which the receipt status
// alone cannot.
func ParseExecutedLog(receipt *types.Receipt) (*ExecutedEvent, error) {
	ev := executedEventABI.Events["WorkflowExecuted"]
	for _, lg := range receipt.Logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		out, err := ev.Inputs.Unpack(lg.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack WorkflowExecuted: %w", err)
		}
		return &ExecutedEvent{
			WorkflowID: out[0].(*big.Int),
			User:       out[1].(common.Address),
			Success:    out[2].(bool),
		}, nil
	}
	return nil, errors.New("history: no WorkflowExecuted event in receipt")
}
