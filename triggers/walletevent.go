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

package triggers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/autometa-labs/autometa/workflow"
)

// DefaultScanWindow is how many trailing blocks a wallet-event trigger scans
// when no window is configured.
const DefaultScanWindow = 100

// transferTopic is the ERC-20 Transfer(address,address,uint256) event
// signature hash.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// LogFilterer is the slice of the ethclient surface the evaluator needs.
type LogFilterer interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// WalletEvent evaluates wallet-event triggers by scanning recent ERC-20
// Transfer logs addressed to the monitored account. Native transfer
// detection would need per-block receipt scans and is not implemented: a
// trigger without a token address always reads not-ready.
type WalletEvent struct {
	chain  LogFilterer
	window uint64
	log    log.Logger
}

// NewWalletEvent creates the wallet-event evaluator scanning the last window
// blocks (DefaultScanWindow when zero).
func NewWalletEvent(chain LogFilterer, window uint64) *WalletEvent {
	if window == 0 {
		window = DefaultScanWindow
	}
	return &WalletEvent{chain: chain, window: window, log: log.New("trigger", "wallet-event")}
}

// Ready reports whether the monitored account received a qualifying transfer
// within the scan window.
func (w *WalletEvent) Ready(ctx context.Context, wf *workflow.Workflow) (bool, error) {
	if !wf.Active {
		return false, nil
	}
	td, err := workflow.DecodeTriggerData(wf.TriggerType, wf.TriggerData, wf.Owner)
	if err != nil {
		return false, err
	}
	et, ok := td.(workflow.WalletEventTriggerData)
	if !ok {
		return false, fmt.Errorf("workflow %d: trigger data is not a wallet-event record", wf.ID)
	}
	if et.Token == nil {
		// Known gap: native transfer detection is unimplemented.
		w.log.Debug("Native transfer monitoring not supported", "wf", wf.ID)
		return false, nil
	}
	if et.EventType != workflow.EventTransferIn {
		w.log.Debug("Unsupported wallet event type", "wf", wf.ID, "type", et.EventType)
		return false, nil
	}

	head, err := w.chain.BlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("workflow %d: block number: %w", wf.ID, err)
	}
	from := uint64(0)
	if head > w.window {
		from = head - w.window
	}
	logs, err := w.chain.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{*et.Token},
		Topics: [][]common.Hash{
			{transferTopic},
			nil, // any sender
			{common.BytesToHash(et.Monitor.Bytes())},
		},
	})
	if err != nil {
		return false, fmt.Errorf("workflow %d: log scan: %w", wf.ID, err)
	}
	for _, lg := range logs {
		if len(lg.Data) < 32 {
			continue
		}
		value := new(big.Int).SetBytes(lg.Data[:32])
		if value.Cmp(et.MinAmount) >= 0 {
			w.log.Info("Qualifying transfer observed", "wf", wf.ID, "token", et.Token, "value", value, "block", lg.BlockNumber)
			return true, nil
		}
	}
	return false, nil
}
