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

// Package executor builds, signs and submits the on-chain execution
// transactions that invoke the ActionExecutor contract. It is single-writer:
// exactly one worker loop drives one signer, so reading the pending nonce
// fresh per transaction is race free. Running two workers against the same
// key would race on nonces and is forbidden by design.
package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/params"
)

const actionExecutorABI = `[
	{"inputs":[{"internalType":"uint256","name":"workflowId","type":"uint256"},{"internalType":"bytes","name":"actionData","type":"bytes"},{"internalType":"uint256","name":"newNextRun","type":"uint256"},{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"gasToCharge","type":"uint256"}],"name":"executeWorkflow","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"workflowId","type":"uint256"},{"indexed":false,"internalType":"address","name":"user","type":"address"},{"indexed":false,"internalType":"bool","name":"success","type":"bool"}],"name":"WorkflowExecuted","type":"event"}
]`

const (
	// Receipt polling cadence and overall wait budget per execution.
	receiptPollInterval   = 2 * time.Second
	DefaultReceiptTimeout = 120 * time.Second

	// Gas limit policy: estimate with a 20% safety buffer, fall back to a
	// fixed limit when estimation fails.
	gasBufferNum     = 12
	gasBufferDenom   = 10
	fallbackGasLimit = 500_000
)

// maxPriorityFee is the constant 2 gwei tip attached to every execution tx.
var maxPriorityFee = new(big.Int).Mul(big.NewInt(2), big.NewInt(params.GWei))

// ErrReceiptTimeout is returned when a submitted transaction produced no
// receipt within the wait budget. The transaction hash in the result is
// still valid; the tx may land later.
var ErrReceiptTimeout = errors.New("executor: timed out waiting for receipt")

var (
	submitCounter  = metrics.NewRegisteredCounter("executor/submitted", nil)
	successCounter = metrics.NewRegisteredCounter("executor/success", nil)
	revertCounter  = metrics.NewRegisteredCounter("executor/reverted", nil)
	timeoutCounter = metrics.NewRegisteredCounter("executor/timeout", nil)
)

// ChainBackend is the slice of the ethclient surface the signer needs.
type ChainBackend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Result is the terminal outcome of one execution attempt.
type Result struct {
	TxHash  common.Hash
	Receipt *types.Receipt // nil when the receipt wait timed out
}

// Signer submits executeWorkflow transactions with the worker's key.
type Signer struct {
	backend  ChainBackend
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int

	receiptTimeout time.Duration
	log            log.Logger
}

// NewSigner creates a signer for the ActionExecutor at contract, signing
// with the hex-encoded private key.
func NewSigner(backend ChainBackend, contract common.Address, keyHex string, chainID uint64) (*Signer, error) {
	if keyHex == "" {
		return nil, errors.New("executor: missing worker private key")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("executor: invalid worker private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(actionExecutorABI))
	if err != nil {
		return nil, fmt.Errorf("executor: parse abi: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	return &Signer{
		backend:        backend,
		contract:       contract,
		abi:            parsed,
		key:            key,
		from:           from,
		chainID:        new(big.Int).SetUint64(chainID),
		receiptTimeout: DefaultReceiptTimeout,
		log:            log.New("module", "executor", "worker", from),
	}, nil
}

// From returns the worker account address derived from the signing key.
func (s *Signer) From() common.Address { return s.from }

// ExecuteWorkflow builds, signs and submits one executeWorkflow call and
// waits for its receipt. The receipt in the result carries status 1 for
// success and 0 for a revert; both are terminal for the caller. On a receipt
// timeout the result holds the tx hash and the error is ErrReceiptTimeout.
func (s *Signer) ExecuteWorkflow(ctx context.Context, id uint64, actionData []byte, newNextRun uint64, user common.Address, gasToCharge *big.Int) (*Result, error) {
	data, err := s.abi.Pack("executeWorkflow",
		new(big.Int).SetUint64(id), actionData, new(big.Int).SetUint64(newNextRun), user, gasToCharge)
	if err != nil {
		return nil, fmt.Errorf("pack executeWorkflow: %w", err)
	}
	tx, err := s.buildTx(ctx, data)
	if err != nil {
		return nil, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	submitCounter.Inc(1)
	s.log.Info("Submitted execution", "wf", id, "tx", signed.Hash(), "nonce", signed.Nonce(), "gas", signed.Gas())

	return s.waitReceipt(ctx, id, signed.Hash())
}

// buildTx assembles the unsigned EIP-1559 transaction: tip 2 gwei, fee cap
// 2x the latest base fee plus the tip, fresh pending nonce, buffered gas
// estimate.
func (s *Signer) buildTx(ctx context.Context, data []byte) (*types.Transaction, error) {
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), maxPriorityFee)

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gas := uint64(fallbackGasLimit)
	estimate, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      s.from,
		To:        &s.contract,
		GasFeeCap: feeCap,
		GasTipCap: maxPriorityFee,
		Data:      data,
	})
	if err != nil {
		s.log.Warn("Gas estimation failed, using fallback limit", "fallback", fallbackGasLimit, "err", err)
	} else {
		gas = estimate * gasBufferNum / gasBufferDenom
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: maxPriorityFee,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &s.contract,
		Data:      data,
	}), nil
}

// waitReceipt polls for the receipt until it arrives or the wait budget is
// spent.
func (s *Signer) waitReceipt(ctx context.Context, id uint64, txHash common.Hash) (*Result, error) {
	deadline := time.Now().Add(s.receiptTimeout)
	for {
		receipt, err := s.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				successCounter.Inc(1)
				s.log.Info("Execution confirmed", "wf", id, "tx", txHash, "block", receipt.BlockNumber)
			} else {
				revertCounter.Inc(1)
				s.log.Error("Execution reverted", "wf", id, "tx", txHash, "block", receipt.BlockNumber)
			}
			return &Result{TxHash: txHash, Receipt: receipt}, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.log.Debug("Receipt poll failed", "tx", txHash, "err", err)
		}
		if time.Now().After(deadline) {
			timeoutCounter.Inc(1)
			return &Result{TxHash: txHash}, ErrReceiptTimeout
		}
		select {
		case <-ctx.Done():
			return &Result{TxHash: txHash}, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}
