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
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autometa-labs/autometa/workflow"
)

var owner = common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")

func timeWorkflow(active bool, nextRun uint64) *workflow.Workflow {
	return &workflow.Workflow{
		ID:          7,
		Owner:       owner,
		TriggerType: workflow.TriggerTime,
		NextRun:     nextRun,
		Interval:    3600,
		Active:      active,
		GasBudget:   new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil),
	}
}

func TestTimeTrigger(t *testing.T) {
	now := time.Unix(1700000500, 0)
	eval := NewTime()
	eval.now = func() time.Time { return now }

	cases := []struct {
		name    string
		active  bool
		nextRun uint64
		want    bool
	}{
		{"due", true, 1700000000, true},
		{"exactly now", true, 1700000500, true},
		{"future", true, 1700000501, false},
		{"inactive", false, 1700000000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ready, err := eval.Ready(context.Background(), timeWorkflow(tc.active, tc.nextRun))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ready)
		})
	}
}

// stubPrices is a canned price source.
type stubPrices struct {
	price float64
	err   error
}

func (s stubPrices) Price(context.Context, string) (float64, string, error) {
	return s.price, "stub", s.err
}

func priceWorkflow(active bool, triggerData string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:          8,
		Owner:       owner,
		TriggerType: workflow.TriggerPrice,
		TriggerData: []byte(triggerData),
		Active:      active,
	}
}

func TestPriceTrigger(t *testing.T) {
	below2000 := `{"token":"ethereum","comparator":0,"price_usd":2000.0}`

	ready, err := NewPrice(stubPrices{price: 1999.5}).Ready(context.Background(), priceWorkflow(true, below2000))
	require.NoError(t, err)
	assert.True(t, ready)

	// Strict less-than: the threshold itself does not fire.
	ready, err = NewPrice(stubPrices{price: 2000.0}).Ready(context.Background(), priceWorkflow(true, below2000))
	require.NoError(t, err)
	assert.False(t, ready)

	atMost := `{"token":"ethereum","comparator":1,"price_usd":2000.0}`
	ready, err = NewPrice(stubPrices{price: 2000.0}).Ready(context.Background(), priceWorkflow(true, atMost))
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = NewPrice(stubPrices{price: 1.0}).Ready(context.Background(), priceWorkflow(false, below2000))
	require.NoError(t, err)
	assert.False(t, ready, "inactive workflows never fire")
}

func TestPriceTriggerFetchFailureIsNotReady(t *testing.T) {
	eval := NewPrice(stubPrices{err: errors.New("oracle down")})
	ready, err := eval.Ready(context.Background(), priceWorkflow(true, `{"token":"ethereum","comparator":3,"price_usd":0}`))
	assert.Error(t, err)
	assert.False(t, ready)
}

func TestPriceTriggerMalformedData(t *testing.T) {
	ready, err := NewPrice(stubPrices{price: 1}).Ready(context.Background(), priceWorkflow(true, `{"comparator":11}`))
	assert.ErrorIs(t, err, workflow.ErrMalformedTrigger)
	assert.False(t, ready)
}

// stubChain fakes head number and log filtering.
type stubChain struct {
	head    uint64
	logs    []types.Log
	lastQ   ethereum.FilterQuery
	headErr error
	logsErr error
}

func (s *stubChain) BlockNumber(context.Context) (uint64, error) { return s.head, s.headErr }

func (s *stubChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	s.lastQ = q
	return s.logs, s.logsErr
}

func transferLog(value *big.Int, block uint64) types.Log {
	return types.Log{
		Data:        common.BigToHash(value).Bytes(),
		BlockNumber: block,
	}
}

func eventWorkflow(triggerData string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:          9,
		Owner:       owner,
		TriggerType: workflow.TriggerWalletEvent,
		TriggerData: []byte(triggerData),
		Active:      true,
	}
}

func TestWalletEventTrigger(t *testing.T) {
	td := `{"monitor":"0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa","token":"0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB","min_amount":1000}`

	chain := &stubChain{head: 5000, logs: []types.Log{transferLog(big.NewInt(1500), 4990)}}
	ready, err := NewWalletEvent(chain, 100).Ready(context.Background(), eventWorkflow(td))
	require.NoError(t, err)
	assert.True(t, ready)

	// The scan covers exactly the trailing window and filters on the
	// monitored recipient.
	assert.Equal(t, uint64(4900), chain.lastQ.FromBlock.Uint64())
	assert.Equal(t, uint64(5000), chain.lastQ.ToBlock.Uint64())
	require.Len(t, chain.lastQ.Topics, 3)
	assert.Equal(t, transferTopic, chain.lastQ.Topics[0][0])
	assert.Nil(t, chain.lastQ.Topics[1])
	assert.Equal(t, common.BytesToHash(owner.Bytes()), chain.lastQ.Topics[2][0])

	// A transfer below the minimum does not fire; one at exactly the
	// minimum does.
	chain.logs = []types.Log{transferLog(big.NewInt(999), 4991)}
	ready, err = NewWalletEvent(chain, 100).Ready(context.Background(), eventWorkflow(td))
	require.NoError(t, err)
	assert.False(t, ready)

	chain.logs = []types.Log{transferLog(big.NewInt(1000), 4992)}
	ready, err = NewWalletEvent(chain, 100).Ready(context.Background(), eventWorkflow(td))
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestWalletEventNativeNotImplemented(t *testing.T) {
	td := `{"monitor":"0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa","token":null,"min_amount":1}`
	ready, err := NewWalletEvent(&stubChain{head: 100}, 0).Ready(context.Background(), eventWorkflow(td))
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestWalletEventScanFailure(t *testing.T) {
	td := `{"monitor":"0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa","token":"0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB","min_amount":1}`
	chain := &stubChain{head: 100, logsErr: errors.New("rpc timeout")}
	ready, err := NewWalletEvent(chain, 0).Ready(context.Background(), eventWorkflow(td))
	assert.Error(t, err)
	assert.False(t, ready)
}

func TestWalletEventShortChainClampsWindow(t *testing.T) {
	td := `{"monitor":"0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa","token":"0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB","min_amount":1}`
	chain := &stubChain{head: 40}
	_, err := NewWalletEvent(chain, 100).Ready(context.Background(), eventWorkflow(td))
	require.NoError(t, err)
	assert.Zero(t, chain.lastQ.FromBlock.Uint64())
}
