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

package history

import (
	"context"
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	srv := miniredis.RunT(t)
	return NewStore(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
}

func entry(wf uint64, txHash, status string) *Entry {
	return &Entry{
		WorkflowID: wf,
		Owner:      "0x1111111111111111111111111111111111111111",
		TxHash:     txHash,
		Status:     status,
		GasBudget:  big.NewInt(1e15),
		Time:       1700000000,
	}
}

func TestStoreRecordAndLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	txHash := common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000001")
	want := entry(7, txHash.Hex(), StatusSuccess)
	require.NoError(t, s.Record(ctx, want))

	got, err := s.ByTxHash(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, want.WorkflowID, got.WorkflowID)
	assert.Equal(t, want.Status, got.Status)
	assert.Zero(t, want.GasBudget.Cmp(got.GasBudget))
}

func TestStoreWorkflowIndexOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, entry(7, "0x01", StatusSuccess)))
	require.NoError(t, s.Record(ctx, entry(7, "0x02", StatusReverted)))
	require.NoError(t, s.Record(ctx, entry(8, "0x03", StatusSuccess)))

	got, err := s.ByWorkflow(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, StatusSuccess, got[0].Status, "oldest first")
	assert.Equal(t, StatusReverted, got[1].Status)

	other, err := s.ByWorkflow(ctx, 8)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestStoreDroppedEntryHasNoHashKey(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	dropped := entry(9, "", StatusDropped)
	require.NoError(t, s.Record(ctx, dropped))

	got, err := s.ByWorkflow(ctx, 9)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusDropped, got[0].Status)
	assert.Empty(t, got[0].TxHash)
}

func TestStoreMissingEntry(t *testing.T) {
	s := testStore(t)
	_, err := s.ByTxHash(context.Background(), common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseExecutedLog(t *testing.T) {
	ev := executedEventABI.Events["WorkflowExecuted"]
	user := common.HexToAddress("0x2222222222222222222222222222222222222222")
	data, err := ev.Inputs.Pack(big.NewInt(7), user, true)
	require.NoError(t, err)

	receipt := &types.Receipt{Logs: []*types.Log{
		{Topics: []common.Hash{common.HexToHash("0x01")}}, // unrelated event
		{Topics: []common.Hash{ev.ID}, Data: data},
	}}
	got, err := ParseExecutedLog(receipt)
	require.NoError(t, err)
	assert.Zero(t, got.WorkflowID.Cmp(big.NewInt(7)))
	assert.Equal(t, user, got.User)
	assert.True(t, got.Success)
}

func TestParseExecutedLogAbsent(t *testing.T) {
	_, err := ParseExecutedLog(&types.Receipt{})
	assert.Error(t, err)
}
