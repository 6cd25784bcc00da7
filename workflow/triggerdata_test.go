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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOwner = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestTimeTriggerRoundTrip(t *testing.T) {
	data, err := EncodeTimeTrigger(3600)
	require.NoError(t, err)

	decoded, err := DecodeTriggerData(TriggerTime, data, testOwner)
	require.NoError(t, err)
	assert.Equal(t, TimeTriggerData{Interval: 3600}, decoded)
}

func TestPriceTriggerRoundTrip(t *testing.T) {
	data, err := EncodePriceTrigger("eth", 2000, DirectionBelow)
	require.NoError(t, err)

	decoded, err := DecodeTriggerData(TriggerPrice, data, testOwner)
	require.NoError(t, err)

	td, ok := decoded.(PriceTriggerData)
	require.True(t, ok)
	assert.Equal(t, "eth", td.Token)
	assert.Equal(t, CmpLT, td.Comparator)
	assert.Equal(t, 2000.0, td.ThresholdUSD)

	// Direction 0 (above) maps to the strict greater-than comparator.
	data, err = EncodePriceTrigger("btc", 45000, DirectionAbove)
	require.NoError(t, err)
	decoded, err = DecodeTriggerData(TriggerPrice, data, testOwner)
	require.NoError(t, err)
	assert.Equal(t, CmpGT, decoded.(PriceTriggerData).Comparator)
}

func TestWalletEventTriggerRoundTrip(t *testing.T) {
	token := common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	data, err := EncodeWalletEventTrigger(token, EventTransferIn)
	require.NoError(t, err)

	decoded, err := DecodeTriggerData(TriggerWalletEvent, data, testOwner)
	require.NoError(t, err)

	td, ok := decoded.(WalletEventTriggerData)
	require.True(t, ok)
	assert.Equal(t, testOwner, td.Monitor, "ABI form monitors the workflow owner")
	require.NotNil(t, td.Token)
	assert.Equal(t, token, *td.Token)
	assert.Equal(t, EventTransferIn, td.EventType)
	assert.Zero(t, td.MinAmount.Sign())
}

func TestWalletEventTriggerZeroTokenIsNative(t *testing.T) {
	data, err := EncodeWalletEventTrigger(common.Address{}, EventTransferIn)
	require.NoError(t, err)

	decoded, err := DecodeTriggerData(TriggerWalletEvent, data, testOwner)
	require.NoError(t, err)
	assert.Nil(t, decoded.(WalletEventTriggerData).Token)
}

func TestTriggerJSONForms(t *testing.T) {
	decoded, err := DecodeTriggerData(TriggerPrice, []byte(`{"token":"ethereum","comparator":0,"price_usd":2000.0}`), testOwner)
	require.NoError(t, err)
	assert.Equal(t, PriceTriggerData{Token: "ethereum", Comparator: CmpLT, ThresholdUSD: 2000}, decoded)

	decoded, err = DecodeTriggerData(TriggerWalletEvent,
		[]byte(`{"monitor":"0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa","token":"0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB","min_amount":1000}`), testOwner)
	require.NoError(t, err)
	td := decoded.(WalletEventTriggerData)
	assert.Equal(t, common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa"), td.Monitor)
	require.NotNil(t, td.Token)
	assert.Equal(t, big.NewInt(1000), td.MinAmount)

	decoded, err = DecodeTriggerData(TriggerWalletEvent, []byte(`{"monitor":"0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa","token":null,"min_amount":5}`), testOwner)
	require.NoError(t, err)
	assert.Nil(t, decoded.(WalletEventTriggerData).Token)

	decoded, err = DecodeTriggerData(TriggerTime, []byte(`{"interval":600}`), testOwner)
	require.NoError(t, err)
	assert.Equal(t, TimeTriggerData{Interval: 600}, decoded)
}

func TestTriggerJSONEncodeDecode(t *testing.T) {
	token := common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	cases := []struct {
		typ TriggerType
		td  TriggerData
	}{
		{TriggerTime, TimeTriggerData{Interval: 60}},
		{TriggerPrice, PriceTriggerData{Token: "dot", Comparator: CmpGE, ThresholdUSD: 7.25}},
		{TriggerWalletEvent, WalletEventTriggerData{Monitor: testOwner, Token: &token, MinAmount: big.NewInt(42), EventType: EventTransferIn}},
	}
	for _, tc := range cases {
		raw, err := EncodeTriggerJSON(tc.td)
		require.NoError(t, err)
		decoded, err := DecodeTriggerData(tc.typ, raw, testOwner)
		require.NoError(t, err)
		assert.Equal(t, tc.td, decoded)
	}
}

func TestDecodeTriggerMalformed(t *testing.T) {
	_, err := DecodeTriggerData(TriggerPrice, []byte{0x01, 0x02}, testOwner)
	assert.ErrorIs(t, err, ErrMalformedTrigger)

	_, err = DecodeTriggerData(TriggerPrice, []byte(`{"comparator":9}`), testOwner)
	assert.ErrorIs(t, err, ErrMalformedTrigger)

	_, err = DecodeTriggerData(TriggerType(9), []byte(`{}`), testOwner)
	assert.ErrorIs(t, err, ErrMalformedTrigger)
}

func TestComparatorTable(t *testing.T) {
	cases := []struct {
		cmp  Comparator
		a, b float64
		want bool
	}{
		{CmpLT, 1999.5, 2000, true},
		{CmpLT, 2000, 2000, false},
		{CmpLE, 2000, 2000, true},
		{CmpGT, 2000, 2000, false},
		{CmpGT, 2000.5, 2000, true},
		{CmpGE, 2000, 2000, true},
		{CmpGE, 1999.9, 2000, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.cmp.Compare(tc.a, tc.b), "%v %v vs %v", tc.cmp, tc.a, tc.b)
	}
	assert.False(t, Comparator(7).Compare(1, 1), "unknown comparator never fires")
}
