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

func TestActionRoundTrips(t *testing.T) {
	var (
		recipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
		token     = common.HexToAddress("0x3333333333333333333333333333333333333333")
		target    = common.HexToAddress("0x4444444444444444444444444444444444444444")
		amount    = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	)

	data, err := EncodeNativeTransfer(recipient, amount)
	require.NoError(t, err)
	assert.Equal(t, byte(ActionNativeTransfer), data[0])
	typ, action, err := DecodeAction(data)
	require.NoError(t, err)
	assert.Equal(t, ActionNativeTransfer, typ)
	assert.Equal(t, NativeTransferAction{Recipient: recipient, Amount: amount}, action)

	data, err = EncodeERC20Transfer(token, recipient, big.NewInt(1000))
	require.NoError(t, err)
	typ, action, err = DecodeAction(data)
	require.NoError(t, err)
	assert.Equal(t, ActionERC20Transfer, typ)
	assert.Equal(t, ERC20TransferAction{Token: token, Recipient: recipient, Amount: big.NewInt(1000)}, action)

	calldata := []byte{0xde, 0xad, 0xbe, 0xef}
	data, err = EncodeContractCall(target, big.NewInt(7), calldata)
	require.NoError(t, err)
	typ, action, err = DecodeAction(data)
	require.NoError(t, err)
	assert.Equal(t, ActionContractCall, typ)
	assert.Equal(t, ContractCallAction{Target: target, Value: big.NewInt(7), CallData: calldata}, action)
}

func TestDecodeActionMalformed(t *testing.T) {
	_, _, err := DecodeAction(nil)
	assert.ErrorIs(t, err, ErrMalformedAction)

	_, _, err = DecodeAction([]byte{byte(ActionNativeTransfer), 0x01})
	assert.ErrorIs(t, err, ErrMalformedAction)

	_, _, err = DecodeAction([]byte{0xff})
	assert.ErrorIs(t, err, ErrMalformedAction)
}
