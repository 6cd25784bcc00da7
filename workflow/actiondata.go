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
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Actions are carried as a single type tag byte followed by the ABI encoding
// of the action parameters. The off-chain engine passes action bytes through
// to the executor contract untouched; the codec here exists for transaction
// building facades and for tests.

var ErrMalformedAction = errors.New("workflow: malformed action data")

var (
	nativeTransferArgs = abi.Arguments{{Type: addressType}, {Type: uint256Type}}
	erc20TransferArgs  = abi.Arguments{{Type: addressType}, {Type: addressType}, {Type: uint256Type}}
	contractCallArgs   = abi.Arguments{{Type: addressType}, {Type: uint256Type}, {Type: bytesType}}
)

// Action is the tagged variant decoded from a workflow's action bytes.
type Action interface {
	isAction()
}

// NativeTransferAction moves native currency to a recipient.
type NativeTransferAction struct {
	Recipient common.Address
	Amount    *big.Int
}

// ERC20TransferAction moves ERC-20 tokens to a recipient.
type ERC20TransferAction struct {
	Token     common.Address
	Recipient common.Address
	Amount    *big.Int
}

// ContractCallAction invokes an arbitrary target with value and calldata.
type ContractCallAction struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

func (NativeTransferAction) isAction() {}
func (ERC20TransferAction) isAction()  {}
func (ContractCallAction) isAction()   {}

// EncodeNativeTransfer builds the wire form of a NATIVE_TRANSFER action.
func EncodeNativeTransfer(recipient common.Address, amount *big.Int) ([]byte, error) {
	params, err := nativeTransferArgs.Pack(recipient, amount)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(ActionNativeTransfer)}, params...), nil
}

// EncodeERC20Transfer builds the wire form of an ERC20_TRANSFER action.
func EncodeERC20Transfer(token, recipient common.Address, amount *big.Int) ([]byte, error) {
	params, err := erc20TransferArgs.Pack(token, recipient, amount)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(ActionERC20Transfer)}, params...), nil
}

// EncodeContractCall builds the wire form of a CONTRACT_CALL action.
func EncodeContractCall(target common.Address, value *big.Int, callData []byte) ([]byte, error) {
	params, err := contractCallArgs.Pack(target, value, callData)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(ActionContractCall)}, params...), nil
}

// DecodeAction splits action bytes into their type tag and parameter record.
func DecodeAction(data []byte) (ActionType, Action, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("%w: empty payload", ErrMalformedAction)
	}
	typ := ActionType(data[0])
	params := data[1:]

	switch typ {
	case ActionNativeTransfer:
		vals, err := nativeTransferArgs.Unpack(params)
		if err != nil {
			return typ, nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
		}
		return typ, NativeTransferAction{
			Recipient: vals[0].(common.Address),
			Amount:    vals[1].(*big.Int),
		}, nil

	case ActionERC20Transfer:
		vals, err := erc20TransferArgs.Unpack(params)
		if err != nil {
			return typ, nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
		}
		return typ, ERC20TransferAction{
			Token:     vals[0].(common.Address),
			Recipient: vals[1].(common.Address),
			Amount:    vals[2].(*big.Int),
		}, nil

	case ActionContractCall:
		vals, err := contractCallArgs.Unpack(params)
		if err != nil {
			return typ, nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
		}
		return typ, ContractCallAction{
			Target:   vals[0].(common.Address),
			Value:    vals[1].(*big.Int),
			CallData: vals[2].([]byte),
		}, nil

	default:
		return typ, nil, fmt.Errorf("%w: unknown action type %d", ErrMalformedAction, typ)
	}
}
