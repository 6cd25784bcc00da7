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

package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const feeEscrowABI = `[
	{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"balances","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// Escrow reads user gas balances from the FeeEscrow contract. The worker uses
// it as a preflight check before spending a transaction on an execution that
// would revert for lack of funds.
type Escrow struct {
	caller ContractCaller
	addr   common.Address
	abi    abi.ABI
}

// NewEscrow creates an escrow view caller bound to the given contract.
func NewEscrow(caller ContractCaller, addr common.Address) (*Escrow, error) {
	parsed, err := abi.JSON(strings.NewReader(feeEscrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	return &Escrow{caller: caller, addr: addr, abi: parsed}, nil
}

// Balance returns the owner's escrowed gas balance in wei.
func (e *Escrow) Balance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := e.abi.Pack("balances", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balances: %w", err)
	}
	ret, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &e.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balances: %w", err)
	}
	out, err := e.abi.Unpack("balances", ret)
	if err != nil {
		return nil, fmt.Errorf("unpack balances: %w", err)
	}
	return out[0].(*big.Int), nil
}
