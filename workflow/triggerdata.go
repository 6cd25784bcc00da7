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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Trigger parameters travel in two wire forms: the canonical ABI encoding
// produced by the contracts and a convenience JSON form accepted for manually
// registered workflows. Decoders accept either; the JSON form is detected by a
// leading '{'.

var ErrMalformedTrigger = errors.New("workflow: malformed trigger data")

// Comparator selects the price comparison applied by a price trigger.
type Comparator uint8

const (
	CmpLT Comparator = iota // <
	CmpLE                   // <=
	CmpGT                   // >
	CmpGE                   // >=
)

// Compare applies the comparator with a on the left hand side.
func (c Comparator) Compare(a, b float64) bool {
	switch c {
	case CmpLT:
		return a < b
	case CmpLE:
		return a <= b
	case CmpGT:
		return a > b
	case CmpGE:
		return a >= b
	default:
		return false
	}
}

// Valid reports whether the comparator is one of the four defined values.
func (c Comparator) Valid() bool { return c <= CmpGE }

// EventType enumerates the wallet movements a wallet-event trigger can watch.
type EventType uint8

const (
	EventTransferIn    EventType = 0
	EventTransferOut   EventType = 1
	EventBalanceChange EventType = 2
)

// Price trigger directions used by the compact ABI form.
const (
	DirectionAbove uint8 = 0
	DirectionBelow uint8 = 1
)

// TriggerData is the tagged variant decoded from a workflow's raw trigger
// bytes.
type TriggerData interface {
	isTriggerData()
}

// TimeTriggerData fires on a wall-clock schedule. The interval is carried for
// reference; readiness depends only on the workflow's nextRun field.
type TimeTriggerData struct {
	Interval uint64 `json:"interval"`
}

// PriceTriggerData fires when an oracle price satisfies the comparator against
// the USD threshold.
type PriceTriggerData struct {
	Token        string     `json:"token"`
	Comparator   Comparator `json:"comparator"`
	ThresholdUSD float64    `json:"price_usd"`
}

// WalletEventTriggerData fires when the monitored account receives a token
// transfer of at least MinAmount. A nil Token means native currency, for which
// detection is not implemented: the evaluator always reports not-ready.
type WalletEventTriggerData struct {
	Monitor   common.Address
	Token     *common.Address
	MinAmount *big.Int
	EventType EventType
}

func (TimeTriggerData) isTriggerData()        {}
func (PriceTriggerData) isTriggerData()       {}
func (WalletEventTriggerData) isTriggerData() {}

var (
	uint256Type = mustNewType("uint256")
	uint8Type   = mustNewType("uint8")
	bytes32Type = mustNewType("bytes32")
	addressType = mustNewType("address")
	bytesType   = mustNewType("bytes")

	timeTriggerArgs  = abi.Arguments{{Type: uint256Type}}
	priceTriggerArgs = abi.Arguments{{Type: bytes32Type}, {Type: uint256Type}, {Type: uint8Type}}
	eventTriggerArgs = abi.Arguments{{Type: addressType}, {Type: uint8Type}}
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// thresholdScale converts between float USD thresholds and the 1e18 fixed
// point representation used on-chain.
var thresholdScale = big.NewFloat(1e18)

// DecodeTriggerData decodes raw trigger bytes into the variant matching typ.
// Both the ABI and the JSON wire forms are accepted. The workflow owner is
// needed because the ABI wallet-event form carries no monitor address: the
// owner is the monitored account.
func DecodeTriggerData(typ TriggerType, data []byte, owner common.Address) (TriggerData, error) {
	if isJSONPayload(data) {
		return decodeTriggerJSON(typ, data)
	}
	switch typ {
	case TriggerTime:
		vals, err := timeTriggerArgs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
		}
		return TimeTriggerData{Interval: vals[0].(*big.Int).Uint64()}, nil

	case TriggerPrice:
		vals, err := priceTriggerArgs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
		}
		symbol := vals[0].([32]byte)
		threshold := vals[1].(*big.Int)
		direction := vals[2].(uint8)

		cmp := CmpGT
		if direction == DirectionBelow {
			cmp = CmpLT
		}
		usd, _ := new(big.Float).Quo(new(big.Float).SetInt(threshold), thresholdScale).Float64()
		return PriceTriggerData{
			Token:        string(bytes.TrimRight(symbol[:], "\x00")),
			Comparator:   cmp,
			ThresholdUSD: usd,
		}, nil

	case TriggerWalletEvent:
		vals, err := eventTriggerArgs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
		}
		td := WalletEventTriggerData{
			Monitor:   owner,
			MinAmount: new(big.Int),
			EventType: EventType(vals[1].(uint8)),
		}
		if token := vals[0].(common.Address); token != (common.Address{}) {
			td.Token = &token
		}
		return td, nil

	default:
		return nil, fmt.Errorf("%w: unknown trigger type %d", ErrMalformedTrigger, typ)
	}
}

// walletEventJSON is the convenience JSON form of a wallet-event trigger.
type walletEventJSON struct {
	Monitor   string   `json:"monitor"`
	Token     *string  `json:"token"`
	MinAmount *big.Int `json:"min_amount"`
}

func decodeTriggerJSON(typ TriggerType, data []byte) (TriggerData, error) {
	switch typ {
	case TriggerTime:
		var td TimeTriggerData
		if err := json.Unmarshal(data, &td); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
		}
		return td, nil

	case TriggerPrice:
		var td PriceTriggerData
		if err := json.Unmarshal(data, &td); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
		}
		if td.Token == "" || !td.Comparator.Valid() {
			return nil, fmt.Errorf("%w: incomplete price trigger", ErrMalformedTrigger)
		}
		return td, nil

	case TriggerWalletEvent:
		var raw walletEventJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
		}
		if raw.Monitor == "" || !common.IsHexAddress(raw.Monitor) {
			return nil, fmt.Errorf("%w: missing monitor address", ErrMalformedTrigger)
		}
		td := WalletEventTriggerData{
			Monitor:   common.HexToAddress(raw.Monitor),
			MinAmount: new(big.Int),
			EventType: EventTransferIn,
		}
		if raw.MinAmount != nil {
			td.MinAmount = raw.MinAmount
		}
		if raw.Token != nil && common.IsHexAddress(*raw.Token) {
			token := common.HexToAddress(*raw.Token)
			td.Token = &token
		}
		return td, nil

	default:
		return nil, fmt.Errorf("%w: unknown trigger type %d", ErrMalformedTrigger, typ)
	}
}

func isJSONPayload(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// EncodeTimeTrigger packs a TIME trigger into its ABI wire form.
func EncodeTimeTrigger(intervalSeconds uint64) ([]byte, error) {
	return timeTriggerArgs.Pack(new(big.Int).SetUint64(intervalSeconds))
}

// EncodePriceTrigger packs a PRICE trigger into its ABI wire form. The USD
// threshold is scaled to 1e18 fixed point; direction 0 means above, 1 below.
func EncodePriceTrigger(symbol string, thresholdUSD float64, direction uint8) ([]byte, error) {
	if len(symbol) > 32 {
		return nil, fmt.Errorf("symbol %q exceeds 32 bytes", symbol)
	}
	var padded [32]byte
	copy(padded[:], symbol)

	scaled, _ := new(big.Float).Mul(big.NewFloat(thresholdUSD), thresholdScale).Int(nil)
	return priceTriggerArgs.Pack(padded, scaled, direction)
}

// EncodeWalletEventTrigger packs a WALLET_EVENT trigger into its ABI wire
// form. The zero address stands for native currency.
func EncodeWalletEventTrigger(token common.Address, eventType EventType) ([]byte, error) {
	return eventTriggerArgs.Pack(token, uint8(eventType))
}

// EncodeTriggerJSON renders the convenience JSON form of a trigger record.
func EncodeTriggerJSON(td TriggerData) ([]byte, error) {
	switch t := td.(type) {
	case TimeTriggerData, PriceTriggerData:
		return json.Marshal(t)
	case WalletEventTriggerData:
		raw := walletEventJSON{
			Monitor:   t.Monitor.Hex(),
			MinAmount: t.MinAmount,
		}
		if t.Token != nil {
			hex := t.Token.Hex()
			raw.Token = &hex
		}
		return json.Marshal(raw)
	default:
		return nil, fmt.Errorf("unknown trigger variant %T", td)
	}
}
