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

package prices

import "strings"

// symbolIDs maps common short ticker symbols to oracle asset ids. This is the
// single place the mapping lives; trigger evaluators and the adapter share it.
var symbolIDs = map[string]string{
	"dot":   "polkadot",
	"glmr":  "moonbeam",
	"eth":   "ethereum",
	"btc":   "bitcoin",
	"astr":  "astar",
	"matic": "polygon",
}

// SymbolID resolves a ticker symbol to the oracle asset id, passing unknown
// symbols through unchanged.
func SymbolID(symbol string) string {
	key := strings.ToLower(symbol)
	if id, ok := symbolIDs[key]; ok {
		return id
	}
	return key
}
