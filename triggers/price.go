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

	"github.com/ethereum/go-ethereum/log"

	"github.com/autometa-labs/autometa/workflow"
)

// PriceSource is the slice of the price adapter the evaluator needs.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (price float64, source string, err error)
}

// Price evaluates price triggers against a layered price source. A price
// fetch failure yields not-ready, never a false positive.
type Price struct {
	source PriceSource
	log    log.Logger
}

// NewPrice creates the price trigger evaluator.
func NewPrice(source PriceSource) *Price {
	return &Price{source: source, log: log.New("trigger", "price")}
}

// Ready fetches the current price for the trigger's token and applies the
// comparator literally against the USD threshold.
func (p *Price) Ready(ctx context.Context, wf *workflow.Workflow) (bool, error) {
	if !wf.Active {
		return false, nil
	}
	td, err := workflow.DecodeTriggerData(wf.TriggerType, wf.TriggerData, wf.Owner)
	if err != nil {
		return false, err
	}
	pt, ok := td.(workflow.PriceTriggerData)
	if !ok {
		return false, fmt.Errorf("workflow %d: trigger data is not a price record", wf.ID)
	}

	price, source, err := p.source.Price(ctx, pt.Token)
	if err != nil {
		return false, fmt.Errorf("workflow %d: price fetch: %w", wf.ID, err)
	}
	ready := pt.Comparator.Compare(price, pt.ThresholdUSD)
	if ready {
		p.log.Info("Price condition met", "wf", wf.ID, "token", pt.Token, "price", price, "threshold", pt.ThresholdUSD, "source", source)
	} else {
		p.log.Debug("Price condition not met", "wf", wf.ID, "token", pt.Token, "price", price, "threshold", pt.ThresholdUSD)
	}
	return ready, nil
}
