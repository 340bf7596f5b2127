/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cardsettle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/cardsettle/internal/installments"
	"github.com/jerry-enebeli/cardsettle/internal/keeper"
	"github.com/jerry-enebeli/cardsettle/model"
)

const (
	FunctionCollectDebit        = "collectDebit"
	FunctionCollectCredit       = "collectCredit"
	FunctionCollectInstallments = "collectInstallments"
	FunctionRefund              = "refund"
)

// Planner builds the plugin call that settles an amount on a card's account.
type Planner struct {
	signer            Authorizer
	market            MarketReader
	splitter          installments.Splitter
	from              common.Address
	maturityInterval  uint64
	minBorrowInterval uint64
	decimals          int32
}

// PlannerConfig holds the market schedule the planner works against. Intervals are in seconds.
type PlannerConfig struct {
	Submitter         common.Address
	MaturityInterval  uint64
	MinBorrowInterval uint64
	Decimals          int32
}

func NewPlanner(signer Authorizer, market MarketReader, splitter installments.Splitter, cfg PlannerConfig) *Planner {
	return &Planner{
		signer:            signer,
		market:            market,
		splitter:          splitter,
		from:              cfg.Submitter,
		maturityInterval:  cfg.MaturityInterval,
		minBorrowInterval: cfg.MinBorrowInterval,
		decimals:          cfg.Decimals,
	}
}

// FirstMaturity is the earliest maturity a borrow at now may target: the next interval boundary,
// pushed one interval further when it is closer than the minimum borrow interval.
func (p *Planner) FirstMaturity(now uint64) uint64 {
	next := (now + p.maturityInterval - 1) / p.maturityInterval * p.maturityInterval
	if next-now < p.minBorrowInterval {
		next += p.maturityInterval
	}
	return next
}

// Plan returns the call settling s on card, or nil when s moves nothing.
func (p *Planner) Plan(ctx context.Context, card *model.Card, s Settlement, action string, at time.Time) (*model.Call, error) {
	if s.IsZero() {
		return nil, nil
	}
	account := card.Address()
	timestamp := uint64(at.Unix())
	amount := new(big.Int).Set(s.Amount)

	if s.IsRefund() {
		sig, err := p.signer.SignRefund(account, amount, timestamp)
		if err != nil {
			return nil, err
		}
		return &model.Call{Function: FunctionRefund, Args: []interface{}{amount, new(big.Int).SetUint64(timestamp), sig}}, nil
	}

	sig, err := p.signer.SignCollection(account, amount, timestamp)
	if err != nil {
		return nil, err
	}
	if card.Mode <= model.ModeDebit {
		return &model.Call{Function: FunctionCollectDebit, Args: []interface{}{amount, new(big.Int).SetUint64(timestamp), sig}}, nil
	}

	first := p.FirstMaturity(timestamp)
	if card.Mode == model.ModeCredit || action == model.ActionRequested || p.belowInstallmentMinimum(amount, card.Mode) {
		maturity := first + uint64(card.Mode-1)*p.maturityInterval
		return &model.Call{Function: FunctionCollectCredit, Args: []interface{}{
			new(big.Int).SetUint64(maturity), amount, new(big.Int).SetUint64(timestamp), sig,
		}}, nil
	}

	maturities := make([]uint64, card.Mode)
	for i := range maturities {
		maturities[i] = first + uint64(i)*p.maturityInterval
	}
	state, err := p.market.MarketState(ctx, maturities)
	if err != nil {
		return nil, fmt.Errorf("failed to read market state: %w", err)
	}
	plan, err := p.splitter.Split(amount, state, maturities, at)
	if err != nil {
		return nil, fmt.Errorf("failed to split installments: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"card":           card.ID,
		"first_maturity": plan.FirstMaturity,
		"installments":   len(plan.Amounts),
		"max_repay":      plan.MaxRepay.String(),
	}).Debug("installment plan built")

	return &model.Call{Function: FunctionCollectInstallments, Args: []interface{}{
		new(big.Int).SetUint64(plan.FirstMaturity), plan.Amounts, plan.MaxRepay, new(big.Int).SetUint64(timestamp), sig,
	}}, nil
}

// belowInstallmentMinimum reports whether amount is too small to give every maturity a whole dollar.
func (p *Planner) belowInstallmentMinimum(amount *big.Int, mode int) bool {
	return amount.Cmp(ToBaseUnits(int64(mode)*100, p.decimals)) < 0
}

// Preview is the transaction the keeper would send for call.
func (p *Planner) Preview(account common.Address, call model.Call) (model.PreviewTx, error) {
	data, err := keeper.Encode(call)
	if err != nil {
		return model.PreviewTx{}, err
	}
	return model.PreviewTx{From: p.from, To: account, Data: data}, nil
}
