// Package installments splits a spend over several maturities of the credit market.
package installments

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/cardsettle/model"
)

const secondsPerYear = 365 * 24 * 60 * 60

var (
	ErrNoMaturities  = errors.New("at least one maturity is required")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Splitter turns a spend into per-maturity principal amounts.
type Splitter interface {
	Split(amount *big.Int, state model.MarketState, maturities []uint64, now time.Time) (model.InstallmentPlan, error)
}

// RateSplitter prices each maturity with a linear utilization rate, rate = base + slope·u,
// and picks principals so that every installment grows to the same repay amount.
type RateSplitter struct {
	BaseRate decimal.Decimal
	Slope    decimal.Decimal
	Slippage decimal.Decimal
}

func NewRateSplitter(baseRate, slope, slippage string) (*RateSplitter, error) {
	base, err := decimal.NewFromString(baseRate)
	if err != nil {
		return nil, fmt.Errorf("invalid base rate: %w", err)
	}
	s, err := decimal.NewFromString(slope)
	if err != nil {
		return nil, fmt.Errorf("invalid slope: %w", err)
	}
	slip, err := decimal.NewFromString(slippage)
	if err != nil {
		return nil, fmt.Errorf("invalid slippage: %w", err)
	}
	return &RateSplitter{BaseRate: base, Slope: s, Slippage: slip}, nil
}

func poolAt(state model.MarketState, maturity uint64) (borrowed, supplied decimal.Decimal) {
	for _, p := range state.Pools {
		if p.Maturity == maturity {
			return bigOrZero(p.Borrowed), bigOrZero(p.Supplied)
		}
	}
	return decimal.Zero, decimal.Zero
}

func bigOrZero(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

func (s *RateSplitter) utilization(state model.MarketState, maturity uint64) decimal.Decimal {
	borrowed, supplied := poolAt(state, maturity)
	liquidity := supplied.Add(bigOrZero(state.FloatingAssets))
	if !liquidity.IsPositive() {
		return decimal.Zero
	}
	u := borrowed.Div(liquidity)
	if u.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return u
}

func (s *RateSplitter) Split(amount *big.Int, state model.MarketState, maturities []uint64, now time.Time) (model.InstallmentPlan, error) {
	if len(maturities) == 0 {
		return model.InstallmentPlan{}, ErrNoMaturities
	}
	if amount == nil || amount.Sign() <= 0 {
		return model.InstallmentPlan{}, ErrInvalidAmount
	}

	year := decimal.NewFromInt(secondsPerYear)
	factors := make([]decimal.Decimal, len(maturities))
	inverseSum := decimal.Zero
	for i, maturity := range maturities {
		remaining := int64(maturity) - now.Unix()
		if remaining <= 0 {
			return model.InstallmentPlan{}, fmt.Errorf("maturity %d is not in the future", maturity)
		}
		rate := s.BaseRate.Add(s.Slope.Mul(s.utilization(state, maturity)))
		factors[i] = decimal.NewFromInt(1).Add(rate.Mul(decimal.NewFromInt(remaining)).Div(year))
		inverseSum = inverseSum.Add(decimal.NewFromInt(1).Div(factors[i]))
	}

	total := decimal.NewFromBigInt(amount, 0)
	repay := total.Div(inverseSum)

	plan := model.InstallmentPlan{FirstMaturity: maturities[0], Amounts: make([]*big.Int, len(maturities))}
	assigned := new(big.Int)
	for i, f := range factors {
		plan.Amounts[i] = repay.Div(f).Floor().BigInt()
		assigned.Add(assigned, plan.Amounts[i])
	}
	last := plan.Amounts[len(plan.Amounts)-1]
	last.Add(last, new(big.Int).Sub(amount, assigned))

	plan.MaxRepay = repay.Mul(decimal.NewFromInt(int64(len(maturities)))).
		Mul(decimal.NewFromInt(1).Add(s.Slippage)).
		Ceil().BigInt()
	return plan, nil
}
