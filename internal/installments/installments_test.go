package installments

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/cardsettle/model"
)

const interval = 4 * 7 * 24 * 60 * 60

func maturitiesFrom(first uint64, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = first + uint64(i)*interval
	}
	return out
}

func sum(values []*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		total.Add(total, v)
	}
	return total
}

func TestSplitWithoutInterest(t *testing.T) {
	s, err := NewRateSplitter("0", "0", "0.02")
	require.NoError(t, err)

	now := time.Unix(interval*100, 0)
	plan, err := s.Split(big.NewInt(10_000_000), model.MarketState{}, maturitiesFrom(interval*102, 3), now)
	require.NoError(t, err)

	require.Len(t, plan.Amounts, 3)
	assert.Equal(t, "3333333", plan.Amounts[0].String())
	assert.Equal(t, "3333333", plan.Amounts[1].String())
	assert.Equal(t, "3333334", plan.Amounts[2].String())
	assert.Equal(t, "10000000", sum(plan.Amounts).String())
	assert.Equal(t, uint64(interval*102), plan.FirstMaturity)
	assert.Equal(t, "10200000", plan.MaxRepay.String())
}

func TestSplitFrontLoadsPrincipalWhenRatesArePositive(t *testing.T) {
	s, err := NewRateSplitter("0.05", "0", "0.02")
	require.NoError(t, err)

	now := time.Unix(interval*100, 0)
	plan, err := s.Split(big.NewInt(100_000_000), model.MarketState{}, maturitiesFrom(interval*102, 4), now)
	require.NoError(t, err)

	assert.Equal(t, "100000000", sum(plan.Amounts).String())
	for i := 1; i < len(plan.Amounts)-1; i++ {
		assert.True(t, plan.Amounts[i-1].Cmp(plan.Amounts[i]) > 0, "installment %d should be below %d", i, i-1)
	}
	assert.True(t, plan.MaxRepay.Cmp(big.NewInt(102_000_000)) > 0)
}

func TestSplitPricesUtilization(t *testing.T) {
	s, err := NewRateSplitter("0.05", "0.2", "0.02")
	require.NoError(t, err)

	now := time.Unix(interval*100, 0)
	maturities := maturitiesFrom(interval*102, 2)
	idle := model.MarketState{FloatingAssets: big.NewInt(1_000_000_000), FloatingDebt: big.NewInt(0)}
	busy := model.MarketState{
		FloatingAssets: big.NewInt(1_000_000_000),
		FloatingDebt:   big.NewInt(0),
		Pools: []model.FixedPool{
			{Maturity: maturities[0], Borrowed: big.NewInt(900_000_000), Supplied: big.NewInt(0)},
			{Maturity: maturities[1], Borrowed: big.NewInt(900_000_000), Supplied: big.NewInt(0)},
		},
	}

	idlePlan, err := s.Split(big.NewInt(50_000_000), idle, maturities, now)
	require.NoError(t, err)
	busyPlan, err := s.Split(big.NewInt(50_000_000), busy, maturities, now)
	require.NoError(t, err)

	assert.Equal(t, "50000000", sum(busyPlan.Amounts).String())
	assert.True(t, busyPlan.MaxRepay.Cmp(idlePlan.MaxRepay) > 0)
}

func TestSplitErrors(t *testing.T) {
	s, err := NewRateSplitter("0.05", "0.2", "0.02")
	require.NoError(t, err)
	now := time.Unix(interval*100, 0)

	_, err = s.Split(big.NewInt(1), model.MarketState{}, nil, now)
	assert.ErrorIs(t, err, ErrNoMaturities)

	_, err = s.Split(big.NewInt(0), model.MarketState{}, maturitiesFrom(interval*102, 2), now)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.Split(big.NewInt(10), model.MarketState{}, []uint64{interval * 99}, now)
	assert.Error(t, err)

	_, err = NewRateSplitter("x", "0", "0")
	assert.Error(t, err)
}
