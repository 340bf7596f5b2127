package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call describes a plugin method invocation on a user's smart account.
type Call struct {
	Function string        `json:"function"`
	Args     []interface{} `json:"args"`
}

// PreviewTx is the transaction the keeper would send for a Call, used for simulation.
type PreviewTx struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data []byte         `json:"data"`
}

// FixedPool is the utilization of the credit market at one maturity.
type FixedPool struct {
	Maturity uint64   `json:"maturity"`
	Borrowed *big.Int `json:"borrowed"`
	Supplied *big.Int `json:"supplied"`
}

type MarketState struct {
	FloatingAssets *big.Int    `json:"floating_assets"`
	FloatingDebt   *big.Int    `json:"floating_debt"`
	Pools          []FixedPool `json:"pools"`
}

// InstallmentPlan is the per-maturity split of a spend. MaxRepay caps what the
// account may end up owing across all maturities.
type InstallmentPlan struct {
	FirstMaturity uint64     `json:"first_maturity"`
	Amounts       []*big.Int `json:"amounts"`
	MaxRepay      *big.Int   `json:"max_repay"`
}
