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
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/cardsettle/internal/apierror"
	"github.com/jerry-enebeli/cardsettle/model"
)

type SettlementKind string

const (
	KindHold           SettlementKind = "hold"
	KindCapture        SettlementKind = "capture"
	KindOverCapture    SettlementKind = "over_capture"
	KindForceCapture   SettlementKind = "force_capture"
	KindReversal       SettlementKind = "reversal"
	KindRefund         SettlementKind = "refund"
	KindPartialCapture SettlementKind = "partial_capture"
)

// ErrPriorNotFound is returned when an event settles against a transaction the ledger never saw.
var ErrPriorNotFound = apierror.APIError{Code: apierror.ErrTxNotFound, Message: "referenced transaction not found"}

// Settlement is the amount an event moves, in token base units. Refund kinds move funds back to
// the account; every other kind collects from it.
type Settlement struct {
	Kind   SettlementKind
	Cents  int64
	Amount *big.Int
}

func (s Settlement) IsZero() bool {
	return s.Amount == nil || s.Amount.Sign() == 0
}

func (s Settlement) IsRefund() bool {
	switch s.Kind {
	case KindReversal, KindRefund, KindPartialCapture:
		return true
	}
	return false
}

// ToBaseUnits converts USD cents to token base units.
func ToBaseUnits(cents int64, decimals int32) *big.Int {
	return decimal.New(cents, -2).Shift(decimals).BigInt()
}

// Reconcile computes what an event settles. prior is the ledger entry recorded for the same
// transaction, or nil when there is none. An event the ledger already settled reconciles to a zero
// amount of the same kind, so a redelivery only appends a sentinel.
func Reconcile(op Operation, event *model.Event, prior *model.Transaction, decimals int32) (Settlement, error) {
	if event == nil || event.Body.Spend == nil {
		return Settlement{}, apierror.NewAPIError(apierror.ErrBadRequest, "event carries no spend", nil)
	}
	spend := event.Body.Spend

	var (
		s   Settlement
		err error
	)
	switch op {
	case OperationAuthorize, OperationCollect:
		s, err = reconcileCapture(event.Action, spend, prior)
	case OperationRefund:
		s, err = reconcileRefund(spend, prior)
	default:
		return Settlement{}, apierror.NewAPIError(apierror.ErrBadRequest, "operation "+op.String()+" settles nothing", nil)
	}
	if err != nil {
		return Settlement{}, err
	}
	if alreadySettled(event.Action, spend.Status, prior) {
		s.Cents = 0
	}
	if s.Cents < 0 {
		return Settlement{}, apierror.NewAPIError(apierror.ErrInvalidInput, "settlement amount is negative", nil)
	}
	s.Amount = ToBaseUnits(s.Cents, decimals)
	return s, nil
}

// alreadySettled reports whether prior holds an unreverted settlement for the same terminal step.
// Creations, completions and reversals happen once per transaction; pending authorization updates
// may legitimately repeat.
func alreadySettled(action, status string, prior *model.Transaction) bool {
	switch {
	case status == model.StatusReversed:
		return prior.Settled(func(_, s string) bool { return s == model.StatusReversed })
	case action == model.ActionCreated, action == model.ActionCompleted:
		return prior.Settled(func(a, _ string) bool { return a == action })
	}
	return false
}

func reconcileCapture(action string, spend *model.Spend, prior *model.Transaction) (Settlement, error) {
	switch action {
	case model.ActionUpdated:
		if spend.AuthorizationUpdateAmount == nil {
			return Settlement{}, apierror.NewAPIError(apierror.ErrBadRequest, "authorizationUpdateAmount is required on updated events", nil)
		}
		return Settlement{Kind: KindHold, Cents: *spend.AuthorizationUpdateAmount}, nil
	case model.ActionCompleted:
		if !prior.Settled(isCreation) {
			return Settlement{Kind: KindForceCapture, Cents: spend.Amount}, nil
		}
		delta := spend.Amount - authorizedCents(spend, prior)
		if delta == 0 {
			return Settlement{Kind: KindCapture}, nil
		}
		return Settlement{Kind: KindOverCapture, Cents: delta}, nil
	default:
		return Settlement{Kind: KindHold, Cents: spend.Amount}, nil
	}
}

func reconcileRefund(spend *model.Spend, prior *model.Transaction) (Settlement, error) {
	switch {
	case spend.Status == model.StatusReversed:
		if prior == nil {
			return Settlement{}, ErrPriorNotFound
		}
		if spend.AuthorizationUpdateAmount != nil {
			return Settlement{Kind: KindReversal, Cents: -*spend.AuthorizationUpdateAmount}, nil
		}
		return Settlement{Kind: KindReversal, Cents: authorizedCents(spend, prior)}, nil
	case spend.Amount < 0:
		return Settlement{Kind: KindRefund, Cents: -spend.Amount}, nil
	default:
		if prior == nil {
			return Settlement{}, ErrPriorNotFound
		}
		return Settlement{Kind: KindPartialCapture, Cents: authorizedCents(spend, prior) - spend.Amount}, nil
	}
}

func isCreation(action, _ string) bool {
	return action == model.ActionCreated
}

// authorizedCents is the issuer's authorized amount, or what the ledger recorded as held when the
// event omits it.
func authorizedCents(spend *model.Spend, prior *model.Transaction) int64 {
	if spend.AuthorizedAmount != nil {
		return *spend.AuthorizedAmount
	}
	held, _ := prior.HeldCents()
	return held
}
