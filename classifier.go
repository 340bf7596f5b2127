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
	"github.com/jerry-enebeli/cardsettle/model"
)

// Operation is what the service does in response to a single issuer webhook.
type Operation int

const (
	OperationIgnore Operation = iota
	OperationAuthorize
	OperationDecline
	OperationCollect
	OperationRefund
)

func (o Operation) String() string {
	switch o {
	case OperationAuthorize:
		return "authorize"
	case OperationDecline:
		return "decline"
	case OperationCollect:
		return "collect"
	case OperationRefund:
		return "refund"
	default:
		return "ignore"
	}
}

func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Classify maps a transaction event to the operation it calls for. The rules are evaluated in order
// and the first match wins:
//
//  1. a negative amount on a requested or created event is a network quirk and is ignored.
//  2. requested asks for an authorization.
//  3. a reversal, a negative completion or a completion below the authorized amount gives funds back.
//  4. a declined spend ends the authorization without moving funds.
//  5. anything else settles the spend.
//
// Parameters:
// - event *model.Event: The issuer event. Events without a spend are ignored.
//
// Returns:
// - Operation: The operation to perform.
func Classify(event *model.Event) Operation {
	if event == nil || !event.IsTransaction() {
		return OperationIgnore
	}
	spend := event.Body.Spend

	switch event.Action {
	case model.ActionRequested, model.ActionCreated:
		if spend.Amount < 0 {
			return OperationIgnore
		}
	}

	switch event.Action {
	case model.ActionRequested:
		return OperationAuthorize
	case model.ActionCreated, model.ActionUpdated, model.ActionCompleted:
		if isRefund(spend) {
			return OperationRefund
		}
	default:
		return OperationIgnore
	}

	if spend.Status == model.StatusDeclined {
		return OperationDecline
	}
	return OperationCollect
}

func isRefund(spend *model.Spend) bool {
	if spend.Status == model.StatusReversed {
		return true
	}
	if spend.Status != model.StatusCompleted {
		return false
	}
	if spend.Amount < 0 {
		return true
	}
	return spend.AuthorizedAmount != nil && spend.Amount < *spend.AuthorizedAmount
}

// keepsLock reports whether a settlement leaves the account lock in place. An authorization
// update is not terminal, so the hold taken at authorization stays until the spend completes.
func keepsLock(op Operation, event *model.Event) bool {
	return op == OperationCollect &&
		event.Action == model.ActionUpdated &&
		event.Body.Spend.Status == model.StatusPending
}
