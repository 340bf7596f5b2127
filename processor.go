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
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/cardsettle/internal/apierror"
	"github.com/jerry-enebeli/cardsettle/internal/keeper"
	"github.com/jerry-enebeli/cardsettle/internal/lock"
	"github.com/jerry-enebeli/cardsettle/model"
)

// Outcome describes how an event was handled. Hashes lists the chain transactions it produced.
type Outcome struct {
	Operation Operation      `json:"operation"`
	Kind      SettlementKind `json:"kind,omitempty"`
	Hashes    []string       `json:"hashes,omitempty"`
}

// Process handles one issuer webhook. Errors carry an apierror code that tells the issuer what happened.
func (c *CardSettle) Process(ctx context.Context, event *model.Event) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Process")
	defer span.End()

	if !event.IsTransaction() {
		if event.Resource == model.ResourceCard && event.Body.ID != "" {
			if err := c.datasource.InvalidateCard(ctx, event.Body.ID); err != nil {
				logrus.WithError(err).WithField("card", event.Body.ID).Warn("failed to evict card from cache")
			}
		}
		return Outcome{Operation: OperationIgnore}, nil
	}

	op := Classify(event)
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.action", event.Action),
		attribute.String("operation", op.String()),
	)
	logger := logrus.WithFields(logrus.Fields{
		"event":       event.ID,
		"action":      event.Action,
		"transaction": event.Body.ID,
		"card":        event.Body.Spend.CardID,
		"operation":   op.String(),
	})
	logger.Info("processing card event")

	var (
		outcome Outcome
		err     error
	)
	switch op {
	case OperationAuthorize:
		outcome, err = c.authorize(ctx, event)
	case OperationDecline:
		outcome, err = c.decline(ctx, event)
	case OperationCollect, OperationRefund:
		outcome, err = c.settle(ctx, op, event)
	default:
		outcome = Outcome{Operation: OperationIgnore}
	}
	if err != nil {
		span.RecordError(err)
		logger.WithError(err).WithField("code", apierror.CodeOf(err)).Error("card event failed")
	}
	return outcome, err
}

func (c *CardSettle) authorize(ctx context.Context, event *model.Event) (Outcome, error) {
	outcome := Outcome{Operation: OperationAuthorize}
	spend := event.Body.Spend

	card, err := c.datasource.GetCard(ctx, spend.CardID)
	if err != nil {
		return outcome, err
	}
	if !card.IsActive() {
		return outcome, apierror.NewAPIError(apierror.ErrCardNotFound, "card is not active", nil)
	}
	account := card.Address()

	started := time.Now()
	held, err := c.locks.Acquire(ctx, account.Hex(), c.lockTimeout)
	c.metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			c.metrics.LockTimeout()
			return outcome, apierror.NewAPIError(apierror.ErrLockTimeout, "account is busy", nil)
		}
		return outcome, apierror.NewAPIError(apierror.ErrUnexpected, "failed to lock account", err)
	}

	// the hold outlives this request and is released by the settlement that follows
	if err := c.checkAuthorization(ctx, card, event); err != nil {
		c.locks.Release(held)
		return outcome, err
	}

	c.notify(ctx, EventAuthorized, card, event, "")
	return outcome, nil
}

func (c *CardSettle) checkAuthorization(ctx context.Context, card *model.Card, event *model.Event) error {
	s, err := Reconcile(OperationAuthorize, event, nil, c.decimals)
	if err != nil {
		return err
	}
	call, err := c.planner.Plan(ctx, card, s, event.Action, c.timestamp(event))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrUnexpected, "failed to plan authorization", err)
	}
	if call == nil {
		return nil
	}
	preview, err := c.planner.Preview(card.Address(), *call)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrUnexpected, "failed to encode authorization", err)
	}
	return c.validator.Validate(ctx, preview, s.Amount)
}

func (c *CardSettle) decline(ctx context.Context, event *model.Event) (Outcome, error) {
	outcome := Outcome{Operation: OperationDecline}
	card, err := c.datasource.GetCard(ctx, event.Body.Spend.CardID)
	if err != nil {
		return outcome, err
	}
	c.locks.Unlock(card.Address().Hex())

	logrus.WithFields(logrus.Fields{
		"card":   card.ID,
		"reason": event.Body.Spend.DeclinedReason,
	}).Info("spend declined")
	c.notify(ctx, EventDeclined, card, event, "")
	return outcome, nil
}

func (c *CardSettle) settle(ctx context.Context, op Operation, event *model.Event) (Outcome, error) {
	outcome := Outcome{Operation: op}
	spend := event.Body.Spend

	card, err := c.datasource.GetCard(ctx, spend.CardID)
	if err != nil {
		// the account is unknown, so a hold taken at authorization is only freed by its lease
		logrus.WithError(err).WithFields(logrus.Fields{
			"card":        spend.CardID,
			"transaction": event.Body.ID,
		}).Warn("card lookup failed during settlement")
		return outcome, err
	}
	account := card.Address()
	if !keepsLock(op, event) {
		defer c.locks.Unlock(account.Hex())
	}

	prior, err := c.datasource.FindTransaction(ctx, event.Body.ID, card.ID)
	if err != nil {
		return outcome, err
	}
	s, err := Reconcile(op, event, prior, c.decimals)
	if err != nil {
		return outcome, err
	}
	outcome.Kind = s.Kind

	at := c.timestamp(event)
	body, err := event.LedgerBody(at)
	if err != nil {
		return outcome, apierror.NewAPIError(apierror.ErrBadRequest, "invalid event body", err)
	}

	if s.IsZero() {
		if err := c.datasource.UpsertTransaction(ctx, event.Body.ID, card.ID, model.SentinelHash, body, at); err != nil {
			return outcome, err
		}
		c.metrics.LedgerAppend(true)
		return outcome, nil
	}

	hash, err := c.execute(ctx, card, s, event, body, at)
	if hash != "" {
		outcome.Hashes = append(outcome.Hashes, hash)
	}
	if err != nil {
		if s.Kind == KindForceCapture {
			return outcome, c.escalate(ctx, card, event, err)
		}
		return outcome, err
	}

	if s.IsRefund() {
		c.notify(ctx, EventRefunded, card, event, s.Kind)
	} else {
		c.notify(ctx, EventCollected, card, event, s.Kind)
	}
	return outcome, nil
}

// execute plans and submits the settlement call. The ledger is written from the keeper's hash
// hook, so the hash is on record even when waiting for the receipt fails.
func (c *CardSettle) execute(ctx context.Context, card *model.Card, s Settlement, event *model.Event, body map[string]interface{}, at time.Time) (string, error) {
	call, err := c.planner.Plan(ctx, card, s, event.Action, at)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrUnexpected, "failed to plan settlement", err)
	}

	var recorded string
	_, err = c.keeper.Submit(ctx, card.Address(), *call, func(hash common.Hash) error {
		recorded = hash.Hex()
		if err := c.datasource.UpsertTransaction(ctx, event.Body.ID, card.ID, recorded, body, at); err != nil {
			return err
		}
		c.metrics.LedgerAppend(false)
		return nil
	})
	c.metrics.ObserveSubmission(call.Function, err)
	if err != nil {
		if errors.Is(err, keeper.ErrReverted) {
			c.markReverted(ctx, card, event, body, recorded, at)
			return recorded, apierror.NewAPIError(apierror.ErrTxReverted, "settlement transaction reverted", err)
		}
		return recorded, apierror.NewAPIError(apierror.ErrUnexpected, "failed to submit settlement", err)
	}
	return recorded, nil
}

// markReverted records that the settlement behind hash moved no funds, so a redelivery of the
// event is settled again instead of being taken for a duplicate.
func (c *CardSettle) markReverted(ctx context.Context, card *model.Card, event *model.Event, body map[string]interface{}, hash string, at time.Time) {
	if hash == "" {
		return
	}
	marker := make(map[string]interface{}, len(body)+1)
	for k, v := range body {
		marker[k] = v
	}
	marker[model.RevertedKey] = hash
	if err := c.datasource.UpsertTransaction(ctx, event.Body.ID, card.ID, model.SentinelHash, marker, at); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"transaction": event.Body.ID,
			"hash":        hash,
		}).Error("failed to record reverted settlement")
		return
	}
	c.metrics.LedgerAppend(true)
}

// escalate deactivates the user behind a force capture that could not be collected.
func (c *CardSettle) escalate(ctx context.Context, card *model.Card, event *model.Event, cause error) error {
	userID := card.UserID
	if userID == "" {
		userID = event.Body.Spend.UserID
	}
	logger := logrus.WithFields(logrus.Fields{
		"card":        card.ID,
		"user":        userID,
		"transaction": event.Body.ID,
	})
	logger.WithError(cause).Warn("force capture failed, deactivating user")

	if c.issuer != nil {
		if err := c.issuer.DeactivateUser(ctx, userID); err != nil {
			logger.WithError(err).Error("failed to deactivate user")
		}
	}
	return apierror.NewAPIError(apierror.ErrSuspicious, "force capture failed", cause)
}

// timestamp is the time a settlement is signed for. The issuer's timestamps win; without them
// the receive time is used.
func (c *CardSettle) timestamp(event *model.Event) time.Time {
	fallback := c.now().Truncate(time.Second)
	if at := event.Body.Spend.AuthorizedAt; at != nil && !at.IsZero() {
		fallback = *at
	}
	return event.Timestamp(fallback)
}

func (c *CardSettle) notify(ctx context.Context, name string, card *model.Card, event *model.Event, kind SettlementKind) {
	spend := event.Body.Spend
	c.notifier.Notify(ctx, Notification{
		Event:         name,
		UserID:        card.UserID,
		CardID:        card.ID,
		TransactionID: event.Body.ID,
		Kind:          string(kind),
		Cents:         spend.Amount,
		Currency:      spend.Currency,
		Merchant:      spend.MerchantName,
	})
}
