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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jerry-enebeli/cardsettle/model"
)

// CardWebhook is a webhook delivery as the issuer sends it.
type CardWebhook struct {
	model.Event
}

func (w *CardWebhook) ValidateCardWebhook() error {
	err := validation.ValidateStruct(&w.Event,
		validation.Field(&w.Event.ID, validation.Required),
		validation.Field(&w.Event.Resource, validation.Required,
			validation.In(model.ResourceTransaction, model.ResourceCard, model.ResourceUser)),
		validation.Field(&w.Event.Action, validation.Required),
	)
	if err != nil {
		return err
	}
	if w.Resource != model.ResourceTransaction {
		return nil
	}
	if w.Body.ID == "" {
		return validation.Errors{"body": errors.New("transaction id is required")}
	}
	if w.Body.Spend == nil {
		return nil
	}

	spend := w.Body.Spend
	err = validation.ValidateStruct(spend,
		validation.Field(&spend.CardID, validation.Required),
		validation.Field(&spend.Status, validation.Required,
			validation.In(model.StatusPending, model.StatusCompleted, model.StatusReversed, model.StatusDeclined)),
	)
	if err != nil {
		return validation.Errors{"spend": err}
	}
	if w.Action == model.ActionUpdated && spend.Status == model.StatusPending && spend.AuthorizationUpdateAmount == nil {
		return validation.Errors{"spend": errors.New("authorizationUpdateAmount is required on authorization updates")}
	}
	return nil
}

// ToEvent returns the validated event.
func (w *CardWebhook) ToEvent() *model.Event {
	return &w.Event
}
