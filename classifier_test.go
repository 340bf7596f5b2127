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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jerry-enebeli/cardsettle/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		event    *model.Event
		expected Operation
	}{
		{"Negative request", spendEvent(model.ActionRequested, model.StatusPending, -100, nil), OperationIgnore},
		{"Negative creation", spendEvent(model.ActionCreated, model.StatusPending, -100, nil), OperationIgnore},
		{"Request", spendEvent(model.ActionRequested, model.StatusPending, 700, nil), OperationAuthorize},
		{"Declined request still authorizes", spendEvent(model.ActionRequested, model.StatusDeclined, 700, nil), OperationAuthorize},
		{"Reversal", spendEvent(model.ActionUpdated, model.StatusReversed, 0, cents(700)), OperationRefund},
		{"Negative completion", spendEvent(model.ActionCompleted, model.StatusCompleted, -300, nil), OperationRefund},
		{"Under capture", spendEvent(model.ActionCompleted, model.StatusCompleted, 2000, cents(2500)), OperationRefund},
		{"Exact capture", spendEvent(model.ActionCompleted, model.StatusCompleted, 700, cents(700)), OperationCollect},
		{"Over capture", spendEvent(model.ActionCompleted, model.StatusCompleted, 3000, cents(2500)), OperationCollect},
		{"Force capture", spendEvent(model.ActionCompleted, model.StatusCompleted, 700, nil), OperationCollect},
		{"Declined", spendEvent(model.ActionCreated, model.StatusDeclined, 700, nil), OperationDecline},
		{"Declined update", spendEvent(model.ActionUpdated, model.StatusDeclined, 700, nil), OperationDecline},
		{"Creation", spendEvent(model.ActionCreated, model.StatusPending, 700, nil), OperationCollect},
		{"Authorization update", spendEvent(model.ActionUpdated, model.StatusPending, 700, nil), OperationCollect},
		{"Unknown action", spendEvent("settled", model.StatusCompleted, 700, nil), OperationIgnore},
		{"Card resource", &model.Event{Resource: model.ResourceCard, Action: model.ActionUpdated}, OperationIgnore},
		{"Nil event", nil, OperationIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.event))
		})
	}
}

func TestKeepsLock(t *testing.T) {
	update := spendEvent(model.ActionUpdated, model.StatusPending, 700, nil)
	assert.True(t, keepsLock(OperationCollect, update))

	completed := spendEvent(model.ActionCompleted, model.StatusCompleted, 700, nil)
	assert.False(t, keepsLock(OperationCollect, completed))

	reversal := spendEvent(model.ActionUpdated, model.StatusReversed, 0, nil)
	assert.False(t, keepsLock(OperationRefund, reversal))
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "authorize", OperationAuthorize.String())
	assert.Equal(t, "refund", OperationRefund.String())
	assert.Equal(t, "ignore", Operation(42).String())
}
