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
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/posthog/posthog-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/cardsettle/config"
	"github.com/jerry-enebeli/cardsettle/internal/request"
)

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	if q.err != nil {
		return nil, q.err
	}
	return &asynq.TaskInfo{ID: "task_1", Type: task.Type()}, nil
}

type fakeAnalytics struct {
	messages []posthog.Message
}

func (a *fakeAnalytics) Enqueue(msg posthog.Message) error {
	a.messages = append(a.messages, msg)
	return nil
}

func testNotification() Notification {
	return Notification{
		Event:         EventCollected,
		UserID:        "user_1",
		CardID:        "card_1",
		TransactionID: "tx_1",
		Kind:          string(KindHold),
		Cents:         700,
		Merchant:      "Coffee",
	}
}

func TestQueueNotifier(t *testing.T) {
	queue := &fakeQueue{}
	tracking := &fakeAnalytics{}
	n := NewQueueNotifier(queue, "push_notifications", tracking)

	n.Notify(context.Background(), testNotification())

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, PushTask, queue.tasks[0].Type())
	var sent Notification
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &sent))
	assert.Equal(t, testNotification(), sent)

	require.Len(t, tracking.messages, 1)
	capture, ok := tracking.messages[0].(posthog.Capture)
	require.True(t, ok)
	assert.Equal(t, "user_1", capture.DistinctId)
	assert.Equal(t, EventCollected, capture.Event)
}

func TestQueueNotifierSwallowsQueueErrors(t *testing.T) {
	queue := &fakeQueue{err: errors.New("redis down")}
	n := NewQueueNotifier(queue, "push_notifications", nil)

	assert.NotPanics(t, func() { n.Notify(context.Background(), testNotification()) })
	assert.Len(t, queue.tasks, 1)
}

func TestProcessPushTask(t *testing.T) {
	httpmock.ActivateNonDefault(request.DefaultClient)
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Push: config.PushWebhook{
			Url:     "https://push.example.com/notify",
			Headers: map[string]string{"Authorization": "Bearer token"},
		}},
	})

	var received Notification
	httpmock.RegisterResponder(http.MethodPost, "https://push.example.com/notify",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer token", req.Header.Get("Authorization"))
			if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		})

	payload, err := json.Marshal(testNotification())
	require.NoError(t, err)

	require.NoError(t, ProcessPushTask(context.Background(), asynq.NewTask(PushTask, payload)))
	assert.Equal(t, testNotification(), received)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestProcessPushTaskFailures(t *testing.T) {
	httpmock.ActivateNonDefault(request.DefaultClient)
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Push: config.PushWebhook{Url: "https://push.example.com/notify"}},
	})
	httpmock.RegisterResponder(http.MethodPost, "https://push.example.com/notify",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	payload, _ := json.Marshal(testNotification())
	err := ProcessPushTask(context.Background(), asynq.NewTask(PushTask, payload))
	var statusErr *request.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Retryable())

	err = ProcessPushTask(context.Background(), asynq.NewTask(PushTask, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessPushTaskWithoutEndpoint(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	assert.NoError(t, ProcessPushTask(context.Background(), asynq.NewTask(PushTask, []byte("{}"))))
}
