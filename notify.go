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
	"net/http"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/cardsettle/config"
	"github.com/jerry-enebeli/cardsettle/internal/request"
)

// PushTask is the asynq task type that delivers a push notification.
const PushTask = "push:notification"

const (
	EventAuthorized = "card.authorized"
	EventDeclined   = "card.declined"
	EventCollected  = "card.collected"
	EventRefunded   = "card.refunded"
)

// Notification tells a user about a card spend.
type Notification struct {
	Event         string `json:"event"`
	UserID        string `json:"user_id"`
	CardID        string `json:"card_id"`
	TransactionID string `json:"transaction_id"`
	Kind          string `json:"kind,omitempty"`
	Cents         int64  `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	Merchant      string `json:"merchant,omitempty"`
}

// Notifier delivers notifications without blocking or failing the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type analytics interface {
	Enqueue(msg posthog.Message) error
}

// QueueNotifier enqueues push deliveries on asynq and records each notification in posthog.
type QueueNotifier struct {
	queue     enqueuer
	name      string
	analytics analytics
}

// NewQueueNotifier builds a notifier. analytics may be nil.
func NewQueueNotifier(queue enqueuer, name string, analytics analytics) *QueueNotifier {
	return &QueueNotifier{queue: queue, name: name, analytics: analytics}
}

func (q *QueueNotifier) Notify(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		logrus.WithError(err).Error("failed to marshal notification")
		return
	}

	task := asynq.NewTask(PushTask, payload, asynq.Queue(q.name), asynq.TaskID(uuid.NewString()))
	if _, err := q.queue.EnqueueContext(ctx, task); err != nil {
		logrus.WithError(err).WithField("event", n.Event).Error("failed to enqueue push notification")
	}

	if q.analytics == nil {
		return
	}
	err = q.analytics.Enqueue(posthog.Capture{
		DistinctId: n.UserID,
		Event:      n.Event,
		Properties: posthog.NewProperties().
			Set("card_id", n.CardID).
			Set("transaction_id", n.TransactionID).
			Set("kind", n.Kind).
			Set("amount", n.Cents).
			Set("merchant", n.Merchant),
	})
	if err != nil {
		logrus.WithError(err).Warn("failed to capture analytics event")
	}
}

// ProcessPushTask posts a queued notification to the configured push endpoint.
func ProcessPushTask(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Push.Url == "" {
		return nil
	}

	var n Notification
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		logrus.WithError(err).Error("invalid push notification payload")
		return asynq.SkipRetry
	}

	body, err := request.ToJsonReq(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Push.Url, body)
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Push.Headers {
		req.Header.Set(key, value)
	}

	if _, err := request.Call(req, nil); err != nil {
		logrus.WithError(err).WithField("event", n.Event).Error("push notification failed")
		return err
	}
	logrus.WithFields(logrus.Fields{"event": n.Event, "user": n.UserID}).Info("push notification sent")
	return nil
}
