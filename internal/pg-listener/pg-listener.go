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

// Package pg_listener evicts cached cards when their rows change in postgres.
package pg_listener

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Channel is the NOTIFY channel the cards trigger publishes on.
const Channel = "card_change"

// Invalidator drops a card from the cache.
type Invalidator interface {
	InvalidateCard(ctx context.Context, id string) error
}

type ListenerConfig struct {
	PgConnStr string
	// Interval is the minimum reconnect backoff.
	Interval time.Duration
	// Timeout is the maximum reconnect backoff.
	Timeout time.Duration
	// Ping is how long the listener may sit idle before checking the connection.
	Ping time.Duration
}

type CardListener struct {
	config  ListenerConfig
	handler Invalidator
}

// payload is published by the trigger. Older triggers send the bare card id instead.
type payload struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

func NewCardListener(config ListenerConfig, handler Invalidator) *CardListener {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	if config.Ping <= 0 {
		config.Ping = 90 * time.Second
	}
	return &CardListener{config: config, handler: handler}
}

// Start listens until ctx is cancelled.
func (d *CardListener) Start(ctx context.Context) error {
	listener := pq.NewListener(d.config.PgConnStr, d.config.Interval, d.config.Timeout, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logrus.WithError(err).Warn("card listener connection event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return err
	}
	logrus.WithField("channel", Channel).Info("listening for card changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notifications sent while disconnected are lost
			if n == nil {
				continue
			}
			d.handleNotification(ctx, n.Extra)
		case <-time.After(d.config.Ping):
			if err := listener.Ping(); err != nil {
				logrus.WithError(err).Warn("card listener ping failed")
			}
		}
	}
}

func (d *CardListener) handleNotification(ctx context.Context, extra string) {
	id := cardID(extra)
	if id == "" {
		logrus.WithField("payload", extra).Warn("card notification without an id")
		return
	}
	if err := d.handler.InvalidateCard(ctx, id); err != nil {
		logrus.WithError(err).WithField("card_id", id).Error("failed to invalidate card")
	}
}

func cardID(extra string) string {
	extra = strings.TrimSpace(extra)
	if !strings.HasPrefix(extra, "{") {
		return extra
	}
	var p payload
	if err := json.Unmarshal([]byte(extra), &p); err != nil {
		return ""
	}
	return p.ID
}
