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

package notification

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/cardsettle/config"
)

func TestNewSlackMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := newSlackMessage("Card Settle", errors.New("keeper \"down\""), at)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Error From Card Settle")
	assert.Contains(t, string(raw), `keeper \"down\"`)
	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "header", msg.Blocks[0].Type)
}

func TestSlackNotification(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config.MockConfig(&config.Configuration{
		ProjectName:  "Card Settle",
		Notification: config.Notification{Slack: config.SlackWebhook{WebhookUrl: server.URL}},
	})

	SlackNotification(errors.New("unexpected trace failure"))

	select {
	case body := <-received:
		assert.Contains(t, body, "unexpected trace failure")
	case <-time.After(time.Second):
		t.Fatal("slack webhook was not called")
	}
}

func TestNotifyErrorWithoutSlack(t *testing.T) {
	config.MockConfig(&config.Configuration{ProjectName: "Card Settle"})
	assert.NotPanics(t, func() { NotifyError(errors.New("boom")) })
}
