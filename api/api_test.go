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
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/cardsettle"
	"github.com/jerry-enebeli/cardsettle/api/middleware"
	"github.com/jerry-enebeli/cardsettle/config"
	"github.com/jerry-enebeli/cardsettle/internal/apierror"
	"github.com/jerry-enebeli/cardsettle/internal/metrics"
	"github.com/jerry-enebeli/cardsettle/model"
)

const webhookSecret = "whsec_test"

const createdEvent = `{"id":"evt_1","resource":"transaction","action":"created","body":{"id":"tx_1","spend":{"amount":700,"authorizedAmount":700,"cardId":"card_1","status":"pending"}}}`

type fakeProcessor struct {
	outcome cardsettle.Outcome
	err     error
	events  []*model.Event
}

func (p *fakeProcessor) Process(_ context.Context, event *model.Event) (cardsettle.Outcome, error) {
	p.events = append(p.events, event)
	return p.outcome, p.err
}

func setupRouter(t *testing.T, p Processor) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		ProjectName: "Card Settle",
		Issuer:      config.IssuerConfig{WebhookSecret: webhookSecret},
	})
	reg := prometheus.NewRegistry()
	a := NewAPI(p, metrics.New(reg), reg)
	require.NotNil(t, a)
	return a.Router(), reg
}

func postWebhook(router *gin.Engine, body string, signed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/card", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signed {
		req.Header.Set(middleware.SignatureHeader, middleware.Sign(webhookSecret, []byte(body)))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleCardWebhook_Success(t *testing.T) {
	p := &fakeProcessor{outcome: cardsettle.Outcome{
		Operation: cardsettle.OperationCollect,
		Kind:      cardsettle.KindHold,
		Hashes:    []string{"0x01"},
	}}
	router, _ := setupRouter(t, p)

	w := postWebhook(router, createdEvent, true)
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "collect", response["operation"])
	assert.Equal(t, "hold", response["kind"])

	require.Len(t, p.events, 1)
	assert.Equal(t, "tx_1", p.events[0].Body.ID)
	assert.Equal(t, int64(700), p.events[0].Body.Spend.Amount)
}

func TestHandleCardWebhook_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"Reverted", apierror.NewAPIError(apierror.ErrTxReverted, "reverted", nil), 550},
		{"Bad collection", apierror.NewAPIError(apierror.ErrBadCollection, "mismatch", nil), 551},
		{"Card not found", apierror.NewAPIError(apierror.ErrCardNotFound, "missing", nil), 552},
		{"Prior not found", cardsettle.ErrPriorNotFound, 553},
		{"Lock timeout", apierror.NewAPIError(apierror.ErrLockTimeout, "busy", nil), 554},
		{"Suspicious", apierror.NewAPIError(apierror.ErrSuspicious, "force capture failed", nil), 556},
		{"Insufficient funds", apierror.NewAPIError(apierror.ErrInsufficientFunds, "no funds", nil), 557},
		{"Bad request", apierror.NewAPIError(apierror.ErrBadRequest, "bad", nil), http.StatusBadRequest},
		{"Ledger failure", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", errors.New("connection reset")), 569},
		{"Unexpected", errors.New("rpc down"), 569},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupRouter(t, &fakeProcessor{err: tt.err})
			w := postWebhook(router, createdEvent, true)
			assert.Equal(t, tt.expected, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.NotEmpty(t, response["error"])
		})
	}
}

func TestHandleCardWebhook_Rejections(t *testing.T) {
	p := &fakeProcessor{}
	router, _ := setupRouter(t, p)

	w := postWebhook(router, createdEvent, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(router, `{"id":`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postWebhook(router, `{"id":"evt_1","resource":"invoice","action":"created","body":{}}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, p.events)
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := setupRouter(t, &fakeProcessor{})
	postWebhook(router, createdEvent, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "UP")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cardsettle_webhooks_handled_total")
}
