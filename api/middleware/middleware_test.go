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
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jerry-enebeli/cardsettle/config"
)

func newSignedRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SignatureMiddleware(secret))
	r.POST("/webhooks/card", func(c *gin.Context) {
		raw, _ := c.Get(RawBodyKey)
		body, _ := io.ReadAll(c.Request.Body)
		if verified, ok := raw.([]byte); !ok || !bytes.Equal(verified, body) {
			c.Status(http.StatusTeapot)
			return
		}
		c.String(http.StatusOK, string(body))
	})
	return r
}

func TestSignatureMiddleware(t *testing.T) {
	body := `{"id":"evt_1","resource":"transaction"}`

	tests := []struct {
		name      string
		secret    string
		signature string
		expected  int
	}{
		{"Valid signature", "secret", Sign("secret", []byte(body)), http.StatusOK},
		{"Uppercase hex", "secret", strings.ToUpper(Sign("secret", []byte(body))), http.StatusOK},
		{"Wrong secret", "secret", Sign("other", []byte(body)), http.StatusUnauthorized},
		{"Not hex", "secret", "zz", http.StatusUnauthorized},
		{"Missing signature", "secret", "", http.StatusUnauthorized},
		{"No secret configured", "", Sign("", []byte(body)), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/card", strings.NewReader(body))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			w := httptest.NewRecorder()
			newSignedRouter(tt.secret).ServeHTTP(w, req)

			assert.Equal(t, tt.expected, w.Code)
			if tt.expected == http.StatusOK {
				assert.Equal(t, body, w.Body.String())
			}
		})
	}
}

func TestSignatureDetectsTampering(t *testing.T) {
	signature := Sign("secret", []byte(`{"amount":700}`))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/card", strings.NewReader(`{"amount":70000}`))
	req.Header.Set(SignatureHeader, signature)
	w := httptest.NewRecorder()
	newSignedRouter("secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rps, burst, cleanup := 1.0, 1, 60
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{
		RequestsPerSecond:  &rps,
		Burst:              &burst,
		CleanupIntervalSec: &cleanup,
	}}

	r := gin.New()
	r.Use(RateLimitMiddleware(conf))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(&config.Configuration{}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req_1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req_1", w.Header().Get(RequestIDHeader))
}
