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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jerry-enebeli/cardsettle"
	"github.com/jerry-enebeli/cardsettle/api/middleware"
	"github.com/jerry-enebeli/cardsettle/config"
	"github.com/jerry-enebeli/cardsettle/internal/metrics"
	"github.com/jerry-enebeli/cardsettle/model"
)

// Processor handles a verified issuer event.
type Processor interface {
	Process(ctx context.Context, event *model.Event) (cardsettle.Outcome, error)
}

type Api struct {
	settle   Processor
	router   *gin.Engine
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	if a.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	conf, err := config.Fetch()
	if err != nil {
		return router
	}
	webhooks := router.Group("/webhooks")
	webhooks.Use(middleware.SignatureMiddleware(conf.Issuer.WebhookSecret))
	webhooks.POST("/card", a.HandleCardWebhook)
	return router
}

// NewAPI builds the webhook server. gatherer backs /metrics and may be nil.
func NewAPI(s Processor, m *metrics.Metrics, gatherer prometheus.Gatherer) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.RateLimitMiddleware(conf))
	if conf.EnableTelemetry {
		r.Use(otelgin.Middleware(conf.ProjectName))
	}

	return &Api{settle: s, router: r, metrics: m, gatherer: gatherer}
}
