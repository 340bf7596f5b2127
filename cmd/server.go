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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/cardsettle"
	"github.com/jerry-enebeli/cardsettle/api"
	"github.com/jerry-enebeli/cardsettle/config"
	"github.com/jerry-enebeli/cardsettle/database"
	"github.com/jerry-enebeli/cardsettle/internal/cache"
	"github.com/jerry-enebeli/cardsettle/internal/metrics"
	"github.com/jerry-enebeli/cardsettle/internal/notification"
	pg_listener "github.com/jerry-enebeli/cardsettle/internal/pg-listener"
	redis_db "github.com/jerry-enebeli/cardsettle/internal/redis-db"
	trace "github.com/jerry-enebeli/cardsettle/internal/traces"
)

// cardCacheTTL bounds how long a card stays in the process-local cache in front of redis.
const cardCacheTTL = time.Minute

/*
serveTLS starts an HTTPS server with TLS enabled using CertMagic for automatic certificate management.
If no domain is specified, the server will default to running on localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTPS server: %w", err)
	}
	return nil
}

// sendHeartbeat reports liveness to PostHog every five minutes.
func sendHeartbeat(client posthog.Client, heartbeatID string) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for range ticker.C {
			if err := client.Enqueue(posthog.Capture{
				DistinctId: heartbeatID,
				Event:      "server_heartbeat",
				Properties: map[string]interface{}{
					"timestamp": time.Now().UTC(),
				},
			}); err != nil {
				log.Printf("Failed to send heartbeat: %v", err)
			}
		}
	}()
}

func initializeTracing(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := trace.SetupOTelSDK(ctx, "CARDSETTLE")
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func initializePostHog(key string) (posthog.Client, error) {
	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: "https://us.i.posthog.com"})
	if err != nil {
		return nil, err
	}
	sendHeartbeat(client, uuid.New().String())
	return client, nil
}

// initializeObservability starts tracing and the PostHog heartbeat when telemetry is enabled.
func initializeObservability(ctx context.Context, cfg *config.Configuration) (posthog.Client, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.EnableTelemetry {
		return nil, noop, nil
	}

	shutdown, err := initializeTracing(ctx)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Notification.PosthogKey == "" {
		return nil, shutdown, nil
	}
	phClient, err := initializePostHog(cfg.Notification.PosthogKey)
	if err != nil {
		logrus.WithError(err).Warn("posthog heartbeat disabled")
		return nil, shutdown, nil
	}
	return phClient, shutdown, nil
}

// initializeDataSource connects redis for the card cache and postgres for cards and the ledger.
func initializeDataSource(cfg *config.Configuration) (database.IDataSource, func(), error) {
	rdb, err := redis_db.NewRedisClient(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to redis: %v", err)
	}

	db, err := database.NewDataSource(cfg, cache.NewCache(rdb.Client(), cardCacheTTL))
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}
	return db, func() { _ = rdb.Close() }, nil
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

/*
serverCommands returns the Cobra command responsible for starting the webhook server.
It connects the datasource and the chain, registers metrics and tracing, then serves the API.
*/
func serverCommands(app *instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start cardsettle server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			cfg := app.cnf

			phClient, shutdown, err := initializeObservability(ctx, cfg)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			db, closeDB, err := initializeDataSource(cfg)
			if err != nil {
				notification.NotifyError(err)
				log.Fatal(err)
			}
			defer closeDB()

			listenCtx, stopListening := context.WithCancel(ctx)
			defer stopListening()
			go func() {
				listener := pg_listener.NewCardListener(pg_listener.ListenerConfig{PgConnStr: cfg.DataSource.Dns}, db)
				if err := listener.Start(listenCtx); err != nil {
					logrus.WithError(err).Error("card change listener stopped")
				}
			}()

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(registry)

			settle, err := cardsettle.NewCardSettle(ctx, db, m)
			if err != nil {
				notification.NotifyError(err)
				log.Fatal(err)
			}
			defer settle.Close()

			router := api.NewAPI(settle, m, registry).Router()
			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
