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

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/cardsettle"
	"github.com/jerry-enebeli/cardsettle/config"
	redis_db "github.com/jerry-enebeli/cardsettle/internal/redis-db"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// deliverPush wraps the push delivery handler in a span so queue latency shows up next to the webhook trace.
func deliverPush(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("cardsettle.push.worker").Start(ctx, "Deliver Push Notification")
	defer span.End()

	if err := cardsettle.ProcessPushTask(ctx, t); err != nil {
		taskID, _ := asynq.GetTaskID(ctx)
		retryCount, _ := asynq.GetRetryCount(ctx)
		logrus.WithFields(logrus.Fields{
			"task_id": taskID,
			"retry":   retryCount,
		}).WithError(err).Warn("push notification pushed back for retry")
		return err
	}
	return nil
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %v", err)
	}
	opt := redis_db.AsynqOpt(redisOption)

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      map[string]int{conf.Queue.PushQueue: 1},
	}), opt, nil
}

// workerCommands defines the "workers" command that delivers queued push notifications.
func workerCommands(app *instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start cardsettle workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := app.cnf

			phClient, shutdown, err := initializeObservability(ctx, conf)
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

			srv, redisOpt, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			mux.HandleFunc(cardsettle.PushTask, deliverPush)

			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: redisOpt,
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
