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

	"github.com/dogan-ai/redflags"
	"github.com/dogan-ai/redflags/config"
	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOption, err := redflags.RedisConnOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		redisOption,
		asynq.Config{
			Concurrency: conf.Queue.NumberOfQueues,
			Queues:      redflags.WorkerQueues(conf.Queue),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logrus.WithFields(logrus.Fields{
					"task":    task.Type(),
					"retried": retried,
					"max":     maxRetry,
				}).WithError(err).Warn("task failed")
			}),
		},
	), nil
}

func initializeTaskHandlers(app *redflagsInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(redflags.TaskAgentJob, app.redflags.ProcessAgentJob)
	mux.HandleFunc(redflags.TaskWebhook, redflags.ProcessWebhook)
}

// startMonitoring serves asynqmon under /monitoring on the queue monitoring port.
func startMonitoring(conf *config.Configuration) error {
	redisOption, err := redflags.RedisConnOpt(conf)
	if err != nil {
		return err
	}

	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
	return nil
}

// workerCommands starts the asynq workers that execute queued agent jobs and deliver webhooks.
func workerCommands(app *redflagsInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start redflags workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := app.cnf
			if conf.Redis.Dns == "" {
				log.Fatal("workers need a redis dns; without one agent jobs run inline on the server")
			}

			phClient, shutdown, err := initializeObservability(ctx, conf, "workers")
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

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(app, mux)

			if err := startMonitoring(conf); err != nil {
				log.Fatal(err)
			}

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
