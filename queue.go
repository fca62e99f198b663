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

package redflags

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/dogan-ai/redflags/config"
	redis_db "github.com/dogan-ai/redflags/internal/redis-db"
	"github.com/dogan-ai/redflags/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	TaskAgentJob = "agent:execute"
	TaskWebhook  = "webhook:deliver"
)

// Queue hands agent jobs and webhook deliveries to the asynq workers.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	conf      config.QueueConfig
}

// AgentJobPayload is the task body of an agent job. The job row stays the source of truth.
type AgentJobPayload struct {
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`
}

// RedisConnOpt converts the configured Redis DNS into asynq connection options.
func RedisConnOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Username:  redisOption.Username,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := RedisConnOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}

	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		conf:      conf.Queue,
	}, nil
}

// EnqueueAgentJob places the job on the queue shard owning its entity, so jobs for one entity
// are picked up in order. Duplicate deliveries are harmless: a job that already left the queued
// state is rejected by ExecuteAgent.
func (q *Queue) EnqueueAgentJob(ctx context.Context, job *model.AgentJob) error {
	ctx, span := tracer.Start(ctx, "EnqueueAgentJob")
	defer span.End()

	payload, err := json.Marshal(AgentJobPayload{JobID: job.JobID, TenantID: job.TenantID})
	if err != nil {
		return err
	}

	queueName := AgentQueueName(q.conf, job.LockKey())
	task := asynq.NewTask(TaskAgentJob, payload, asynq.Queue(queueName), asynq.MaxRetry(q.conf.MaxRetryAttempts))
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		logrus.WithError(err).WithField("job_id", job.JobID).Error("failed to enqueue agent job")
		return err
	}

	logrus.WithFields(logrus.Fields{"job_id": job.JobID, "queue": info.Queue, "task_id": info.ID}).Info("agent job enqueued")
	return nil
}

func (q *Queue) EnqueueWebhook(ctx context.Context, hook Webhook) error {
	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskWebhook, payload, asynq.Queue(q.conf.WebhookQueue), asynq.MaxRetry(q.conf.MaxRetryAttempts))
	if _, err := q.Client.EnqueueContext(ctx, task); err != nil {
		logrus.WithError(err).WithField("event", hook.Event).Error("failed to enqueue webhook")
		return err
	}
	return nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close queue inspector")
	}
	return q.Client.Close()
}

// AgentQueueName maps an entity key onto one of the numbered agent queues.
func AgentQueueName(conf config.QueueConfig, key string) string {
	index := hashKey(key) % conf.NumberOfQueues
	return fmt.Sprintf("%s_%d", conf.AgentQueue, index+1)
}

// WorkerQueues lists every queue a worker polls, with equal priority.
func WorkerQueues(conf config.QueueConfig) map[string]int {
	queues := make(map[string]int, conf.NumberOfQueues+1)
	for i := 1; i <= conf.NumberOfQueues; i++ {
		queues[fmt.Sprintf("%s_%d", conf.AgentQueue, i)] = 1
	}
	queues[conf.WebhookQueue] = 1
	return queues
}

func hashKey(key string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return int(hasher.Sum32())
}
