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
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/internal/request"
	"github.com/dogan-ai/redflags/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Webhook is an outbound event.
type Webhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

const (
	EventIncidentActivated = "incident.activated"
	EventIncidentResolved  = "incident.resolved"
)

// jobEvent maps a job's final status to its webhook event.
func jobEvent(status model.JobStatus) string {
	switch status {
	case model.JobQueued:
		return "agent_job.queued"
	case model.JobCompleted:
		return "agent_job.completed"
	case model.JobFailed:
		return "agent_job.failed"
	default:
		return "agent_job.unknown"
	}
}

// SendWebhook enqueues hook for delivery. It is a no-op without a queue or a webhook URL.
func (r *RedFlags) SendWebhook(ctx context.Context, hook Webhook) error {
	if r.queue == nil || r.config.Notification.Webhook.Url == "" {
		return nil
	}
	return r.queue.EnqueueWebhook(ctx, hook)
}

// publish sends hook and only logs failures; events never fail the operation that raised them.
func (r *RedFlags) publish(ctx context.Context, hook Webhook) {
	if err := r.SendWebhook(ctx, hook); err != nil {
		logrus.WithError(err).WithField("event", hook.Event).Warn("failed to publish webhook")
	}
}

func (r *RedFlags) sendSystemWebhook(event string, payload interface{}) error {
	return r.SendWebhook(context.Background(), Webhook{Event: event, Payload: payload})
}

// ProcessWebhook delivers a queued webhook. Client errors are not retried.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var hook Webhook
	if err := json.Unmarshal(task.Payload(), &hook); err != nil {
		return fmt.Errorf("malformed webhook payload: %v: %w", err, asynq.SkipRetry)
	}

	logrus.WithField("event", hook.Event).Info("processing webhook")
	return deliverWebhook(ctx, conf.Notification.Webhook, hook, 30*time.Second)
}

func deliverWebhook(ctx context.Context, conf config.WebhookConfig, hook Webhook, maxElapsed time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = maxElapsed

	err := backoff.Retry(func() error {
		_, err := request.PostJSON(ctx, conf.Url, hook, conf.Headers)
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return fmt.Errorf("webhook %s rejected: %v: %w", hook.Event, err, asynq.SkipRetry)
		}
		return err
	}

	logrus.WithField("event", hook.Event).Info("webhook delivered")
	return nil
}
