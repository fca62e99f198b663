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
	"embed"
	"fmt"
	"time"

	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/database"
	"github.com/dogan-ai/redflags/internal/evidence"
	"github.com/dogan-ai/redflags/internal/notification"
	redis_db "github.com/dogan-ai/redflags/internal/redis-db"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("redflags")

// RedFlags runs remediation agents and incident mode for detected red flags.
type RedFlags struct {
	datasource database.IDataSource
	queue      *Queue
	redis      redis.UniversalClient
	evidence   evidence.Store
	notifier   notification.Notifier
	config     *config.Configuration
	now        func() time.Time
}

// NewRedFlags wires the service around db. Without a Redis DNS the queue and the per-entity
// lock are disabled and queued jobs run inline.
func NewRedFlags(db database.IDataSource) (*RedFlags, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	store, err := evidence.NewStore(cfg.Evidence)
	if err != nil {
		return nil, err
	}

	rf := &RedFlags{
		datasource: db,
		evidence:   store,
		notifier:   notification.NewDispatcher(cfg.Notification),
		config:     cfg,
		now:        time.Now,
	}

	if cfg.Redis.Dns != "" {
		redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", cfg.Redis.Dns)}, cfg.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		rf.redis = redisClient.Client()

		rf.queue, err = NewQueue(cfg)
		if err != nil {
			return nil, err
		}
		notification.RegisterWebhookSender(rf.sendSystemWebhook)
	}

	return rf, nil
}

func (r *RedFlags) Close() error {
	var err error
	if r.queue != nil {
		err = r.queue.Close()
	}
	if r.redis != nil {
		if closeErr := r.redis.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
