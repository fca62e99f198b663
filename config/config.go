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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT             = "5001"
	DEFAULT_AGENT_QUEUE      = "agent_jobs"
	DEFAULT_WEBHOOK_QUEUE    = "webhook_queue"
	DEFAULT_NUMBER_OF_QUEUES = 20
	DEFAULT_MONITORING_PORT  = "5004"
	DEFAULT_MAX_RETRY        = 3
	DEFAULT_LOCK_TIMEOUT     = 300
	DEFAULT_LOCK_WAIT        = 30
	DEFAULT_MAX_OPEN_CONNS   = 25
	DEFAULT_MAX_IDLE_CONNS   = 10
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"REDFLAGS_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"REDFLAGS_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"REDFLAGS_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"REDFLAGS_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"REDFLAGS_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"REDFLAGS_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns             string        `json:"dns" envconfig:"REDFLAGS_DATA_SOURCE_DNS"`
	MaxOpenConns    int           `json:"max_open_conns" envconfig:"REDFLAGS_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" envconfig:"REDFLAGS_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" envconfig:"REDFLAGS_DATA_SOURCE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" envconfig:"REDFLAGS_DATA_SOURCE_CONN_MAX_IDLE_TIME"`
}

// RedisConfig is optional. Without it jobs run inline and no queue, lock or cache is used.
type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"REDFLAGS_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"REDFLAGS_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	AgentQueue       string `json:"agent_queue" envconfig:"REDFLAGS_QUEUE_AGENT"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"REDFLAGS_QUEUE_WEBHOOK"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"REDFLAGS_QUEUE_NUMBER_OF_QUEUES"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"REDFLAGS_QUEUE_MONITORING_PORT"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"REDFLAGS_QUEUE_MAX_RETRY_ATTEMPTS"`
}

type AgentConfig struct {
	LockTimeoutSeconds int `json:"lock_timeout_seconds" envconfig:"REDFLAGS_AGENTS_LOCK_TIMEOUT_SECONDS"`
	LockWaitSeconds    int `json:"lock_wait_seconds" envconfig:"REDFLAGS_AGENTS_LOCK_WAIT_SECONDS"`
}

// EvidenceConfig selects where sealed forensic payloads are written. Driver is "s3", "file" or empty.
type EvidenceConfig struct {
	Driver             string `json:"driver" envconfig:"REDFLAGS_EVIDENCE_DRIVER"`
	Dir                string `json:"dir" envconfig:"REDFLAGS_EVIDENCE_DIR"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"REDFLAGS_EVIDENCE_S3_BUCKET"`
	S3Region           string `json:"s3_region" envconfig:"REDFLAGS_EVIDENCE_S3_REGION"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"REDFLAGS_EVIDENCE_S3_ENDPOINT"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"REDFLAGS_EVIDENCE_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"REDFLAGS_EVIDENCE_AWS_SECRET_ACCESS_KEY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"REDFLAGS_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"REDFLAGS_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"REDFLAGS_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"REDFLAGS_SLACK_WEBHOOK_URL"`
}

type SendGridConfig struct {
	APIKey    string `json:"api_key" envconfig:"REDFLAGS_SENDGRID_API_KEY"`
	FromEmail string `json:"from_email" envconfig:"REDFLAGS_SENDGRID_FROM_EMAIL"`
	FromName  string `json:"from_name" envconfig:"REDFLAGS_SENDGRID_FROM_NAME"`
}

type TwilioConfig struct {
	AccountSID string `json:"account_sid" envconfig:"REDFLAGS_TWILIO_ACCOUNT_SID"`
	AuthToken  string `json:"auth_token" envconfig:"REDFLAGS_TWILIO_AUTH_TOKEN"`
	FromPhone  string `json:"from_phone" envconfig:"REDFLAGS_TWILIO_FROM_PHONE"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"REDFLAGS_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack    SlackWebhook   `json:"slack"`
	Webhook  WebhookConfig  `json:"webhook"`
	SendGrid SendGridConfig `json:"sendgrid"`
	Twilio   TwilioConfig   `json:"twilio"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"REDFLAGS_PROJECT_NAME"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	Agents          AgentConfig      `json:"agents"`
	Evidence        EvidenceConfig   `json:"evidence"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"REDFLAGS_ENABLE_TELEMETRY"`
	PosthogKey      string           `json:"posthog_key" envconfig:"REDFLAGS_POSTHOG_KEY"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("redflags", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called redflags.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Red Flags"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Agent jobs will run inline without a queue.")
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Queue.applyDefaults()
	cnf.DataSource.applyDefaults()

	if cnf.Agents.LockTimeoutSeconds <= 0 {
		cnf.Agents.LockTimeoutSeconds = DEFAULT_LOCK_TIMEOUT
	}
	if cnf.Agents.LockWaitSeconds <= 0 {
		cnf.Agents.LockWaitSeconds = DEFAULT_LOCK_WAIT
	}

	cnf.Evidence.Driver = strings.ToLower(strings.TrimSpace(cnf.Evidence.Driver))
	switch cnf.Evidence.Driver {
	case "", "file", "s3":
	default:
		return errors.New("evidence driver must be one of: s3, file")
	}
	if cnf.Evidence.Driver == "s3" && cnf.Evidence.S3BucketName == "" {
		return errors.New("evidence S3 bucket name is required when the s3 driver is selected")
	}
	if cnf.Evidence.Driver == "file" && cnf.Evidence.Dir == "" {
		cnf.Evidence.Dir = "./evidence"
		log.Printf("Warning: Evidence dir not specified. Setting default value: %s", cnf.Evidence.Dir)
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (d *DataSourceConfig) applyDefaults() {
	if d.MaxOpenConns <= 0 {
		d.MaxOpenConns = DEFAULT_MAX_OPEN_CONNS
	}
	if d.MaxIdleConns <= 0 {
		d.MaxIdleConns = DEFAULT_MAX_IDLE_CONNS
	}
	if d.ConnMaxLifetime <= 0 {
		d.ConnMaxLifetime = 30 * time.Minute
	}
	if d.ConnMaxIdleTime <= 0 {
		d.ConnMaxIdleTime = 5 * time.Minute
	}
}

func (q *QueueConfig) applyDefaults() {
	if q.AgentQueue == "" {
		q.AgentQueue = DEFAULT_AGENT_QUEUE
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if q.NumberOfQueues <= 0 {
		q.NumberOfQueues = DEFAULT_NUMBER_OF_QUEUES
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = DEFAULT_MONITORING_PORT
	}
	if q.MaxRetryAttempts <= 0 {
		q.MaxRetryAttempts = DEFAULT_MAX_RETRY
	}
}

// MockConfig sets a mock configuration for testing purposes. Queue and agent defaults are applied
// so callers only need to set what they care about.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Queue.applyDefaults()
	if mockConfig.Agents.LockTimeoutSeconds <= 0 {
		mockConfig.Agents.LockTimeoutSeconds = DEFAULT_LOCK_TIMEOUT
	}
	if mockConfig.Agents.LockWaitSeconds <= 0 {
		mockConfig.Agents.LockWaitSeconds = DEFAULT_LOCK_WAIT
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
