package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	// Redis is optional
	cnf = Configuration{
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
	}
	err = cnf.validateAndAddDefaults()
	assert.NoError(t, err)
	assert.Equal(t, "Red Flags", cnf.ProjectName)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, DEFAULT_AGENT_QUEUE, cnf.Queue.AgentQueue)
	assert.Equal(t, DEFAULT_WEBHOOK_QUEUE, cnf.Queue.WebhookQueue)
	assert.Equal(t, DEFAULT_NUMBER_OF_QUEUES, cnf.Queue.NumberOfQueues)
	assert.Equal(t, DEFAULT_LOCK_TIMEOUT, cnf.Agents.LockTimeoutSeconds)
	assert.Equal(t, DEFAULT_LOCK_WAIT, cnf.Agents.LockWaitSeconds)
	assert.Nil(t, cnf.RateLimit.RequestsPerSecond)
	assert.Nil(t, cnf.RateLimit.Burst)
}

func TestValidateAndAddDefaults_Evidence(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
		Evidence:   EvidenceConfig{Driver: "ftp"},
	}
	assert.EqualError(t, cnf.validateAndAddDefaults(), "evidence driver must be one of: s3, file")

	cnf.Evidence = EvidenceConfig{Driver: "S3"}
	assert.EqualError(t, cnf.validateAndAddDefaults(), "evidence S3 bucket name is required when the s3 driver is selected")

	cnf.Evidence = EvidenceConfig{Driver: "file"}
	assert.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, "./evidence", cnf.Evidence.Dir)
}

func TestValidateAndAddDefaults_RateLimit(t *testing.T) {
	rps := 10.0
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
		RateLimit:  RateLimitConfig{RequestsPerSecond: &rps},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	require.NotNil(t, cnf.RateLimit.Burst)
	assert.Equal(t, 20, *cnf.RateLimit.Burst)
	assert.Equal(t, 10800, *cnf.RateLimit.CleanupIntervalSec)
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "redflags.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource: DataSourceConfig{
			Dns: "temp-dns",
		},
		Redis: RedisConfig{
			Dns: "temp-redis",
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	t.Setenv("REDFLAGS_PROJECT_NAME", "Env Project")
	t.Setenv("REDFLAGS_QUEUE_NUMBER_OF_QUEUES", "4")

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	assert.Equal(t, "Env Project", loadedConfig.ProjectName)
	assert.Equal(t, "temp-dns", loadedConfig.DataSource.Dns)
	assert.Equal(t, "temp-redis", loadedConfig.Redis.Dns)
	assert.Equal(t, 4, loadedConfig.Queue.NumberOfQueues)
}

func TestInitConfig_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("REDFLAGS_DATA_SOURCE_DNS", "postgres://env-only")

	err := InitConfig("./does-not-exist.json")
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-only", cnf.DataSource.Dns)
	assert.Empty(t, cnf.Redis.Dns)
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{ProjectName: "Mock"})

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "Mock", cnf.ProjectName)
	assert.Equal(t, DEFAULT_AGENT_QUEUE, cnf.Queue.AgentQueue)
}
