package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress())
	assert.Equal(t, 30*time.Second, cfg.Server.PreWait)
	assert.Equal(t, time.Second, cfg.Server.Grace)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
	assert.False(t, cfg.Server.Development())
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, uint(3), cfg.GitHub.RetryAttempts)
	assert.Equal(t, time.Second, cfg.GitHub.RetryInitial)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	assert.Equal(t, "github-event-consumer", cfg.Kafka.GroupID)
	assert.Equal(t, "events", cfg.Kafka.Topics.Event.Name)
	assert.Equal(t, "notifications", cfg.Kafka.Topics.Notification.Name)
	assert.Equal(t, "subscriptions", cfg.Kafka.Topics.Subscription.Name)
	assert.Equal(t, 1, cfg.Kafka.Topics.Event.Partitions)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ALERTS_SERVER_MODE", "development")
	t.Setenv("ALERTS_LOG_LEVEL", "debug")
	t.Setenv("BOOTSTRAP_SERVERS", "k1:9092, k2:9092")
	t.Setenv("EVENT_TOPIC", "raw-events")
	t.Setenv("PORT", "9090")
	t.Setenv("SLACK_SIGNING_SECRET", "shh")
	t.Setenv("ALERTS_KAFKA_COMPRESSION", "lz4")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Server.Development())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers())
	assert.Equal(t, "raw-events", cfg.Kafka.Topics.Event.Name)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "shh", cfg.Slack.SigningSecret)
	assert.Equal(t, "lz4", cfg.Kafka.Compression)
}

func TestLoad_PrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GITHUB_TOKEN", "legacy")
	t.Setenv("ALERTS_GITHUB_TOKEN", "prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.GitHub.Token)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
  pre_wait: 2s
kafka:
  codec: cbor
  topics:
    notification:
      name: slack-out
      partitions: 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.PreWait)
	assert.Equal(t, "cbor", cfg.Kafka.Codec)
	assert.Equal(t, "slack-out", cfg.Kafka.Topics.Notification.Name)
	assert.Equal(t, 3, cfg.Kafka.Topics.Notification.Partitions)
	assert.Equal(t, 1, cfg.Kafka.Topics.Notification.ReplicationFactor)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"dsn", func(c *Config) { c.Database.DSN = "" }},
		{"brokers", func(c *Config) { c.Kafka.BootstrapServers = " , " }},
		{"group", func(c *Config) { c.Kafka.GroupID = "" }},
		{"topic", func(c *Config) { c.Kafka.Topics.Subscription.Name = "" }},
		{"partitions", func(c *Config) { c.Kafka.Topics.Event.Partitions = 0 }},
		{"codec", func(c *Config) { c.Kafka.Codec = "avro" }},
		{"compression", func(c *Config) { c.Kafka.Compression = "brotli" }},
		{"retries", func(c *Config) { c.GitHub.RetryAttempts = 0 }},
		{"grace", func(c *Config) { c.Server.Grace = -time.Second }},
		{"ratio", func(c *Config) { c.OTel.SampleRatio = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
