// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
	OTel     OTelConfig     `mapstructure:"otel"`
}

// ServerConfig holds HTTP server configuration and the staged shutdown timings.
type ServerConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	Mode    string        `mapstructure:"mode"` // development or production
	PreWait time.Duration `mapstructure:"pre_wait"`
	Grace   time.Duration `mapstructure:"grace"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Development reports whether the pre-wait should be skipped.
func (s ServerConfig) Development() bool {
	return strings.EqualFold(s.Mode, "development")
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 or pgx
	DSN    string `mapstructure:"dsn"`
}

// GitHubConfig holds GitHub API configuration.
type GitHubConfig struct {
	URL            string        `mapstructure:"url"`
	Token          string        `mapstructure:"token"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"`
	RetryInitial   time.Duration `mapstructure:"retry_initial"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	WebhookEnabled bool          `mapstructure:"webhook_enabled"`
}

// SlackConfig holds slash command settings. An empty signing secret
// disables request verification.
type SlackConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
}

// TopicConfig describes one Kafka topic.
type TopicConfig struct {
	Name              string `mapstructure:"name"`
	Partitions        int    `mapstructure:"partitions"`
	ReplicationFactor int    `mapstructure:"replication_factor"`
}

// TopicsConfig groups the three topics the service touches.
type TopicsConfig struct {
	Event        TopicConfig `mapstructure:"event"`
	Notification TopicConfig `mapstructure:"notification"`
	Subscription TopicConfig `mapstructure:"subscription"`
}

// All returns the topics in creation order.
func (t TopicsConfig) All() []TopicConfig {
	return []TopicConfig{t.Event, t.Notification, t.Subscription}
}

// KafkaConfig holds broker configuration.
type KafkaConfig struct {
	BootstrapServers string       `mapstructure:"bootstrap_servers"`
	GroupID          string       `mapstructure:"group_id"`
	Codec            string       `mapstructure:"codec"`
	Compression      string       `mapstructure:"compression"`
	CreateTopics     bool         `mapstructure:"create_topics"`
	Topics           TopicsConfig `mapstructure:"topics"`
}

// Brokers splits the comma separated bootstrap list.
func (k KafkaConfig) Brokers() []string {
	var out []string
	for _, b := range strings.Split(k.BootstrapServers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// PipelineConfig tunes the notification pipeline.
type PipelineConfig struct {
	RecordTimeout time.Duration `mapstructure:"record_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// OTelConfig holds tracing exporter configuration.
type OTelConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// legacyEnv maps configuration keys to the bare environment names used by
// existing deployments.
var legacyEnv = map[string]string{
	"server.host":                    "HOST",
	"server.port":                    "PORT",
	"database.dsn":                   "POSTGRES_URL",
	"github.token":                   "GITHUB_TOKEN",
	"slack.signing_secret":           "SLACK_SIGNING_SECRET",
	"kafka.bootstrap_servers":        "BOOTSTRAP_SERVERS",
	"kafka.topics.event.name":        "EVENT_TOPIC",
	"kafka.topics.notification.name": "NOTIFICATION_TOPIC",
	"kafka.topics.subscription.name": "SUBSCRIPTION_TOPIC",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "production")
	v.SetDefault("server.pre_wait", 30*time.Second)
	v.SetDefault("server.grace", time.Second)
	v.SetDefault("server.timeout", 5*time.Second)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./data/alerts.db")

	v.SetDefault("github.url", "https://api.github.com/")
	v.SetDefault("github.retry_attempts", 3)
	v.SetDefault("github.retry_initial", time.Second)
	v.SetDefault("github.webhook_enabled", false)

	v.SetDefault("slack.signing_secret", "")

	v.SetDefault("kafka.bootstrap_servers", "localhost:9092")
	v.SetDefault("kafka.group_id", "github-event-consumer")
	v.SetDefault("kafka.codec", "json")
	v.SetDefault("kafka.compression", "none")
	v.SetDefault("kafka.create_topics", true)
	for key, name := range map[string]string{
		"event":        "events",
		"notification": "notifications",
		"subscription": "subscriptions",
	} {
		v.SetDefault("kafka.topics."+key+".name", name)
		v.SetDefault("kafka.topics."+key+".partitions", 1)
		v.SetDefault("kafka.topics."+key+".replication_factor", 1)
	}

	v.SetDefault("pipeline.record_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.service_name", "githubalerts")
	v.SetDefault("otel.sample_ratio", 1.0)
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.New(), configPath)
}

// LoadWith is Load on a caller supplied viper instance, which lets the CLI
// bind flags before the values are read.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Read environment variables
	v.SetEnvPrefix("ALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "ALERTS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks if all required configuration fields are set.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if len(c.Kafka.Brokers()) == 0 {
		return fmt.Errorf("kafka bootstrap servers are required")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("kafka group id is required")
	}
	for _, t := range c.Kafka.Topics.All() {
		if t.Name == "" {
			return fmt.Errorf("kafka topic name is required")
		}
		if t.Partitions < 1 || t.ReplicationFactor < 1 {
			return fmt.Errorf("topic %s: partitions and replication factor must be positive", t.Name)
		}
	}
	switch c.Kafka.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("unsupported kafka codec %q", c.Kafka.Codec)
	}
	switch strings.ToLower(c.Kafka.Compression) {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("unsupported kafka compression %q", c.Kafka.Compression)
	}
	if c.GitHub.RetryAttempts < 1 {
		return fmt.Errorf("github retry attempts must be at least 1")
	}
	if c.Server.PreWait < 0 || c.Server.Grace < 0 || c.Server.Timeout < 0 {
		return fmt.Errorf("server shutdown durations must not be negative")
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		return fmt.Errorf("otel sample ratio must be within [0,1]")
	}
	return nil
}

// ServerAddress returns the full server address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
