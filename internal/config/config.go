// Package config provides configuration loading and management for Redline.
// It loads configuration from YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. REDLINE_REDIS_HOST.
const EnvPrefix = "REDLINE_"

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory runs an embedded store and in-memory archives.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses real backends (Redis, PostgreSQL, Kafka).
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// Config represents the complete application configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Pools    []PoolConfig   `yaml:"pools"`
	Reaper   ReaperConfig   `yaml:"reaper"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode" env:"STORAGE_MODE"`
}

// UseMemory returns true if the embedded store should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// UseStorage returns true if real storage backends should be used.
func (c *StorageConfig) UseStorage() bool {
	return c.Mode == StorageModeStorage
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"SERVER_HOST"`
	Port         int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
}

// RedisConfig holds connection settings for the shared store.
type RedisConfig struct {
	Host        string        `yaml:"host" env:"REDIS_HOST"`
	Port        int           `yaml:"port" env:"REDIS_PORT"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"REDIS_DB"`
	PoolSize    int           `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
}

// QueueConfig names the store structures of one queue namespace.
// Table names left empty are derived from Namespace.
type QueueConfig struct {
	Namespace         string `yaml:"namespace" env:"QUEUE_NAMESPACE"`
	ValuesTable       string `yaml:"values_table"`
	PendingList       string `yaml:"pending_list"`
	MessageStatsTable string `yaml:"message_stats_table"`
	DelayedSet        string `yaml:"delayed_set"`
	SegmentsSet       string `yaml:"segments_set"`

	// MaxRequeues caps requeues per message; 0 disables the cap.
	MaxRequeues int `yaml:"max_requeues" env:"QUEUE_MAX_REQUEUES"`
}

// PoolConfig declares a distribution pool saved at startup.
type PoolConfig struct {
	Name     string   `yaml:"name"`
	Segments []string `yaml:"segments"`
}

// ReaperConfig controls the delayed message reaper loop.
type ReaperConfig struct {
	Disabled  bool          `yaml:"disabled" env:"REAPER_DISABLED"`
	Interval  time.Duration `yaml:"interval" env:"REAPER_INTERVAL"`
	BatchSize int           `yaml:"batch_size" env:"REAPER_BATCH_SIZE"`
}

// KafkaConfig holds the optional Kafka ingress settings.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers       []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic         string   `yaml:"topic" env:"KAFKA_TOPIC"`
	ConsumerGroup string   `yaml:"consumer_group" env:"KAFKA_CONSUMER_GROUP"`

	// Pool assigns segments to records lacking a segment header.
	Pool string `yaml:"pool" env:"KAFKA_POOL"`
}

// PostgresConfig holds PostgreSQL connection settings for the dead-letter archive.
type PostgresConfig struct {
	Host         string `yaml:"host" env:"POSTGRES_HOST"`
	Port         int    `yaml:"port" env:"POSTGRES_PORT"`
	User         string `yaml:"user" env:"POSTGRES_USER"`
	Password     string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" env:"POSTGRES_DATABASE"`
	SSLMode      string `yaml:"ssl_mode" env:"POSTGRES_SSL_MODE"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // "json" or "text"

	// File enables a rotating log file next to stdout.
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from the specified YAML file path, applies
// REDLINE_* environment overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	// Clean the path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a validated configuration built only from defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}

	applyQueueDefaults(&cfg.Queue)

	// Reaper defaults
	if cfg.Reaper.Interval == 0 {
		cfg.Reaper.Interval = time.Second
	}
	if cfg.Reaper.BatchSize == 0 {
		cfg.Reaper.BatchSize = 100
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "redline-messages"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "redline-ingress"
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 10
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 2
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
	if cfg.Logger.MaxSizeMB == 0 {
		cfg.Logger.MaxSizeMB = 100
	}
	if cfg.Logger.MaxBackups == 0 {
		cfg.Logger.MaxBackups = 5
	}
	if cfg.Logger.MaxAgeDays == 0 {
		cfg.Logger.MaxAgeDays = 14
	}
}

func applyQueueDefaults(q *QueueConfig) {
	q.Namespace = strings.TrimSpace(q.Namespace)
	if q.Namespace == "" {
		q.Namespace = "redline"
	}
	if q.ValuesTable == "" {
		q.ValuesTable = q.Namespace + ":values"
	}
	if q.PendingList == "" {
		q.PendingList = q.Namespace + ":pending"
	}
	if q.MessageStatsTable == "" {
		q.MessageStatsTable = q.Namespace + ":stats"
	}
	if q.DelayedSet == "" {
		q.DelayedSet = q.Namespace + ":delayed"
	}
	if q.SegmentsSet == "" {
		q.SegmentsSet = q.Namespace + ":segments"
	}
}

// NewQueueConfig returns a QueueConfig with every name derived from namespace.
func NewQueueConfig(namespace string) QueueConfig {
	q := QueueConfig{Namespace: namespace}
	applyQueueDefaults(&q)
	return q
}

// ValuesTableName returns the hash holding message payloads.
func (c *QueueConfig) ValuesTableName() string { return c.ValuesTable }

// PendingListName returns the global pending list.
func (c *QueueConfig) PendingListName() string { return c.PendingList }

// MessageStatsTableName returns the hash holding per-message counters.
func (c *QueueConfig) MessageStatsTableName() string { return c.MessageStatsTable }

// DelayedSetName returns the sorted set of delayed messages.
func (c *QueueConfig) DelayedSetName() string { return c.DelayedSet }

// SegmentsSetName returns the set of segments that own a pending list.
func (c *QueueConfig) SegmentsSetName() string { return c.SegmentsSet }

// PoolSegmentsName returns the list holding the segments of pool.
func (c *QueueConfig) PoolSegmentsName(pool string) string {
	return c.Namespace + ":pool:" + pool
}

// PoolCursorName returns the round-robin counter of pool.
func (c *QueueConfig) PoolCursorName(pool string) string {
	return c.Namespace + ":pool-cursor:" + pool
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.MaxOpenConns,
	)
}
