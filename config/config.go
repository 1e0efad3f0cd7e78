package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string        `env:"APP_NAME" env-default:"sprout" validate:"required"`
	Version                       string        `env:"APP_VERSION" env-default:"dev"`
	Port                          int           `env:"PORT" env-default:"3004" validate:"min=1,max=65535"`
	LogLevel                      string        `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool          `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int           `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int           `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int           `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	ReadHeaderTimeoutSeconds      int           `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int           `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"`
	AllowOrigins                  []string      `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string      `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT"`
	StartupMaxAttempts            int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`
	ShutdownTimeout               time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	// Venue registry
	RegistryDriver                string        `env:"REGISTRY_DRIVER" env-default:"memory" validate:"oneof=memory postgres"`
	DatabaseHost                  string        `env:"DB_HOST" validate:"required_if=RegistryDriver postgres"`
	DatabasePort                  int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME"`
	DatabasePassword              string        `env:"DB_PASSWORD"`
	DatabaseName                  string        `env:"DB_NAME" env-default:"sprout"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0" validate:"min=0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Locks and quarantine
	LockDriver        string        `env:"LOCK_DRIVER" env-default:"local" validate:"oneof=local redis"`
	LockTTL           time.Duration `env:"LOCK_TTL" env-default:"30s"`
	LockWait          time.Duration `env:"LOCK_WAIT" env-default:"10s"`
	QuarantineDriver  string        `env:"QUARANTINE_DRIVER" env-default:"memory" validate:"oneof=memory redis"`
	QuarantineStream  string        `env:"QUARANTINE_STREAM" env-default:"sprout:quarantine"`
	QuarantineMaxLen  int           `env:"QUARANTINE_MAX_LEN" env-default:"10000" validate:"min=1"`
	RedisHost         string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort         int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" env-default:"0"`
	RedisPoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"20"`
	RedisDialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	RedisReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	RedisWriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`

	// Kafka consumer (source records)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic      string   `env:"KAFKA_INPUT_TOPIC" env-default:"source-records"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"sprout-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`

	// Kafka producer (venue events)
	KafkaProducerEnabled bool   `env:"KAFKA_PRODUCER_ENABLED" env-default:"false"`
	KafkaOutputTopic     string `env:"KAFKA_OUTPUT_TOPIC" env-default:"venue-events"`
	KafkaBatchSize       int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout    int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1" validate:"oneof=-1 0 1"`
	KafkaCompression     string `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Processing
	RulesFile             string        `env:"RULES_FILE"`
	AllowAddressOnlyMatch bool          `env:"ALLOW_ADDRESS_ONLY_MATCH" env-default:"false"`
	MaxBatchSize          int           `env:"MAX_BATCH_SIZE" env-default:"1000" validate:"min=1"`
	RescoreInterval       time.Duration `env:"RESCORE_INTERVAL" env-default:"24h"`

	// Tracing
	TracingExporter   string  `env:"TRACING_EXPORTER" env-default:"none" validate:"oneof=none otlp"`
	TracingEndpoint   string  `env:"TRACING_ENDPOINT" env-default:"localhost:4318"`
	TracingInsecure   bool    `env:"TRACING_INSECURE" env-default:"true"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" env-default:"1" validate:"min=0,max=1"`
}

// Load reads an optional .env file, then binds environment variables over the tag defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// DSN returns the postgres connection string
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode,
	)
}
