// Package config provides configuration structures and validation for the application.
// It handles environment-based configuration for all major components including
// server settings, database connections, message queues, business rules and
// the encryption key used at the persistence boundary.
package config

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration (e.g., HTTP server, databases,
// message queues) and is validated during application startup.
type Config struct {
	Application  ApplicationConfig
	Logging      LoggingConfig
	Server       ServerConfig
	Kafka        KafkaConfig
	Postgres     PostgresConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	Outbox       OutboxConfig
	WorkerPool   WorkerPoolConfig
	Rules        RulesConfig
	Escrow       EscrowConfig
	Regulatory   RegulatoryConfig
	Encryption   EncryptionConfig
	Ledger       LedgerConfig
	ExchangeRate ExchangeRateConfig
	Resilience   ResilienceConfig
	Archival     ArchivalConfig
	Idempotency  IdempotencyConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	ConfirmationTopic string // Ledger confirmations waiting for processPayment
	EscalationTopic   string // Disputes handed to the support team
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration. An empty Address disables
// the idempotency store and the sweep lock.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// RulesConfig holds the jurisdiction's per-payment limits and trading window.
type RulesConfig struct {
	MinAmount        decimal.Decimal
	MaxAmount        decimal.Decimal
	DailyLimit       decimal.Decimal
	TradingStartHour int
	TradingEndHour   int
	ClosedDays       []time.Weekday
	Timezone         string
}

// EscrowConfig holds escrow creation and dispute parameters.
type EscrowConfig struct {
	Threshold          decimal.Decimal
	DurationDays       int
	DisputeWindowHours int
	LegalReference     string
	// GateCreationByTradingWindow applies the trading-window check to escrow
	// creation as well as release.
	GateCreationByTradingWindow bool
	// ResumeInterval is how often payments left ESCROW_PENDING by the gate
	// are retried.
	ResumeInterval  time.Duration
	ResumeBatchSize int
}

// RegulatoryConfig holds the amount tiers used for regulatory categories.
type RegulatoryConfig struct {
	HighValueThreshold   decimal.Decimal
	MediumValueThreshold decimal.Decimal
}

// EncryptionConfig holds the AES-256 key, hex encoded.
type EncryptionConfig struct {
	Key string
}

// KeyBytes decodes the configured key.
func (e EncryptionConfig) KeyBytes() ([]byte, error) {
	return hex.DecodeString(e.Key)
}

// LedgerConfig contains the external ledger API settings
type LedgerConfig struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
}

// ExchangeRateConfig contains exchange-rate lookup settings. When URL is empty
// the static PiToEGP rate is used.
type ExchangeRateConfig struct {
	URL     string
	PiToEGP decimal.Decimal
}

// ResilienceConfig bounds retries and configures the circuit breaker
// wrapped around external calls.
type ResilienceConfig struct {
	MaxAttempts             int
	BaseDelay               time.Duration
	MaxDelay                time.Duration
	BreakerFailureThreshold uint32
	BreakerCooldown         time.Duration
}

// ArchivalConfig contains archival sweep settings
type ArchivalConfig struct {
	Interval               time.Duration
	BatchSize              int
	EnforceRetentionExpiry bool
	LockTTL                time.Duration
}

// IdempotencyConfig contains HTTP idempotency-key settings
type IdempotencyConfig struct {
	TTL time.Duration
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.ConfirmationTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_CONFIRMATION_TOPIC is required")
	}
	if c.Kafka.EscalationTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_ESCALATION_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate business rules
	if !c.Rules.MinAmount.IsPositive() {
		validationErrors = append(validationErrors, "RULES_MIN_AMOUNT must be greater than 0")
	}
	if c.Rules.MaxAmount.LessThan(c.Rules.MinAmount) {
		validationErrors = append(validationErrors, "RULES_MAX_AMOUNT must not be less than RULES_MIN_AMOUNT")
	}
	if c.Rules.DailyLimit.LessThan(c.Rules.MaxAmount) {
		validationErrors = append(validationErrors, "RULES_DAILY_LIMIT must not be less than RULES_MAX_AMOUNT")
	}
	if c.Rules.TradingStartHour < 0 || c.Rules.TradingEndHour > 24 || c.Rules.TradingStartHour >= c.Rules.TradingEndHour {
		validationErrors = append(validationErrors, "RULES_TRADING_START_HOUR/RULES_TRADING_END_HOUR must form a range within 0-24")
	}
	if _, err := time.LoadLocation(c.Rules.Timezone); c.Rules.Timezone == "" || err != nil {
		validationErrors = append(validationErrors, "RULES_TIMEZONE must be a valid IANA zone")
	}

	// Validate escrow and regulatory config
	if !c.Escrow.Threshold.IsPositive() {
		validationErrors = append(validationErrors, "ESCROW_THRESHOLD must be greater than 0")
	}
	if c.Escrow.DurationDays <= 0 {
		validationErrors = append(validationErrors, "ESCROW_DURATION_DAYS must be greater than 0")
	}
	if c.Escrow.DisputeWindowHours <= 0 {
		validationErrors = append(validationErrors, "ESCROW_DISPUTE_WINDOW_HOURS must be greater than 0")
	}
	if c.Escrow.ResumeInterval <= 0 {
		validationErrors = append(validationErrors, "ESCROW_RESUME_INTERVAL must be greater than 0")
	}
	if c.Escrow.ResumeBatchSize <= 0 {
		validationErrors = append(validationErrors, "ESCROW_RESUME_BATCH_SIZE must be greater than 0")
	}
	if !c.Regulatory.MediumValueThreshold.LessThan(c.Regulatory.HighValueThreshold) {
		validationErrors = append(validationErrors, "REGULATORY_MEDIUM_VALUE_THRESHOLD must be less than REGULATORY_HIGH_VALUE_THRESHOLD")
	}

	// A missing key aborts startup; there is no default key.
	if c.Encryption.Key == "" {
		validationErrors = append(validationErrors, "ENCRYPTION_KEY is required")
	} else if key, err := c.Encryption.KeyBytes(); err != nil || len(key) != 32 {
		validationErrors = append(validationErrors, "ENCRYPTION_KEY must be 32 bytes hex encoded")
	}

	if c.Ledger.BaseURL == "" {
		validationErrors = append(validationErrors, "LEDGER_BASE_URL is required")
	}
	if c.Ledger.CallTimeout <= 0 {
		validationErrors = append(validationErrors, "LEDGER_CALL_TIMEOUT must be greater than 0")
	}
	if c.ExchangeRate.URL == "" && !c.ExchangeRate.PiToEGP.IsPositive() {
		validationErrors = append(validationErrors, "EXCHANGE_RATE_PI_TO_EGP must be greater than 0 when EXCHANGE_RATE_URL is empty")
	}

	// Validate resilience config
	if c.Resilience.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "RESILIENCE_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Resilience.BaseDelay <= 0 {
		validationErrors = append(validationErrors, "RESILIENCE_BASE_DELAY must be greater than 0")
	}
	if c.Resilience.BreakerFailureThreshold == 0 {
		validationErrors = append(validationErrors, "RESILIENCE_BREAKER_FAILURE_THRESHOLD must be greater than 0")
	}
	if c.Resilience.BreakerCooldown <= 0 {
		validationErrors = append(validationErrors, "RESILIENCE_BREAKER_COOLDOWN must be greater than 0")
	}

	// Validate archival config
	if c.Archival.Interval <= 0 {
		validationErrors = append(validationErrors, "ARCHIVAL_INTERVAL must be greater than 0")
	}
	if c.Archival.BatchSize <= 0 {
		validationErrors = append(validationErrors, "ARCHIVAL_BATCH_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}

// parseWeekdays turns a comma separated list of weekday names into time.Weekday values.
func parseWeekdays(raw string) ([]time.Weekday, error) {
	names := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
		"saturday": time.Saturday,
	}

	var days []time.Weekday
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		day, ok := names[name]
		if !ok {
			return nil, errors.New("unknown weekday " + part)
		}
		days = append(days, day)
	}
	return days, nil
}
