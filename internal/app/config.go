package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nailflow/capacity/internal/clock"
	"github.com/nailflow/capacity/internal/messaging/kafka"
	"github.com/nailflow/capacity/internal/service/ledger"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string
	AuditTopic   string
	DLQTopic     string

	Timezone              string
	DefaultWeeklyCapacity int
	AdminToken            string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	IdempotencyTTL             time.Duration
	IdempotencyCleanupInterval time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию: in-memory хранилище,
// без Kafka, админ-поверхность закрыта (токен пустой).
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageMemory,
		PostgresAutoMigrate: true,

		AuditTopic: kafka.TopicAuditEvents,
		DLQTopic:   kafka.TopicDeadLetterQueue,

		Timezone:              clock.DefaultTimezone,
		DefaultWeeklyCapacity: ledger.DefaultWeeklyCapacity,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,

		IdempotencyTTL:             24 * time.Hour,
		IdempotencyCleanupInterval: 10 * time.Minute,
	}
}

// ReadConfig читает конфигурацию из окружения поверх значений по умолчанию.
// Некорректные значения тихо откатываются к дефолтам.
func ReadConfig() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("CAP_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("CAP_METRICS_ADDR", cfg.MetricsAddr)

	cfg.StorageDriver = strings.ToLower(envString("CAP_STORAGE_DRIVER", cfg.StorageDriver))
	cfg.PostgresDSN = envString("CAP_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("CAP_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.KafkaBrokers = envString("CAP_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.AuditTopic = envString("CAP_AUDIT_TOPIC", cfg.AuditTopic)
	cfg.DLQTopic = envString("CAP_DLQ_TOPIC", cfg.DLQTopic)

	cfg.Timezone = envString("CAP_TIMEZONE", cfg.Timezone)
	cfg.DefaultWeeklyCapacity = envPositiveInt("CAP_DEFAULT_WEEKLY_CAPACITY", cfg.DefaultWeeklyCapacity)
	cfg.AdminToken = envString("CAP_ADMIN_TOKEN", cfg.AdminToken)

	cfg.OutboxPollInterval = envDuration("CAP_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envPositiveInt("CAP_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envPositiveInt("CAP_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)

	cfg.IdempotencyTTL = envDuration("CAP_IDEMPOTENCY_TTL", cfg.IdempotencyTTL)
	cfg.IdempotencyCleanupInterval = envDuration("CAP_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)

	return cfg
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envPositiveInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
