package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// envPrefix — префикс переменных окружения сервиса (ORDERS_HTTP_ADDR и т.д.).
const envPrefix = "ORDERS"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	SeedOnStart         bool

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration

	LogLevel  string
	LogFormat string

	// OTelEndpoint — OTLP gRPC коллектор; пусто — спаны не экспортируются.
	OTelEndpoint    string
	OTelServiceName string
}

// DefaultConfig возвращает настройки по умолчанию: in-memory хранилище без Kafka.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SeedOnStart:         true,
		KafkaTopic:          kafka.TopicOrderEvents,
		KafkaDLQTopic:       kafka.TopicDeadLetterQueue,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		CORSAllowedOrigins:  []string{"*"},
		ShutdownTimeout:     5 * time.Second,
		LogLevel:            "info",
		LogFormat:           "text",
		OTelServiceName:     "order-store",
	}
}

// newViper создаёт экземпляр viper с дефолтами и привязкой к окружению.
func newViper() *viper.Viper {
	def := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("storage_driver", def.StorageDriver)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("postgres_auto_migrate", def.PostgresAutoMigrate)
	v.SetDefault("seed_on_start", def.SeedOnStart)
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", def.KafkaTopic)
	v.SetDefault("kafka_dlq_topic", def.KafkaDLQTopic)
	v.SetDefault("outbox_poll_interval", def.OutboxPollInterval)
	v.SetDefault("outbox_batch_size", def.OutboxBatchSize)
	v.SetDefault("outbox_max_attempts", def.OutboxMaxAttempts)
	v.SetDefault("outbox_retry_delay", def.OutboxRetryDelay)
	v.SetDefault("cors_allowed_origins", strings.Join(def.CORSAllowedOrigins, ","))
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("otel_service_name", def.OTelServiceName)

	return v
}

// LoadConfig читает настройки из .env-файлов (если они есть), необязательного
// config.yaml и переменных окружения ORDERS_*. Окружение имеет приоритет.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/order-store")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return configFromViper(v)
}

func configFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:            v.GetString("http_addr"),
		MetricsAddr:         v.GetString("metrics_addr"),
		StorageDriver:       strings.ToLower(strings.TrimSpace(v.GetString("storage_driver"))),
		PostgresDSN:         v.GetString("postgres_dsn"),
		PostgresAutoMigrate: v.GetBool("postgres_auto_migrate"),
		SeedOnStart:         v.GetBool("seed_on_start"),
		KafkaBrokers:        splitList(v.GetString("kafka_brokers")),
		KafkaTopic:          v.GetString("kafka_topic"),
		KafkaDLQTopic:       v.GetString("kafka_dlq_topic"),
		OutboxPollInterval:  v.GetDuration("outbox_poll_interval"),
		OutboxBatchSize:     v.GetInt("outbox_batch_size"),
		OutboxMaxAttempts:   v.GetInt("outbox_max_attempts"),
		OutboxRetryDelay:    v.GetDuration("outbox_retry_delay"),
		CORSAllowedOrigins:  splitList(v.GetString("cors_allowed_origins")),
		ShutdownTimeout:     v.GetDuration("shutdown_timeout"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
		OTelEndpoint:        strings.TrimSpace(v.GetString("otel_endpoint")),
		OTelServiceName:     v.GetString("otel_service_name"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет сочетания настроек, с которыми сервис не сможет стартовать.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s_POSTGRES_DSN is required for storage driver %q", envPrefix, StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("%s_HTTP_ADDR must not be empty", envPrefix)
	}
	return nil
}

// Warnings возвращает замечания к настройкам, которые не мешают запуску.
func (c Config) Warnings() []string {
	var warnings []string
	if c.StorageDriver == StorageDriverMemory && c.PostgresDSN != "" {
		warnings = append(warnings, "postgres dsn is set but storage driver is memory, dsn is ignored")
	}
	if len(c.KafkaBrokers) == 0 {
		warnings = append(warnings, "kafka brokers are not configured, change events are not published")
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxPollInterval <= 0 {
		warnings = append(warnings, "non-positive outbox settings are replaced with defaults")
	}
	for _, origin := range c.CORSAllowedOrigins {
		if origin == "*" {
			warnings = append(warnings, "CORS allows any origin")
			break
		}
	}
	return warnings
}

// splitList разбирает список через запятую, отбрасывая пустые элементы.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
