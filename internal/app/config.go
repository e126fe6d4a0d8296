package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/sales/internal/service/orders"
)

const envPrefix = "SALES"

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"
)

// Драйверы платёжного шлюза.
const (
	GatewayDriverMock = "mock"
	GatewayDriverHTTP = "http"
)

// Config — настройки запуска сервиса. Значения читаются viper из файла и переменных SALES_*.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	GRPCAddr    string `mapstructure:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	StorageDriver       string `mapstructure:"storage_driver"`
	PostgresDSN         string `mapstructure:"postgres_dsn"`
	PostgresAutoMigrate bool   `mapstructure:"postgres_auto_migrate"`

	// IdempotencyDriver: memory, postgres или redis. Пустое значение означает StorageDriver.
	IdempotencyDriver string `mapstructure:"idempotency_driver"`
	RedisURL          string `mapstructure:"redis_url"`
	RedisKeyPrefix    string `mapstructure:"redis_key_prefix"`

	KafkaBrokers              []string `mapstructure:"kafka_brokers"`
	KafkaClientID             string   `mapstructure:"kafka_client_id"`
	KafkaConsumerGroup        string   `mapstructure:"kafka_consumer_group"`
	KafkaConsumeGatewayEvents bool     `mapstructure:"kafka_consume_gateway_events"`

	GatewayDriver          string        `mapstructure:"gateway_driver"`
	GatewayBaseURL         string        `mapstructure:"gateway_base_url"`
	GatewayAPIKey          string        `mapstructure:"gateway_api_key"`
	GatewayCurrency        string        `mapstructure:"gateway_currency"`
	GatewaySuccessURL      string        `mapstructure:"gateway_success_url"`
	GatewayCancelURL       string        `mapstructure:"gateway_cancel_url"`
	GatewayTimeout         time.Duration `mapstructure:"gateway_timeout"`
	GatewaySessionTTL      time.Duration `mapstructure:"gateway_session_ttl"`
	GatewayBreakerFailures int           `mapstructure:"gateway_breaker_failures"`
	GatewayBreakerReset    time.Duration `mapstructure:"gateway_breaker_reset"`
	WebhookSecret          string        `mapstructure:"webhook_secret"`
	WebhookTolerance       time.Duration `mapstructure:"webhook_tolerance"`

	CardTTL             time.Duration `mapstructure:"card_ttl"`
	CashTTL             time.Duration `mapstructure:"cash_ttl"`
	PickupTTL           time.Duration `mapstructure:"pickup_ttl"`
	InstallmentInterval time.Duration `mapstructure:"installment_interval"`
	RestockOnVoid       bool          `mapstructure:"restock_on_void"`
	CheckoutAttempts    int           `mapstructure:"checkout_attempts"`

	ExpiryInterval   time.Duration `mapstructure:"expiry_interval"`
	ExpiryBatchSize  int           `mapstructure:"expiry_batch_size"`
	ExpiryAutoCancel bool          `mapstructure:"expiry_auto_cancel"`

	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	OutboxMaxAttempts  int           `mapstructure:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `mapstructure:"outbox_retry_delay"`

	IdempotencyTTL              time.Duration `mapstructure:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `mapstructure:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `mapstructure:"idempotency_cleanup_batch_size"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	ttl := orders.DefaultConfig()
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		LogLevel:  "info",
		LogFormat: "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		RedisKeyPrefix:      "sales:idem:",

		KafkaClientID:      "sales-service",
		KafkaConsumerGroup: "sales-service",

		GatewayDriver:          GatewayDriverMock,
		GatewayCurrency:        "ars",
		GatewayTimeout:         10 * time.Second,
		GatewaySessionTTL:      30 * time.Minute,
		GatewayBreakerFailures: 5,
		GatewayBreakerReset:    30 * time.Second,
		WebhookTolerance:       5 * time.Minute,

		CardTTL:             ttl.CardTTL,
		CashTTL:             ttl.CashTTL,
		PickupTTL:           ttl.PickupTTL,
		InstallmentInterval: ttl.InstallmentInterval,
		CheckoutAttempts:    3,

		ExpiryInterval:   time.Minute,
		ExpiryBatchSize:  100,
		ExpiryAutoCancel: true,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   time.Second,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig читает настройки: значения по умолчанию, затем файл (если path задан),
// затем переменные окружения SALES_<KEY>, например SALES_HTTP_ADDR.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"http_addr":                      cfg.HTTPAddr,
		"grpc_addr":                      cfg.GRPCAddr,
		"metrics_addr":                   cfg.MetricsAddr,
		"log_level":                      cfg.LogLevel,
		"log_format":                     cfg.LogFormat,
		"storage_driver":                 cfg.StorageDriver,
		"postgres_dsn":                   cfg.PostgresDSN,
		"postgres_auto_migrate":          cfg.PostgresAutoMigrate,
		"idempotency_driver":             cfg.IdempotencyDriver,
		"redis_url":                      cfg.RedisURL,
		"redis_key_prefix":               cfg.RedisKeyPrefix,
		"kafka_brokers":                  cfg.KafkaBrokers,
		"kafka_client_id":                cfg.KafkaClientID,
		"kafka_consumer_group":           cfg.KafkaConsumerGroup,
		"kafka_consume_gateway_events":   cfg.KafkaConsumeGatewayEvents,
		"gateway_driver":                 cfg.GatewayDriver,
		"gateway_base_url":               cfg.GatewayBaseURL,
		"gateway_api_key":                cfg.GatewayAPIKey,
		"gateway_currency":               cfg.GatewayCurrency,
		"gateway_success_url":            cfg.GatewaySuccessURL,
		"gateway_cancel_url":             cfg.GatewayCancelURL,
		"gateway_timeout":                cfg.GatewayTimeout,
		"gateway_session_ttl":            cfg.GatewaySessionTTL,
		"gateway_breaker_failures":       cfg.GatewayBreakerFailures,
		"gateway_breaker_reset":          cfg.GatewayBreakerReset,
		"webhook_secret":                 cfg.WebhookSecret,
		"webhook_tolerance":              cfg.WebhookTolerance,
		"card_ttl":                       cfg.CardTTL,
		"cash_ttl":                       cfg.CashTTL,
		"pickup_ttl":                     cfg.PickupTTL,
		"installment_interval":           cfg.InstallmentInterval,
		"restock_on_void":                cfg.RestockOnVoid,
		"checkout_attempts":              cfg.CheckoutAttempts,
		"expiry_interval":                cfg.ExpiryInterval,
		"expiry_batch_size":              cfg.ExpiryBatchSize,
		"expiry_auto_cancel":             cfg.ExpiryAutoCancel,
		"outbox_poll_interval":           cfg.OutboxPollInterval,
		"outbox_batch_size":              cfg.OutboxBatchSize,
		"outbox_max_attempts":            cfg.OutboxMaxAttempts,
		"outbox_retry_delay":             cfg.OutboxRetryDelay,
		"idempotency_ttl":                cfg.IdempotencyTTL,
		"idempotency_cleanup_interval":   cfg.IdempotencyCleanupInterval,
		"idempotency_cleanup_batch_size": cfg.IdempotencyCleanupBatchSize,
		"shutdown_timeout":               cfg.ShutdownTimeout,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate проверяет согласованность настроек до создания зависимостей.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %q", c.StorageDriver))
	}

	switch c.idempotencyDriver() {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.StorageDriver != StorageDriverPostgres {
			errs = append(errs, errors.New("postgres idempotency store requires postgres storage"))
		}
	case StorageDriverRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			errs = append(errs, errors.New("redis_url is required for redis idempotency store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported idempotency driver: %q", c.IdempotencyDriver))
	}

	switch c.GatewayDriver {
	case GatewayDriverMock:
	case GatewayDriverHTTP:
		if strings.TrimSpace(c.GatewayBaseURL) == "" {
			errs = append(errs, errors.New("gateway_base_url is required for http gateway"))
		}
		if strings.TrimSpace(c.WebhookSecret) == "" {
			errs = append(errs, errors.New("webhook_secret is required for http gateway"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported gateway driver: %q", c.GatewayDriver))
	}

	if c.KafkaConsumeGatewayEvents && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("kafka_brokers are required to consume gateway events"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unsupported log format: %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

func (c Config) idempotencyDriver() string {
	if c.IdempotencyDriver == "" {
		return c.StorageDriver
	}
	return c.IdempotencyDriver
}

func (c Config) kafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c Config) orderConfig() orders.Config {
	return orders.Config{
		CardTTL:             c.CardTTL,
		CashTTL:             c.CashTTL,
		PickupTTL:           c.PickupTTL,
		InstallmentInterval: c.InstallmentInterval,
	}
}
