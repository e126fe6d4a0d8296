package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/sales/internal/health"
	"github.com/vladislavdragonenkov/sales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
	"github.com/vladislavdragonenkov/sales/internal/service/checkout"
	"github.com/vladislavdragonenkov/sales/internal/service/expiry"
	"github.com/vladislavdragonenkov/sales/internal/service/idempotency"
	"github.com/vladislavdragonenkov/sales/internal/service/installments"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
	"github.com/vladislavdragonenkov/sales/internal/service/outbox"
	"github.com/vladislavdragonenkov/sales/internal/service/payment"
	"github.com/vladislavdragonenkov/sales/internal/service/settlement"
	"github.com/vladislavdragonenkov/sales/internal/service/webhook"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
	"github.com/vladislavdragonenkov/sales/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/sales/internal/storage/redis"
	"github.com/vladislavdragonenkov/sales/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/sales/internal/version"
)

// Dependencies — собранный граф сервиса: хранилища, доменные сервисы, воркеры и ops.
type Dependencies struct {
	Config  Config
	Logger  *log.Entry
	Metrics *metrics.SalesMetrics

	Store       domain.Store
	Timeline    domain.TimelineRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	Gateway  domain.PaymentGateway
	Breaker  *payment.CircuitBreaker
	Verifier *payment.SignatureVerifier

	Inventory    *inventory.Service
	Orders       *orders.Service
	Settlements  *settlement.Service
	Installments *installments.Service
	Checkout     *checkout.Orchestrator
	Webhooks     *webhook.Handler

	OutboxWorker  *outbox.Worker
	CleanupWorker *idempotency.CleanupWorker
	Reaper        *expiry.Reaper
	Consumer      *kafka.Consumer

	Health *healthcheck.Handler

	closers []func() error
}

// NewDependencies создаёт все зависимости по конфигурации. При ошибке уже открытые
// подключения закрываются.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *Dependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps = &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewSalesMetrics(),
		Health:  healthcheck.NewHandler(version.Version()),
	}
	defer func() {
		if err != nil {
			_ = deps.Close()
			deps = nil
		}
	}()

	if err = deps.initStorage(ctx); err != nil {
		return deps, err
	}
	if err = deps.initIdempotency(ctx); err != nil {
		return deps, err
	}
	deps.initGateway()
	deps.initServices()
	if err = deps.initWorkers(); err != nil {
		return deps, err
	}
	return deps, nil
}

func (d *Dependencies) initStorage(ctx context.Context) error {
	switch d.Config.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		d.Store = store
		d.Timeline = store.Timeline()
		d.Outbox = store.Outbox()
		d.Logger.Warn("using in-memory storage, data is lost on restart")
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, d.Config.PostgresDSN)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, store.Close)
		if d.Config.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
		d.Store = store
		d.Timeline = postgres.NewTimelineRepository(store)
		d.Outbox = postgres.NewOutboxRepository(store)
		d.Health.RegisterChecker("postgres", healthcheck.NewCriticalChecker("postgres", store.Ping))
	default:
		return fmt.Errorf("unsupported storage driver: %q", d.Config.StorageDriver)
	}
	return nil
}

func (d *Dependencies) initIdempotency(ctx context.Context) error {
	switch d.Config.idempotencyDriver() {
	case StorageDriverMemory:
		d.Idempotency = memory.NewIdempotencyRepository()
	case StorageDriverPostgres:
		store, ok := d.Store.(*postgres.Store)
		if !ok {
			return errors.New("postgres idempotency store requires postgres storage")
		}
		d.Idempotency = postgres.NewIdempotencyRepository(store)
	case StorageDriverRedis:
		client, err := redisstore.Open(ctx, d.Config.RedisURL)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, client.Close)
		d.Idempotency = redisstore.NewIdempotencyRepository(client, d.Config.RedisKeyPrefix)
		d.Health.RegisterChecker("redis", healthcheck.NewCriticalChecker("redis", redisPing(client)))
	default:
		return fmt.Errorf("unsupported idempotency driver: %q", d.Config.IdempotencyDriver)
	}
	return nil
}

func redisPing(client *goredis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func (d *Dependencies) initGateway() {
	cfg := d.Config
	var gateway domain.PaymentGateway
	switch cfg.GatewayDriver {
	case GatewayDriverHTTP:
		gateway = payment.NewHTTPGateway(payment.GatewayConfig{
			BaseURL:    cfg.GatewayBaseURL,
			APIKey:     cfg.GatewayAPIKey,
			Currency:   cfg.GatewayCurrency,
			SuccessURL: cfg.GatewaySuccessURL,
			CancelURL:  cfg.GatewayCancelURL,
			Timeout:    cfg.GatewayTimeout,
			SessionTTL: cfg.GatewaySessionTTL,
		}, d.Logger.WithField("component", "payment-gateway"))
	default:
		d.Logger.Warn("using mock payment gateway")
		gateway = payment.NewMockGateway()
	}

	d.Breaker = payment.NewCircuitBreaker(cfg.GatewayBreakerFailures, cfg.GatewayBreakerReset,
		d.Logger.WithField("component", "circuit-breaker"))
	d.Gateway = payment.NewBreakerGateway(gateway, d.Breaker)
	d.Health.RegisterChecker("payment-gateway", healthcheck.NewOptionalChecker("payment-gateway", func(context.Context) error {
		if d.Breaker.State() == payment.CircuitOpen {
			return payment.ErrCircuitOpen
		}
		return nil
	}))

	if cfg.WebhookSecret != "" {
		d.Verifier = payment.NewSignatureVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
	} else {
		d.Logger.Warn("webhook secret is empty, signature verification is disabled")
	}
}

func (d *Dependencies) initServices() {
	cfg := d.Config
	component := func(name string) *log.Entry { return d.Logger.WithField("component", name) }
	ledger := inventory.NewLedger()

	d.Inventory = inventory.NewService(d.Store, ledger,
		inventory.WithLogger(component("inventory")),
		inventory.WithMetrics(d.Metrics),
	)
	d.Orders = orders.NewService(d.Store, ledger,
		orders.WithLogger(component("orders")),
		orders.WithMetrics(d.Metrics),
		orders.WithConfig(cfg.orderConfig()),
		orders.WithTimeline(d.Timeline),
	)
	d.Settlements = settlement.NewService(d.Store, ledger,
		settlement.WithLogger(component("settlement")),
		settlement.WithMetrics(d.Metrics),
		settlement.WithRestockOnVoid(cfg.RestockOnVoid),
	)
	d.Installments = installments.NewService(d.Store, d.Gateway,
		installments.WithLogger(component("installments")),
		installments.WithMetrics(d.Metrics),
	)

	retry := checkout.DefaultRetryConfig()
	if cfg.CheckoutAttempts > 0 {
		retry.MaxAttempts = cfg.CheckoutAttempts
	}
	d.Checkout = checkout.NewOrchestrator(d.Orders, d.Gateway,
		checkout.WithLogger(component("checkout")),
		checkout.WithMetrics(d.Metrics),
		checkout.WithRetryConfig(retry),
	)
	d.Webhooks = webhook.NewHandler(d.Orders, d.Installments, d.Idempotency,
		webhook.WithLogger(component("webhook")),
		webhook.WithMetrics(d.Metrics),
	)
}

func (d *Dependencies) initWorkers() error {
	cfg := d.Config

	var (
		publisher domain.OutboxPublisher = outbox.NewLogPublisher(d.Logger.WithField("component", "outbox-log-publisher"))
		dlq       domain.OutboxPublisher
	)
	if cfg.kafkaEnabled() {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, producer.Close)
		publisher = kafka.NewOutboxPublisher(producer, kafka.TopicSalesEvents)
		dlq = kafka.NewDLQPublisher(producer, kafka.TopicDeadLetterQueue)
		d.Logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")

		if cfg.KafkaConsumeGatewayEvents {
			consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup,
				[]string{kafka.TopicGatewayEvents},
				kafka.NewGatewayEventHandler(d.Webhooks, d.Logger.WithField("component", "gateway-event-consumer")),
				kafka.WithDLQ(producer),
				kafka.WithConsumerLogger(d.Logger.WithField("component", "kafka-consumer")),
			)
			if err != nil {
				return err
			}
			d.Consumer = consumer
		}
	}

	outboxOpts := []outbox.Option{
		outbox.WithLogger(d.Logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlq != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(dlq))
	}
	d.OutboxWorker = outbox.NewWorker(d.Outbox, publisher, outboxOpts...)

	d.CleanupWorker = idempotency.NewCleanupWorker(d.Idempotency,
		idempotency.WithLogger(d.Logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	d.Reaper = expiry.NewReaper(d.Orders,
		expiry.WithLogger(d.Logger.WithField("component", "expiry-reaper")),
		expiry.WithInterval(cfg.ExpiryInterval),
		expiry.WithBatchSize(cfg.ExpiryBatchSize),
		expiry.WithAutoCancel(cfg.ExpiryAutoCancel),
	)
	return nil
}

// HTTPServices собирает зависимости HTTP API.
func (d *Dependencies) HTTPServices() httpapi.Services {
	svc := httpapi.Services{
		Checkout:     d.Checkout,
		Orders:       d.Orders,
		Settlements:  d.Settlements,
		Installments: d.Installments,
		Inventory:    d.Inventory,
		Webhooks:     d.Webhooks,
		Idempotency:  d.Idempotency,
	}
	// Интерфейс с nil-указателем внутри не равен nil, поэтому присваиваем только заданный.
	if d.Verifier != nil {
		svc.Verifier = d.Verifier
	}
	return svc
}

// StartWorkers запускает фоновые воркеры и consumer до отмены ctx.
// Возвращает функцию ожидания их завершения.
func (d *Dependencies) StartWorkers(ctx context.Context) (wait func(), err error) {
	done := make(chan struct{}, 3)
	run := func(fn func(context.Context)) {
		go func() {
			defer func() { done <- struct{}{} }()
			fn(ctx)
		}()
	}
	run(d.OutboxWorker.Run)
	run(d.CleanupWorker.Run)
	run(d.Reaper.Run)

	if d.Consumer != nil {
		if err := d.Consumer.Start(ctx); err != nil {
			return nil, fmt.Errorf("start gateway event consumer: %w", err)
		}
	}

	return func() {
		for range 3 {
			<-done
		}
		if d.Consumer != nil {
			if err := d.Consumer.Stop(); err != nil {
				d.Logger.WithError(err).Warn("failed to stop kafka consumer")
			}
		}
	}, nil
}

// Close освобождает подключения в обратном порядке.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// shutdownTimeout возвращает таймаут остановки с запасным значением.
func (d *Dependencies) shutdownTimeout() time.Duration {
	if d.Config.ShutdownTimeout > 0 {
		return d.Config.ShutdownTimeout
	}
	return 10 * time.Second
}
