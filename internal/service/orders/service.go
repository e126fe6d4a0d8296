package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
)

// Config задаёт сроки ожидания оплаты и шаг графика рассрочки.
type Config struct {
	CardTTL             time.Duration
	CashTTL             time.Duration
	PickupTTL           time.Duration
	InstallmentInterval time.Duration
}

// DefaultConfig возвращает сроки по умолчанию: карта 30 минут, наличные сутки, самовывоз двое суток.
func DefaultConfig() Config {
	return Config{
		CardTTL:             30 * time.Minute,
		CashTTL:             24 * time.Hour,
		PickupTTL:           48 * time.Hour,
		InstallmentInterval: domain.DefaultInstallmentInterval,
	}
}

// ttlFor возвращает срок ожидания оплаты для способа оплаты; 0 означает отсутствие срока.
func (c Config) ttlFor(method domain.PaymentMethod) time.Duration {
	switch method {
	case domain.PaymentMethodCard:
		return c.CardTTL
	case domain.PaymentMethodCash:
		return c.CashTTL
	case domain.PaymentMethodPickup:
		return c.PickupTTL
	default:
		return 0
	}
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики продаж.
func WithMetrics(m *metrics.SalesMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithConfig задаёт сроки ожидания оплаты.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(ids func() string) Option {
	return func(s *Service) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithTimeline подключает хранилище timeline для чтения истории заказа.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = repo }
}

// Service управляет жизненным циклом заказа: резерв → оплата → продажа или отмена.
type Service struct {
	store    domain.Store
	ledger   *inventory.Ledger
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.SalesMetrics
	cfg      Config
	clock    func() time.Time
	ids      func() string
}

// NewService создаёт сервис заказов.
func NewService(store domain.Store, ledger *inventory.Ledger, opts ...Option) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger()
	}
	s := &Service{
		store:  store,
		ledger: ledger,
		logger: log.WithField("component", "orders"),
		cfg:    DefaultConfig(),
		clock:  func() time.Time { return time.Now().UTC() },
		ids:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// emit пишет событие заказа в outbox и timeline внутри текущей транзакции.
func (s *Service) emit(ctx context.Context, tx domain.Tx, order domain.Order, eventType, actor, reason string, payload map[string]any) error {
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = order.ID
	payload["status"] = order.Status
	payload["ts"] = order.UpdatedAt.Format(time.RFC3339Nano)
	if reason != "" {
		payload["reason"] = reason
	}

	msg, err := domain.NewOutboxMessage(domain.AggregateOrder, order.ID, eventType, payload)
	if err != nil {
		return err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return err
	}
	return tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Reason:   reason,
		Actor:    actor,
		Occurred: order.UpdatedAt,
	})
}

// save сохраняет заказ и отражает новую версию в переданной копии.
func save(ctx context.Context, tx domain.Tx, order *domain.Order) error {
	if err := tx.Orders().Save(ctx, *order); err != nil {
		return err
	}
	order.Version++
	return nil
}
