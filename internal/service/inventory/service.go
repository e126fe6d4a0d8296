package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
)

// RegisterInput описывает новый вариант товара.
type RegisterInput struct {
	ID        string
	ProductID string
	SKU       string
	Name      string
	Stock     int
	Price     decimal.Decimal
	Cost      decimal.Decimal
	Actor     string
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
	return func(s *Service) {
		s.metrics = m
	}
}

// WithServiceClock подменяет источник времени.
func WithServiceClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Service — складские операции вне заказов: регистрация вариантов и ручные корректировки.
type Service struct {
	store   domain.Store
	ledger  *Ledger
	logger  *log.Entry
	metrics *metrics.SalesMetrics
	clock   func() time.Time
}

// NewService создаёт складской сервис поверх ledger.
func NewService(store domain.Store, ledger *Ledger, opts ...Option) *Service {
	if ledger == nil {
		ledger = NewLedger()
	}
	s := &Service{
		store:  store,
		ledger: ledger,
		logger: log.WithField("component", "inventory"),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterVariant создаёт вариант и записывает начальный остаток в журнал.
func (s *Service) RegisterVariant(ctx context.Context, in RegisterInput) (domain.Variant, error) {
	now := s.clock()
	v := domain.Variant{
		ID:        strings.TrimSpace(in.ID),
		ProductID: in.ProductID,
		SKU:       strings.TrimSpace(in.SKU),
		Name:      in.Name,
		Stock:     in.Stock,
		Price:     domain.RoundMoney(in.Price),
		Cost:      domain.RoundMoney(in.Cost),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if errs := v.Validate(); len(errs) > 0 {
		return domain.Variant{}, errors.Join(errs...)
	}

	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.Variants().Create(ctx, v); err != nil {
			return err
		}
		if err := s.ledger.Seed(ctx, tx, v, in.Actor); err != nil {
			return err
		}
		msg, err := domain.NewOutboxMessage(domain.AggregateVariant, v.ID, domain.EventVariantRegistered, map[string]any{
			"variant_id": v.ID,
			"sku":        v.SKU,
			"stock":      v.Stock,
			"price":      v.Price,
		})
		if err != nil {
			return err
		}
		_, err = tx.Outbox().Enqueue(ctx, msg)
		return err
	})
	if err != nil {
		return domain.Variant{}, err
	}

	s.logger.WithFields(log.Fields{"variant_id": v.ID, "sku": v.SKU, "stock": v.Stock}).Info("variant registered")
	return v, nil
}

// Adjust выполняет ручную корректировку в собственной транзакции.
func (s *Service) Adjust(ctx context.Context, adj Adjustment) (AdjustResult, error) {
	var result AdjustResult
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		result, err = s.ledger.Adjust(ctx, tx, adj)
		if err != nil {
			return err
		}
		msg, err := domain.NewOutboxMessage(domain.AggregateVariant, adj.VariantID, domain.EventInventoryAdjusted, map[string]any{
			"variant_id":   adj.VariantID,
			"mode":         adj.Mode,
			"requested":    result.Requested,
			"applied":      result.Applied,
			"stock_before": result.StockBefore,
			"stock_after":  result.StockAfter,
			"actor":        adj.Actor,
			"reason":       adj.Reason,
		})
		if err != nil {
			return err
		}
		_, err = tx.Outbox().Enqueue(ctx, msg)
		return err
	})
	if err != nil {
		return AdjustResult{}, err
	}

	s.metrics.RecordStockAdjusted()
	entry := s.logger.WithFields(log.Fields{
		"variant_id": adj.VariantID,
		"applied":    result.Applied,
		"stock":      result.StockAfter,
	})
	if result.Clamped() {
		entry.WithField("requested", result.Requested).Warn("stock adjustment clamped to floor")
	} else {
		entry.Info("stock adjusted")
	}
	return result, nil
}

// GetVariant возвращает вариант по идентификатору.
func (s *Service) GetVariant(ctx context.Context, id string) (domain.Variant, error) {
	var v domain.Variant
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		v, err = tx.Variants().Get(ctx, id)
		return err
	})
	return v, err
}

// Movements возвращает журнал движений по фильтру.
func (s *Service) Movements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var out []domain.InventoryMovement
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		out, err = tx.Movements().List(ctx, filter)
		return err
	})
	return out, err
}
