package settlement

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
)

// VoidInput — параметры аннулирования продажи.
type VoidInput struct {
	Reason string
	Actor  string
}

// Details — продажа вместе с графиком платежей.
type Details struct {
	Settlement   domain.Settlement
	Installments []domain.Installment
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
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

// WithRestockOnVoid включает возврат проданных единиц на склад при аннулировании.
func WithRestockOnVoid(enabled bool) Option {
	return func(s *Service) { s.restockOnVoid = enabled }
}

// Service — операции над проведёнными продажами.
type Service struct {
	store         domain.Store
	ledger        *inventory.Ledger
	logger        *log.Entry
	metrics       *metrics.SalesMetrics
	clock         func() time.Time
	restockOnVoid bool
}

// NewService создаёт сервис продаж.
func NewService(store domain.Store, ledger *inventory.Ledger, opts ...Option) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger()
	}
	s := &Service{
		store:  store,
		ledger: ledger,
		logger: log.WithField("component", "settlement"),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Void аннулирует продажу. По умолчанию остаток не возвращается: товар считается выданным.
func (s *Service) Void(ctx context.Context, id string, in VoidInput) (domain.Settlement, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return domain.Settlement{}, domain.ErrVoidReasonRequired
	}

	var settlement domain.Settlement
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		settlement, err = tx.Settlements().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock()
		if err := settlement.Void(reason, now); err != nil {
			return err
		}

		if s.restockOnVoid {
			ref := inventory.Ref{OrderID: settlement.OrderID, SettlementID: settlement.ID}
			for _, item := range settlement.Items {
				if _, err := s.ledger.Release(ctx, tx, item.VariantID, item.Quantity, ref, in.Actor, "settlement voided: "+reason); err != nil {
					return err
				}
			}
		}

		if err := tx.Settlements().Save(ctx, settlement); err != nil {
			return err
		}
		settlement.Version++

		msg, err := domain.NewOutboxMessage(domain.AggregateSettlement, settlement.ID, domain.EventSettlementVoided, map[string]any{
			"settlement_id": settlement.ID,
			"order_id":      settlement.OrderID,
			"reason":        reason,
			"restocked":     s.restockOnVoid,
			"ts":            now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
			return err
		}
		return tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  settlement.OrderID,
			Type:     domain.TimelineSettlementVoid,
			Reason:   reason,
			Actor:    in.Actor,
			Occurred: now,
		})
	})
	if err != nil {
		return domain.Settlement{}, err
	}

	s.metrics.RecordSettlementVoided()
	s.logger.WithFields(log.Fields{
		"settlement_id": settlement.ID,
		"order_id":      settlement.OrderID,
		"restocked":     s.restockOnVoid,
	}).Info("settlement voided")
	return settlement, nil
}

// Get возвращает продажу с графиком платежей.
func (s *Service) Get(ctx context.Context, id string) (Details, error) {
	var d Details
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		d.Settlement, err = tx.Settlements().Get(ctx, id)
		if err != nil {
			return err
		}
		d.Installments, err = tx.Installments().List(ctx, domain.InstallmentFilter{SettlementID: id})
		return err
	})
	if err != nil {
		return Details{}, err
	}
	return d, nil
}

// GetByOrder возвращает продажу, созданную из заказа.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (Details, error) {
	var d Details
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		d.Settlement, err = tx.Settlements().GetByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		d.Installments, err = tx.Installments().List(ctx, domain.InstallmentFilter{SettlementID: d.Settlement.ID})
		return err
	})
	if err != nil {
		return Details{}, err
	}
	return d, nil
}
