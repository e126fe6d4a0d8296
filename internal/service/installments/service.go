package installments

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
)

// PayResult — результат оплаты платежа рассрочки.
type PayResult struct {
	Installment domain.Installment
	// Этим платежом погашен весь график.
	FullyPaid bool
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

// Service ведёт график платежей продаж в рассрочку.
type Service struct {
	store   domain.Store
	gateway domain.PaymentGateway
	logger  *log.Entry
	metrics *metrics.SalesMetrics
	clock   func() time.Time
}

// NewService создаёт сервис рассрочки. gateway нужен только для открытия платёжных сессий.
func NewService(store domain.Store, gateway domain.PaymentGateway, opts ...Option) *Service {
	s := &Service{
		store:   store,
		gateway: gateway,
		logger:  log.WithField("component", "installments"),
		clock:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pay отмечает платёж оплаченным. Повторная оплата возвращает domain.ErrInstallmentAlreadyPaid.
func (s *Service) Pay(ctx context.Context, id, gatewayRef string) (PayResult, error) {
	if strings.TrimSpace(gatewayRef) == "" {
		return PayResult{}, domain.ErrPaymentReferenceRequired
	}

	var result PayResult
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		inst, err := tx.Installments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock()
		if err := inst.MarkPaid(gatewayRef, now); err != nil {
			return err
		}
		if err := checkSettlementActive(ctx, tx, inst.SettlementID); err != nil {
			return err
		}
		if err := tx.Installments().Save(ctx, inst); err != nil {
			return err
		}
		inst.Version++

		if err := s.emit(ctx, tx, inst, domain.EventInstallmentPaid, map[string]any{
			"installment_id":    inst.ID,
			"settlement_id":     inst.SettlementID,
			"order_id":          inst.OrderID,
			"number":            inst.Number,
			"amount":            inst.Amount,
			"gateway_reference": gatewayRef,
		}); err != nil {
			return err
		}
		if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  inst.OrderID,
			Type:     domain.TimelineInstallmentPaid,
			Reason:   fmt.Sprintf("installment %d paid", inst.Number),
			Actor:    "gateway",
			Occurred: now,
		}); err != nil {
			return err
		}

		schedule, err := tx.Installments().List(ctx, domain.InstallmentFilter{SettlementID: inst.SettlementID})
		if err != nil {
			return err
		}
		stats := domain.SummarizeInstallments(schedule, now)
		result = PayResult{Installment: inst, FullyPaid: stats.Pending == 0}
		if !result.FullyPaid {
			return nil
		}
		msg, err := domain.NewOutboxMessage(domain.AggregateSettlement, inst.SettlementID, domain.EventSettlementFullyPaid, map[string]any{
			"settlement_id": inst.SettlementID,
			"order_id":      inst.OrderID,
			"amount_paid":   stats.AmountPaid,
			"installments":  stats.Total,
		})
		if err != nil {
			return err
		}
		_, err = tx.Outbox().Enqueue(ctx, msg)
		return err
	})
	if err != nil {
		return PayResult{}, err
	}

	s.metrics.RecordInstallmentPaid()
	s.logger.WithFields(log.Fields{
		"installment_id": id,
		"settlement_id":  result.Installment.SettlementID,
		"fully_paid":     result.FullyPaid,
	}).Info("installment paid")
	return result, nil
}

// OpenPaymentSession открывает у шлюза сессию оплаты платежа и запоминает её.
// Вызов шлюза выполняется вне транзакции.
func (s *Service) OpenPaymentSession(ctx context.Context, id string) (domain.PaymentSession, error) {
	if s.gateway == nil {
		return domain.PaymentSession{}, fmt.Errorf("payment gateway is not configured: %w", domain.ErrGateway)
	}

	var inst domain.Installment
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		inst, err = tx.Installments().Get(ctx, id)
		if err != nil {
			return err
		}
		if inst.Paid {
			return domain.ErrInstallmentAlreadyPaid
		}
		return checkSettlementActive(ctx, tx, inst.SettlementID)
	})
	if err != nil {
		return domain.PaymentSession{}, err
	}

	session, err := s.gateway.OpenInstallmentSession(ctx, inst)
	if err != nil {
		s.metrics.RecordGatewayError()
		s.logger.WithError(err).WithField("installment_id", id).Warn("open installment session failed")
		return domain.PaymentSession{}, err
	}

	err = s.store.WithinTx(ctx, func(tx domain.Tx) error {
		current, err := tx.Installments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Paid {
			return domain.ErrInstallmentAlreadyPaid
		}
		current.SessionRef = session.Ref
		current.UpdatedAt = s.clock()
		if err := tx.Installments().Save(ctx, current); err != nil {
			return err
		}
		return tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  current.OrderID,
			Type:     domain.TimelineSessionOpened,
			Reason:   fmt.Sprintf("installment %d", current.Number),
			Actor:    "system",
			Occurred: current.UpdatedAt,
		})
	})
	if err != nil {
		return domain.PaymentSession{}, err
	}
	return session, nil
}

// Get возвращает платёж по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Installment, error) {
	var inst domain.Installment
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		inst, err = tx.Installments().Get(ctx, id)
		return err
	})
	return inst, err
}

// GetBySessionRef ищет платёж по сессии шлюза.
func (s *Service) GetBySessionRef(ctx context.Context, ref string) (domain.Installment, error) {
	var inst domain.Installment
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		inst, err = tx.Installments().GetBySessionRef(ctx, ref)
		return err
	})
	return inst, err
}

// Stats считает сводку по графику продажи на момент now.
func (s *Service) Stats(ctx context.Context, settlementID string, now time.Time) (domain.InstallmentStats, error) {
	var schedule []domain.Installment
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.Settlements().Get(ctx, settlementID); err != nil {
			return err
		}
		var err error
		schedule, err = tx.Installments().List(ctx, domain.InstallmentFilter{SettlementID: settlementID})
		return err
	})
	if err != nil {
		return domain.InstallmentStats{}, err
	}
	if now.IsZero() {
		now = s.clock()
	}
	return domain.SummarizeInstallments(schedule, now), nil
}

// List возвращает платежи по фильтру, например просроченные: Paid=false, DueBefore=now.
func (s *Service) List(ctx context.Context, filter domain.InstallmentFilter) ([]domain.Installment, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var out []domain.Installment
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		out, err = tx.Installments().List(ctx, filter)
		return err
	})
	return out, err
}

func (s *Service) emit(ctx context.Context, tx domain.Tx, inst domain.Installment, eventType string, payload map[string]any) error {
	msg, err := domain.NewOutboxMessage(domain.AggregateInstallment, inst.ID, eventType, payload)
	if err != nil {
		return err
	}
	_, err = tx.Outbox().Enqueue(ctx, msg)
	return err
}

// checkSettlementActive не даёт принимать платежи по аннулированной продаже.
func checkSettlementActive(ctx context.Context, tx domain.Tx, settlementID string) error {
	settlement, err := tx.Settlements().Get(ctx, settlementID)
	if err != nil {
		return err
	}
	if settlement.Status == domain.SettlementStatusVoided {
		return fmt.Errorf("settlement %s is voided: %w", settlementID, domain.ErrReconciliation)
	}
	return nil
}
