package orders

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
)

// ConfirmInput — подтверждение оплаты заказа.
type ConfirmInput struct {
	PaymentReference string
	SellerID         string
	Actor            string
}

// Confirmation — результат превращения заказа в продажу.
type Confirmation struct {
	Order        domain.Order
	Settlement   domain.Settlement
	Installments []domain.Installment
}

// Confirm превращает ожидающий заказ в продажу: создаёт settlement, график платежей
// при рассрочке, списывает резервы и переводит заказ в paid. Всё в одной транзакции.
func (s *Service) Confirm(ctx context.Context, id string, in ConfirmInput) (Confirmation, error) {
	if strings.TrimSpace(in.PaymentReference) == "" {
		return Confirmation{}, domain.ErrPaymentReferenceRequired
	}

	var result Confirmation
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock()
		// Проверка перехода до любых записей: просроченный заказ не подтверждается.
		if !domain.CanTransition(order.EffectiveStatus(now), domain.OrderStatusPaid) {
			return &domain.TransitionError{
				Entity: "order",
				ID:     order.ID,
				From:   string(order.EffectiveStatus(now)),
				To:     string(domain.OrderStatusPaid),
			}
		}

		settlement := domain.NewSettlement(s.ids(), order, in.SellerID, in.PaymentReference, s.ids, now)
		if err := tx.Settlements().Create(ctx, settlement); err != nil {
			return fmt.Errorf("create settlement: %w", err)
		}

		var schedule []domain.Installment
		if order.Installments > 1 {
			schedule, err = domain.BuildSchedule(settlement, order.Installments, now, s.cfg.InstallmentInterval, s.ids)
			if err != nil {
				return err
			}
			if err := tx.Installments().CreateBatch(ctx, schedule); err != nil {
				return fmt.Errorf("create installments: %w", err)
			}
		}

		ref := inventory.Ref{OrderID: order.ID, SettlementID: settlement.ID}
		for _, idx := range order.ReservedItems() {
			item := &order.Items[idx]
			if _, err := s.ledger.Consume(ctx, tx, item.VariantID, item.Quantity, ref, in.Actor); err != nil {
				return err
			}
			item.StockReserved = false
		}

		if err := order.TransitionTo(domain.OrderStatusPaid, now); err != nil {
			return err
		}
		if err := save(ctx, tx, &order); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, order, domain.EventOrderPaid, in.Actor, "", map[string]any{
			"settlement_id":     settlement.ID,
			"payment_reference": in.PaymentReference,
			"total":             settlement.Total,
		}); err != nil {
			return err
		}

		msg, err := domain.NewOutboxMessage(domain.AggregateSettlement, settlement.ID, domain.EventSettlementCreated, map[string]any{
			"settlement_id":  settlement.ID,
			"order_id":       order.ID,
			"seller_id":      settlement.SellerID,
			"total":          settlement.Total,
			"profit_total":   settlement.ProfitTotal,
			"margin_percent": settlement.MarginPercent,
			"installments":   settlement.InstallmentCount,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
			return err
		}

		result = Confirmation{Order: order, Settlement: settlement, Installments: schedule}
		return nil
	})
	if err != nil {
		return Confirmation{}, err
	}

	s.metrics.RecordOrderPaid()
	s.metrics.RecordSettlementCreated()
	s.logger.WithFields(log.Fields{
		"order_id":      result.Order.ID,
		"settlement_id": result.Settlement.ID,
		"installments":  len(result.Installments),
	}).Info("order confirmed")
	return result, nil
}
