package orders

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
)

// Cancel отменяет заказ из pending или expired и снимает все оставшиеся резервы.
func (s *Service) Cancel(ctx context.Context, id, actor, reason string) (domain.Order, error) {
	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := order.TransitionTo(domain.OrderStatusCanceled, s.clock()); err != nil {
			return err
		}
		released, err := s.releaseReserved(ctx, tx, &order, actor, reason)
		if err != nil {
			return err
		}
		if err := save(ctx, tx, &order); err != nil {
			return err
		}
		return s.emit(ctx, tx, order, domain.EventOrderCanceled, actor, reason, map[string]any{
			"released_items": released,
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCanceled()
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"actor":    actor,
		"reason":   reason,
	}).Info("order canceled")
	return order, nil
}

func (s *Service) releaseReserved(ctx context.Context, tx domain.Tx, order *domain.Order, actor, reason string) (int, error) {
	ref := inventory.Ref{OrderID: order.ID}
	released := 0
	for _, idx := range order.ReservedItems() {
		item := &order.Items[idx]
		if _, err := s.ledger.Release(ctx, tx, item.VariantID, item.Quantity, ref, actor, reason); err != nil {
			return released, err
		}
		item.StockReserved = false
		released++
	}
	return released, nil
}

// Expire переводит просроченный pending-заказ в expired. Резерв не снимается:
// это делает последующая отмена, чтобы освобождение остатка имело явного инициатора.
func (s *Service) Expire(ctx context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return s.expireLocked(ctx, tx, &order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *Service) expireLocked(ctx context.Context, tx domain.Tx, order *domain.Order) error {
	now := s.clock()
	if order.Status != domain.OrderStatusPending {
		return &domain.TransitionError{
			Entity: "order",
			ID:     order.ID,
			From:   string(order.Status),
			To:     string(domain.OrderStatusExpired),
		}
	}
	if !order.DeadlinePassed(now) {
		return domain.ErrOrderNotExpired
	}

	order.Status = domain.OrderStatusExpired
	order.UpdatedAt = now
	if err := save(ctx, tx, order); err != nil {
		return err
	}
	if err := s.emit(ctx, tx, *order, domain.EventOrderExpired, "system", "payment deadline passed", map[string]any{
		"expires_at": order.ExpiresAt,
	}); err != nil {
		return err
	}
	s.metrics.RecordOrderExpired()
	return nil
}

// ExpireDue переводит в expired до limit ожидающих заказов, срок которых истёк к моменту now.
// Каждый заказ обрабатывается в своей транзакции; заказ, изменённый параллельно, пропускается.
func (s *Service) ExpireDue(ctx context.Context, limit int) ([]domain.Order, error) {
	candidates, err := s.List(ctx, domain.OrderFilter{
		Statuses:      []domain.OrderStatus{domain.OrderStatusPending},
		ExpiresBefore: s.clock(),
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}

	expired := make([]domain.Order, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		order, err := s.Expire(ctx, candidate.ID)
		switch {
		case err == nil:
			expired = append(expired, order)
		case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrConflict):
			s.logger.WithError(err).WithField("order_id", candidate.ID).Debug("order changed before expiry, skipping")
		default:
			return expired, err
		}
	}
	return expired, nil
}

// RecordPaymentFailure фиксирует неуспешную оплату в timeline и outbox без смены статуса.
func (s *Service) RecordPaymentFailure(ctx context.Context, id, reason string) error {
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, id)
		if err != nil {
			return err
		}
		order.UpdatedAt = s.clock()
		return s.emit(ctx, tx, order, domain.EventPaymentFailed, "gateway", reason, nil)
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"order_id": id, "reason": reason}).Warn("payment failed")
	return nil
}

// AttachPaymentSession запоминает сессию шлюза на ожидающем заказе.
func (s *Service) AttachPaymentSession(ctx context.Context, id string, session domain.PaymentSession) (domain.Order, error) {
	if session.Ref == "" {
		return domain.Order{}, domain.ErrPaymentReferenceRequired
	}
	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock()
		if status := order.EffectiveStatus(now); status != domain.OrderStatusPending {
			return &domain.TransitionError{Entity: "order", ID: order.ID, From: string(status), To: "session_opened"}
		}
		order.PaymentSessionRef = session.Ref
		order.UpdatedAt = now
		if err := save(ctx, tx, &order); err != nil {
			return err
		}
		return s.emit(ctx, tx, order, domain.EventPaymentSessionOpened, "system", "", map[string]any{
			"session_ref": session.Ref,
			"expires_at":  session.ExpiresAt,
		})
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}
