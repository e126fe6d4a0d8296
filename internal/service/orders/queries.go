package orders

import (
	"context"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Get возвращает заказ. Если срок ожидания истёк, статус expired сохраняется при чтении.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.Orders().Get(ctx, id)
		if err != nil {
			return err
		}
		if order.EffectiveStatus(s.clock()) != domain.OrderStatusExpired || order.Status == domain.OrderStatusExpired {
			return nil
		}
		order, err = tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending || !order.DeadlinePassed(s.clock()) {
			return nil
		}
		return s.expireLocked(ctx, tx, &order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// List возвращает заказы по фильтру. Статус просроченных заказов отражается без записи.
func (s *Service) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var out []domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		out, err = tx.Orders().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	now := s.clock()
	for i := range out {
		out[i].Status = out[i].EffectiveStatus(now)
	}
	return out, nil
}

// Timeline возвращает историю заказа.
func (s *Service) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := tx.Orders().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return s.timeline.List(id)
}

// GetBySessionRef ищет заказ по сессии шлюза.
func (s *Service) GetBySessionRef(ctx context.Context, ref string) (domain.Order, error) {
	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.Orders().GetBySessionRef(ctx, ref)
		return err
	})
	return order, err
}
