package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
)

// ItemInput — запрошенная позиция: вариант и количество. Цена и себестоимость берутся из варианта.
type ItemInput struct {
	VariantID string
	Quantity  int
}

// CreateInput — данные для оформления заказа.
type CreateInput struct {
	CustomerID    string
	Customer      domain.CustomerSnapshot
	Items         []ItemInput
	Discount      decimal.Decimal
	PaymentMethod domain.PaymentMethod
	// Installments: 0 трактуется как единовременная оплата.
	Installments int
	Actor        string
}

func (in CreateInput) validate() error {
	var errs []error
	if len(in.Items) == 0 {
		errs = append(errs, domain.ErrItemsRequired)
	}
	for _, item := range in.Items {
		if item.VariantID == "" {
			errs = append(errs, domain.ErrVariantRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, domain.ErrItemQtyInvalid)
		}
	}
	if in.Discount.IsNegative() {
		errs = append(errs, domain.ErrDiscountInvalid)
	}
	if !in.PaymentMethod.Valid() {
		errs = append(errs, domain.ErrPaymentMethodInvalid)
	}
	return errors.Join(errs...)
}

// byVariant упорядочивает позиции по варианту. Все операции со складом идут в порядке
// позиций заказа, поэтому встречные заказы блокируют строки вариантов в одном порядке.
func byVariant(items []ItemInput) []ItemInput {
	sorted := make([]ItemInput, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].VariantID < sorted[j].VariantID })
	return sorted
}

// Create резервирует все позиции и создаёт заказ в статусе pending.
// Нехватка любой позиции откатывает уже сделанные резервы этого заказа.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Order, error) {
	if err := in.validate(); err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	order := domain.Order{
		ID:            s.ids(),
		CustomerID:    in.CustomerID,
		Customer:      in.Customer,
		Items:         make([]domain.OrderItem, 0, len(in.Items)),
		Discount:      domain.RoundMoney(in.Discount),
		Status:        domain.OrderStatusPending,
		PaymentMethod: in.PaymentMethod,
		Installments:  in.Installments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if order.Installments == 0 {
		order.Installments = 1
	}
	if ttl := s.cfg.ttlFor(order.PaymentMethod); ttl > 0 {
		order.ExpiresAt = now.Add(ttl)
	}

	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		ref := inventory.Ref{OrderID: order.ID}
		for _, item := range byVariant(in.Items) {
			variant, err := tx.Variants().Get(ctx, item.VariantID)
			if err != nil {
				return err
			}
			if _, err := s.ledger.Reserve(ctx, tx, item.VariantID, item.Quantity, ref, in.Actor); err != nil {
				return err
			}
			order.Items = append(order.Items, domain.OrderItem{
				ID:            s.ids(),
				VariantID:     variant.ID,
				SKU:           variant.SKU,
				Name:          variant.Name,
				Quantity:      item.Quantity,
				UnitPrice:     variant.Price,
				CostUnit:      variant.Cost,
				StockReserved: true,
			})
		}

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return s.emit(ctx, tx, order, domain.EventOrderCreated, in.Actor, "", map[string]any{
			"customer_id":    order.CustomerID,
			"payment_method": order.PaymentMethod,
			"installments":   order.Installments,
			"total":          order.Total(),
			"items_count":    len(order.Items),
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.metrics.RecordStockRejected()
		}
		s.logger.WithError(err).WithField("customer_id", in.CustomerID).Warn("order creation failed")
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCreated()
	s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"payment_method": order.PaymentMethod,
		"total":          order.Total().StringFixed(domain.MoneyPlaces),
	}).Info("order created")
	return order, nil
}
