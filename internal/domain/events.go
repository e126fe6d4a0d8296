package domain

import (
	"encoding/json"
	"fmt"
)

// Типы агрегатов в outbox.
const (
	AggregateOrder       = "order"
	AggregateSettlement  = "settlement"
	AggregateInstallment = "installment"
	AggregateVariant     = "variant"
)

// Типы событий, публикуемых через outbox.
const (
	EventOrderCreated         = "order.created"
	EventOrderPaid            = "order.paid"
	EventOrderCanceled        = "order.canceled"
	EventOrderExpired         = "order.expired"
	EventPaymentSessionOpened = "payment.session_opened"
	EventPaymentFailed        = "payment.failed"
	EventSettlementCreated    = "settlement.created"
	EventSettlementVoided     = "settlement.voided"
	EventSettlementFullyPaid  = "settlement.fully_paid"
	EventInstallmentPaid      = "installment.paid"
	EventVariantRegistered    = "variant.registered"
	EventInventoryAdjusted    = "inventory.adjusted"
)

// NewOutboxMessage сериализует payload в JSON и собирает сообщение outbox.
func NewOutboxMessage(aggregateType, aggregateID, eventType string, payload any) (OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}, nil
}
