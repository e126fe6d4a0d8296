package domain

import "time"

// Типы событий timeline заказа.
const (
	TimelineOrderCreated    = "order.created"
	TimelineOrderPaid       = "order.paid"
	TimelineOrderCanceled   = "order.canceled"
	TimelineOrderExpired    = "order.expired"
	TimelineSessionOpened   = "payment.session_opened"
	TimelinePaymentFailed   = "payment.failed"
	TimelineInstallmentPaid = "installment.paid"
	TimelineSettlementVoid  = "settlement.voided"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Actor    string
	Occurred time.Time
}
