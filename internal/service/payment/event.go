package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Типы событий шлюза.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventIntentSucceeded   = "payment_intent.succeeded"
	EventIntentFailed      = "payment_intent.payment_failed"
)

type gatewayEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object gatewayObject `json:"object"`
	} `json:"data"`
}

type gatewayObject struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	PaymentIntent    string            `json:"payment_intent"`
	PaymentStatus    string            `json:"payment_status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// ParseEvent разбирает JSON события шлюза в domain.PaymentEvent.
// Неизвестные типы событий возвращаются с видом domain.PaymentEventIgnored.
func ParseEvent(payload []byte) (domain.PaymentEvent, error) {
	var raw gatewayEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("decode event: %v: %w", err, domain.ErrEventMalformed)
	}
	if raw.ID == "" || raw.Type == "" {
		return domain.PaymentEvent{}, fmt.Errorf("event id and type are required: %w", domain.ErrEventMalformed)
	}

	obj := raw.Data.Object
	ev := domain.PaymentEvent{
		ID:            raw.ID,
		RawType:       raw.Type,
		OrderID:       obj.Metadata["order_id"],
		InstallmentID: obj.Metadata["installment_id"],
		Kind:          domain.PaymentEventIgnored,
	}
	if raw.Created > 0 {
		ev.OccurredAt = time.Unix(raw.Created, 0).UTC()
	}

	switch raw.Type {
	case EventCheckoutCompleted:
		ev.SessionRef = obj.ID
		ev.PaymentRef = obj.PaymentIntent
		if ev.PaymentRef == "" {
			ev.PaymentRef = obj.ID
		}
		if obj.PaymentStatus != "" && obj.PaymentStatus != "paid" {
			// Асинхронные способы оплаты: деньги ещё не поступили.
			return ev, nil
		}
		ev.Kind = successKind(obj.Metadata)
	case EventIntentSucceeded:
		ev.PaymentRef = obj.ID
		ev.Kind = successKind(obj.Metadata)
	case EventIntentFailed:
		ev.PaymentRef = obj.ID
		ev.Kind = domain.PaymentEventFailed
		ev.Reason = "payment failed"
		if obj.LastPaymentError != nil && obj.LastPaymentError.Message != "" {
			ev.Reason = obj.LastPaymentError.Message
		}
	case EventCheckoutExpired:
		ev.SessionRef = obj.ID
		ev.Kind = domain.PaymentEventFailed
		ev.Reason = "checkout session expired"
	}

	if ev.Kind != domain.PaymentEventIgnored && ev.OrderID == "" && ev.InstallmentID == "" && ev.SessionRef == "" {
		return domain.PaymentEvent{}, fmt.Errorf("event %s has no reference: %w", raw.ID, domain.ErrEventMalformed)
	}
	return ev, nil
}

func successKind(metadata map[string]string) domain.PaymentEventKind {
	if metadata["kind"] == KindInstallment || metadata["installment_id"] != "" {
		return domain.PaymentEventInstallmentSucceeded
	}
	return domain.PaymentEventSingleSucceeded
}
