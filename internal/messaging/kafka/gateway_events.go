package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/payment"
	"github.com/vladislavdragonenkov/sales/internal/service/webhook"
)

// PaymentEventHandler — обработчик событий шлюза (webhook.Handler).
type PaymentEventHandler interface {
	Handle(ctx context.Context, ev domain.PaymentEvent) (webhook.Outcome, error)
}

// NewGatewayEventHandler преобразует сообщения топика sales.gateway.events в вызовы
// того же обработчика, что и HTTP webhook. Подпись не проверяется: доверие к топику
// обеспечивается ACL брокера.
func NewGatewayEventHandler(handler PaymentEventHandler, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "gateway-event-consumer")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		ev, err := payment.ParseEvent(message.Value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		outcome, err := handler.Handle(ctx, ev)
		if err != nil {
			return err
		}
		logger.WithFields(log.Fields{
			"event_id": ev.ID,
			"outcome":  outcome.Kind,
			"offset":   message.Offset,
		}).Debug("gateway event handled")
		return nil
	}
}
