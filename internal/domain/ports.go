package domain

import (
	"context"
	"time"
)

// PaymentGateway — контракт внешнего платёжного провайдера.
// Ошибки открытия сессии всегда возвращаются вызывающему, состояние домена при этом не меняется.
type PaymentGateway interface {
	// OpenSinglePaymentSession открывает сессию единовременной оплаты заказа.
	OpenSinglePaymentSession(ctx context.Context, order Order) (PaymentSession, error)
	// OpenInstallmentSession открывает сессию оплаты одного платежа рассрочки.
	OpenInstallmentSession(ctx context.Context, installment Installment) (PaymentSession, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository обслуживает outbox вне транзакций бизнес-операций (для воркера).
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	// Delete освобождает ключ, чтобы повторная доставка могла быть обработана заново.
	Delete(key string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
