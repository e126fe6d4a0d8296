package domain

import "time"

// PaymentSession — сессия оплаты, открытая у внешнего шлюза.
type PaymentSession struct {
	// Непрозрачный идентификатор сессии у шлюза.
	Ref string
	// Адрес страницы оплаты для редиректа клиента.
	URL string
	// Секрет для клиентской интеграции, если шлюз его выдаёт.
	ClientSecret string
	ExpiresAt    time.Time
}

// PaymentEventKind — доменная классификация входящего события шлюза.
type PaymentEventKind string

const (
	// Успешная единовременная оплата заказа.
	PaymentEventSingleSucceeded PaymentEventKind = "single_payment_succeeded"
	// Успешная оплата одного платежа рассрочки.
	PaymentEventInstallmentSucceeded PaymentEventKind = "installment_payment_succeeded"
	// Оплата не прошла; клиент может повторить.
	PaymentEventFailed PaymentEventKind = "payment_failed"
	// Событие, не влияющее на заказы.
	PaymentEventIgnored PaymentEventKind = "ignored"
)

// PaymentEvent — событие шлюза, приведённое к доменной форме.
type PaymentEvent struct {
	// Стабильный идентификатор события у шлюза, ключ идемпотентности.
	ID   string
	Kind PaymentEventKind
	// Исходный тип события шлюза, для логов.
	RawType       string
	SessionRef    string
	PaymentRef    string
	OrderID       string
	InstallmentID string
	Reason        string
	OccurredAt    time.Time
}
