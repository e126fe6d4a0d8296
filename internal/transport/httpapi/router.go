package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/checkout"
	"github.com/vladislavdragonenkov/sales/internal/service/installments"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
	"github.com/vladislavdragonenkov/sales/internal/service/settlement"
	"github.com/vladislavdragonenkov/sales/internal/service/webhook"
)

const defaultActor = "api"

// CheckoutService оформляет заказы и переоткрывает сессии оплаты.
type CheckoutService interface {
	Checkout(ctx context.Context, in orders.CreateInput) (checkout.Result, error)
	OpenSession(ctx context.Context, orderID string) (checkout.Result, error)
}

// OrderService — чтение и ручные переходы заказов.
type OrderService interface {
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	Confirm(ctx context.Context, id string, in orders.ConfirmInput) (orders.Confirmation, error)
	Cancel(ctx context.Context, id, actor, reason string) (domain.Order, error)
	Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error)
}

// SettlementService — продажи.
type SettlementService interface {
	Get(ctx context.Context, id string) (settlement.Details, error)
	GetByOrder(ctx context.Context, orderID string) (settlement.Details, error)
	Void(ctx context.Context, id string, in settlement.VoidInput) (domain.Settlement, error)
}

// InstallmentService — платежи рассрочки.
type InstallmentService interface {
	OpenPaymentSession(ctx context.Context, id string) (domain.PaymentSession, error)
	Stats(ctx context.Context, settlementID string, now time.Time) (domain.InstallmentStats, error)
	List(ctx context.Context, filter domain.InstallmentFilter) ([]domain.Installment, error)
}

// InventoryService — варианты и складской журнал.
type InventoryService interface {
	RegisterVariant(ctx context.Context, in inventory.RegisterInput) (domain.Variant, error)
	GetVariant(ctx context.Context, id string) (domain.Variant, error)
	Adjust(ctx context.Context, adj inventory.Adjustment) (inventory.AdjustResult, error)
	Movements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error)
}

// WebhookHandler применяет событие шлюза.
type WebhookHandler interface {
	Handle(ctx context.Context, ev domain.PaymentEvent) (webhook.Outcome, error)
}

// SignatureVerifier проверяет подпись webhook.
type SignatureVerifier interface {
	Verify(payload []byte, header string) error
}

// Services — зависимости HTTP API.
type Services struct {
	Checkout     CheckoutService
	Orders       OrderService
	Settlements  SettlementService
	Installments InstallmentService
	Inventory    InventoryService
	Webhooks     WebhookHandler
	Verifier     SignatureVerifier
	// Idempotency хранит ответы на запросы с заголовком Idempotency-Key. nil отключает механизм.
	Idempotency domain.IdempotencyRepository
}

// Option настраивает API.
type Option func(*API)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock подменяет источник времени (статистика и просрочка рассрочки).
func WithClock(clock func() time.Time) Option {
	return func(a *API) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithIdempotencyTTL задаёт срок хранения ответа по Idempotency-Key.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(a *API) {
		if ttl > 0 {
			a.idempotencyTTL = ttl
		}
	}
}

// API — HTTP-обработчики сервиса продаж.
type API struct {
	svc            Services
	logger         *log.Entry
	clock          func() time.Time
	idempotencyTTL time.Duration
}

// NewRouter собирает gin.Engine со всеми маршрутами.
func NewRouter(svc Services, opts ...Option) *gin.Engine {
	api := &API{
		svc:            svc,
		logger:         log.WithField("component", "http-api"),
		clock:          func() time.Time { return time.Now().UTC() },
		idempotencyTTL: defaultIdempotencyTTL,
	}
	for _, opt := range opts {
		opt(api)
	}

	r := gin.New()
	r.Use(requestID(), recovery(api.logger), accessLog(api.logger), instrument())

	r.POST("/orders", idempotent(svc.Idempotency, api.idempotencyTTL, api.logger), api.createOrder)
	r.GET("/orders", api.listOrders)
	r.GET("/orders/:id", api.getOrder)
	r.POST("/orders/:id/confirm", idempotent(svc.Idempotency, api.idempotencyTTL, api.logger), api.confirmOrder)
	r.POST("/orders/:id/cancel", api.cancelOrder)
	r.POST("/orders/:id/payment-session", api.reopenSession)
	r.GET("/orders/:id/timeline", api.orderTimeline)
	r.GET("/orders/:id/settlement", api.orderSettlement)

	r.GET("/settlements/:id", api.getSettlement)
	r.POST("/settlements/:id/void", api.voidSettlement)
	r.GET("/settlements/:id/installments/stats", api.installmentStats)

	r.GET("/installments", api.listInstallments)
	r.POST("/installments/:id/payment-session", api.openInstallmentSession)

	r.POST("/variants", api.registerVariant)
	r.GET("/variants/:id", api.getVariant)
	r.POST("/variants/:id/adjust", api.adjustVariant)
	r.GET("/variants/:id/movements", api.variantMovements)

	r.POST("/webhook/payment", api.paymentWebhook)

	return r
}

func actorOr(actor string) string {
	if actor == "" {
		return defaultActor
	}
	return actor
}
