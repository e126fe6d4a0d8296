package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
)

const actorCheckout = "checkout"

// Шаги оформления для метрик длительности.
const (
	stepReserve     = "reserve"
	stepConfirm     = "confirm"
	stepOpenSession = "open_session"
	stepAttach      = "attach_session"
	stepCompensate  = "compensate"
)

// OrderService — операции над заказами, которые использует оформление.
type OrderService interface {
	Create(ctx context.Context, in orders.CreateInput) (domain.Order, error)
	Confirm(ctx context.Context, id string, in orders.ConfirmInput) (orders.Confirmation, error)
	Cancel(ctx context.Context, id, actor, reason string) (domain.Order, error)
	Get(ctx context.Context, id string) (domain.Order, error)
	AttachPaymentSession(ctx context.Context, id string, session domain.PaymentSession) (domain.Order, error)
}

// Result — итог оформления. Confirmation заполнено для рассрочки, Session — для оплаты картой.
type Result struct {
	Order        domain.Order
	Confirmation *orders.Confirmation
	Session      *domain.PaymentSession
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics подключает метрики оформления.
func WithMetrics(m *metrics.SalesMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRetryConfig задаёт политику повторов обращения к шлюзу.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// Orchestrator проводит заказ через шаги: резерв → (рассрочка: продажа | карта: сессия оплаты).
// Сбой открытия сессии компенсируется отменой заказа со снятием резерва.
type Orchestrator struct {
	orders  OrderService
	gateway domain.PaymentGateway
	logger  *log.Entry
	metrics *metrics.SalesMetrics
	retry   RetryConfig
}

// NewOrchestrator создаёт оркестратор оформления.
func NewOrchestrator(orders OrderService, gateway domain.PaymentGateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		orders:  orders,
		gateway: gateway,
		logger:  log.WithField("component", "checkout"),
		retry:   DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Checkout создаёт заказ и выполняет следующий шаг в зависимости от способа оплаты.
func (o *Orchestrator) Checkout(ctx context.Context, in orders.CreateInput) (Result, error) {
	started := time.Now()
	o.metrics.RecordCheckoutStarted()
	ok := false
	defer func() {
		o.metrics.RecordCheckoutFinished(ok, time.Since(started))
	}()

	var order domain.Order
	err := o.step(stepReserve, func() error {
		var err error
		order, err = o.orders.Create(ctx, in)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	entry := o.logger.WithField("order_id", order.ID)

	if order.Installments > 1 {
		var confirmation orders.Confirmation
		err := o.step(stepConfirm, func() error {
			var err error
			confirmation, err = o.orders.Confirm(ctx, order.ID, orders.ConfirmInput{
				PaymentReference: "installment-plan:" + order.ID,
				Actor:            in.Actor,
			})
			return err
		})
		if err != nil {
			entry.WithError(err).Error("installment sale confirmation failed")
			o.compensate(ctx, order.ID, err)
			return Result{}, err
		}
		ok = true
		return Result{Order: confirmation.Order, Confirmation: &confirmation}, nil
	}

	if order.PaymentMethod != domain.PaymentMethodCard {
		entry.WithField("payment_method", order.PaymentMethod).Info("order awaits manual confirmation")
		ok = true
		return Result{Order: order}, nil
	}

	session, updated, err := o.openSession(ctx, order)
	if err != nil {
		entry.WithError(err).Warn("payment session failed, canceling order")
		o.compensate(ctx, order.ID, err)
		return Result{}, err
	}
	ok = true
	return Result{Order: updated, Session: &session}, nil
}

// OpenSession повторно открывает сессию оплаты для ожидающего заказа с единовременной оплатой картой.
// В отличие от Checkout, сбой шлюза не отменяет заказ.
func (o *Orchestrator) OpenSession(ctx context.Context, orderID string) (Result, error) {
	order, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return Result{}, &domain.TransitionError{Entity: "order", ID: order.ID, From: string(order.Status), To: "session_opened"}
	}
	if order.PaymentMethod != domain.PaymentMethodCard || order.Installments > 1 {
		return Result{}, fmt.Errorf("order %s is not a single card payment: %w", order.ID, domain.ErrPaymentMethodInvalid)
	}

	session, updated, err := o.openSession(ctx, order)
	if err != nil {
		return Result{}, err
	}
	return Result{Order: updated, Session: &session}, nil
}

func (o *Orchestrator) openSession(ctx context.Context, order domain.Order) (domain.PaymentSession, domain.Order, error) {
	if o.gateway == nil {
		return domain.PaymentSession{}, domain.Order{}, fmt.Errorf("payment gateway is not configured: %w", domain.ErrGateway)
	}

	var session domain.PaymentSession
	err := o.step(stepOpenSession, func() error {
		return withRetry(ctx, o.retry, o.logger, stepOpenSession, func() error {
			var err error
			session, err = o.gateway.OpenSinglePaymentSession(ctx, order)
			return err
		})
	})
	if err != nil {
		o.metrics.RecordGatewayError()
		if !errors.Is(err, domain.ErrGateway) {
			err = fmt.Errorf("open payment session: %v: %w", err, domain.ErrGateway)
		}
		return domain.PaymentSession{}, domain.Order{}, err
	}

	var updated domain.Order
	err = o.step(stepAttach, func() error {
		var err error
		updated, err = o.orders.AttachPaymentSession(ctx, order.ID, session)
		return err
	})
	if err != nil {
		return domain.PaymentSession{}, domain.Order{}, err
	}
	return session, updated, nil
}

// compensate отменяет заказ, чтобы освободить резерв. Выполняется даже при отменённом ctx.
func (o *Orchestrator) compensate(ctx context.Context, orderID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := o.step(stepCompensate, func() error {
		_, err := o.orders.Cancel(ctx, orderID, actorCheckout, "checkout failed: "+cause.Error())
		return err
	})
	if err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Error("compensation failed, reservation left for expiry reaper")
	}
}

func (o *Orchestrator) step(name string, fn func() error) error {
	started := time.Now()
	err := fn()
	o.metrics.RecordStepDuration(name, time.Since(started))
	return err
}
