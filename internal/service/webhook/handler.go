package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/metrics"
	"github.com/vladislavdragonenkov/sales/internal/service/installments"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
)

// OutcomeKind — итог обработки события шлюза.
type OutcomeKind string

const (
	// Событие изменило состояние.
	OutcomeApplied OutcomeKind = "applied"
	// Событие уже было обработано ранее.
	OutcomeDuplicate OutcomeKind = "duplicate"
	// Оплата пришла по заказу, который уже нельзя подтвердить.
	OutcomeReconciliation OutcomeKind = "reconciliation"
	// Событие ссылается на неизвестный объект.
	OutcomeNotFound OutcomeKind = "not_found"
	// Неуспешная оплата записана в историю.
	OutcomeRecorded OutcomeKind = "recorded"
	// Событие не относится к заказам.
	OutcomeIgnored OutcomeKind = "ignored"
)

// Outcome описывает результат обработки. Err заполнен для reconciliation и not_found.
type Outcome struct {
	Kind          OutcomeKind
	EventID       string
	OrderID       string
	SettlementID  string
	InstallmentID string
	Err           error
}

const (
	claimPrefix = "webhook:"
	claimTTL    = 7 * 24 * time.Hour
	gatewayUser = "gateway"
)

// OrderConfirmer — часть сервиса заказов, нужная обработчику.
type OrderConfirmer interface {
	Confirm(ctx context.Context, id string, in orders.ConfirmInput) (orders.Confirmation, error)
	Get(ctx context.Context, id string) (domain.Order, error)
	GetBySessionRef(ctx context.Context, ref string) (domain.Order, error)
	RecordPaymentFailure(ctx context.Context, id, reason string) error
}

// InstallmentPayer — часть сервиса рассрочки, нужная обработчику.
type InstallmentPayer interface {
	Pay(ctx context.Context, id, gatewayRef string) (installments.PayResult, error)
	Get(ctx context.Context, id string) (domain.Installment, error)
	GetBySessionRef(ctx context.Context, ref string) (domain.Installment, error)
}

// Handler применяет события платёжного шлюза к заказам и рассрочке.
type Handler struct {
	orders       OrderConfirmer
	installments InstallmentPayer
	claims       domain.IdempotencyRepository
	logger       *log.Entry
	metrics      *metrics.SalesMetrics
	clock        func() time.Time
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.SalesMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHandler создаёт обработчик. claims может быть nil: тогда дубликаты отсекаются только проверкой состояния.
func NewHandler(orders OrderConfirmer, installments InstallmentPayer, claims domain.IdempotencyRepository, opts ...Option) *Handler {
	h := &Handler{
		orders:       orders,
		installments: installments,
		claims:       claims,
		logger:       log.WithField("component", "webhook"),
		clock:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle обрабатывает событие. Ошибка возвращается только при сбое инфраструктуры:
// в этом случае шлюз должен повторить доставку, и захват события снимается.
func (h *Handler) Handle(ctx context.Context, ev domain.PaymentEvent) (Outcome, error) {
	entry := h.logger.WithFields(log.Fields{"event_id": ev.ID, "event_type": ev.RawType})

	claimed, err := h.claim(ev.ID)
	if err != nil {
		return Outcome{}, err
	}
	if !claimed {
		entry.Debug("duplicate gateway event")
		return h.finish(entry, Outcome{Kind: OutcomeDuplicate, EventID: ev.ID}), nil
	}

	outcome, err := h.dispatch(ctx, ev)
	if err != nil {
		h.release(ev.ID)
		entry.WithError(err).Error("gateway event processing failed")
		return Outcome{}, err
	}
	outcome.EventID = ev.ID
	h.complete(ev.ID, outcome)
	return h.finish(entry, outcome), nil
}

func (h *Handler) dispatch(ctx context.Context, ev domain.PaymentEvent) (Outcome, error) {
	switch ev.Kind {
	case domain.PaymentEventSingleSucceeded:
		return h.applySingle(ctx, ev)
	case domain.PaymentEventInstallmentSucceeded:
		return h.applyInstallment(ctx, ev)
	case domain.PaymentEventFailed:
		return h.recordFailure(ctx, ev)
	default:
		return Outcome{Kind: OutcomeIgnored}, nil
	}
}

func (h *Handler) applySingle(ctx context.Context, ev domain.PaymentEvent) (Outcome, error) {
	order, err := h.resolveOrder(ctx, ev)
	if err != nil {
		return notFoundOr(Outcome{OrderID: ev.OrderID}, err)
	}
	out := Outcome{OrderID: order.ID}

	ref := ev.PaymentRef
	if ref == "" {
		ref = ev.SessionRef
	}
	confirmation, err := h.orders.Confirm(ctx, order.ID, orders.ConfirmInput{PaymentReference: ref, Actor: gatewayUser})
	switch {
	case err == nil:
		out.Kind = OutcomeApplied
		out.SettlementID = confirmation.Settlement.ID
		return out, nil
	case errors.Is(err, domain.ErrInvalidStateTransition):
		current, getErr := h.orders.Get(ctx, order.ID)
		if getErr != nil {
			return Outcome{}, getErr
		}
		if current.Status == domain.OrderStatusPaid {
			out.Kind = OutcomeDuplicate
			return out, nil
		}
		out.Kind = OutcomeReconciliation
		out.Err = fmt.Errorf("payment %s for %s order %s: %w", ref, current.Status, order.ID, domain.ErrReconciliation)
		return out, nil
	default:
		return notFoundOr(out, err)
	}
}

func (h *Handler) applyInstallment(ctx context.Context, ev domain.PaymentEvent) (Outcome, error) {
	inst, err := h.resolveInstallment(ctx, ev)
	if err != nil {
		return notFoundOr(Outcome{InstallmentID: ev.InstallmentID}, err)
	}
	out := Outcome{InstallmentID: inst.ID, OrderID: inst.OrderID, SettlementID: inst.SettlementID}

	ref := ev.PaymentRef
	if ref == "" {
		ref = ev.SessionRef
	}
	_, err = h.installments.Pay(ctx, inst.ID, ref)
	switch {
	case err == nil:
		out.Kind = OutcomeApplied
		return out, nil
	case errors.Is(err, domain.ErrInstallmentAlreadyPaid):
		out.Kind = OutcomeDuplicate
		return out, nil
	case errors.Is(err, domain.ErrReconciliation):
		out.Kind = OutcomeReconciliation
		out.Err = err
		return out, nil
	default:
		return notFoundOr(out, err)
	}
}

func (h *Handler) recordFailure(ctx context.Context, ev domain.PaymentEvent) (Outcome, error) {
	orderID := ev.OrderID
	out := Outcome{InstallmentID: ev.InstallmentID}
	if orderID == "" && ev.InstallmentID != "" {
		inst, err := h.installments.Get(ctx, ev.InstallmentID)
		if err != nil {
			return notFoundOr(out, err)
		}
		orderID = inst.OrderID
	}
	if orderID == "" {
		order, err := h.resolveOrder(ctx, ev)
		if err != nil {
			return notFoundOr(out, err)
		}
		orderID = order.ID
	}
	out.OrderID = orderID

	if err := h.orders.RecordPaymentFailure(ctx, orderID, ev.Reason); err != nil {
		return notFoundOr(out, err)
	}
	out.Kind = OutcomeRecorded
	return out, nil
}

func (h *Handler) resolveOrder(ctx context.Context, ev domain.PaymentEvent) (domain.Order, error) {
	if ev.OrderID != "" {
		return domain.Order{ID: ev.OrderID}, nil
	}
	return h.orders.GetBySessionRef(ctx, ev.SessionRef)
}

func (h *Handler) resolveInstallment(ctx context.Context, ev domain.PaymentEvent) (domain.Installment, error) {
	if ev.InstallmentID != "" {
		return h.installments.Get(ctx, ev.InstallmentID)
	}
	return h.installments.GetBySessionRef(ctx, ev.SessionRef)
}

// notFoundOr превращает ошибку поиска в подтверждаемый исход, остальные ошибки пробрасывает.
func notFoundOr(out Outcome, err error) (Outcome, error) {
	if errors.Is(err, domain.ErrReferenceNotFound) {
		out.Kind = OutcomeNotFound
		out.Err = err
		return out, nil
	}
	return Outcome{}, err
}

// claim занимает событие. Завершённая запись (done или failed) означает дубликат.
// Запись в processing остаётся от прерванной доставки или от параллельной: событие
// обрабатывается заново, повтор отсекают проверки состояния в Confirm и Pay.
func (h *Handler) claim(eventID string) (bool, error) {
	if h.claims == nil {
		return true, nil
	}
	record, err := h.claims.CreateProcessing(claimPrefix+eventID, eventID, h.clock().Add(claimTTL))
	switch {
	case err == nil:
		return true, nil
	case domain.IsIdempotencyConflict(err):
		if record.Status.Finished() {
			return false, nil
		}
		h.logger.WithField("event_id", eventID).Warn("taking over unfinished event claim")
		return true, nil
	default:
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
}

func (h *Handler) release(eventID string) {
	if h.claims == nil {
		return
	}
	if err := h.claims.Delete(claimPrefix + eventID); err != nil {
		h.logger.WithError(err).WithField("event_id", eventID).Warn("failed to release event claim")
	}
}

func (h *Handler) complete(eventID string, outcome Outcome) {
	if h.claims == nil {
		return
	}
	if err := h.claims.MarkDone(claimPrefix+eventID, []byte(outcome.Kind), http.StatusOK); err != nil {
		h.logger.WithError(err).WithField("event_id", eventID).Warn("failed to mark event claim done")
	}
}

func (h *Handler) finish(entry *log.Entry, outcome Outcome) Outcome {
	h.metrics.RecordWebhookOutcome(string(outcome.Kind))
	entry = entry.WithFields(log.Fields{
		"outcome":        outcome.Kind,
		"order_id":       outcome.OrderID,
		"installment_id": outcome.InstallmentID,
	})
	switch outcome.Kind {
	case OutcomeReconciliation:
		entry.WithError(outcome.Err).Error("payment requires manual reconciliation")
	case OutcomeNotFound:
		entry.WithError(outcome.Err).Warn("gateway event references unknown object")
	case OutcomeApplied, OutcomeRecorded:
		entry.Info("gateway event applied")
	default:
		entry.Debug("gateway event acknowledged")
	}
	return outcome
}
