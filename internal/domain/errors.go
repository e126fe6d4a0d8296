package domain

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок. Конкретные ошибки оборачивают один из них, поэтому
// errors.Is(err, ErrReferenceNotFound) срабатывает и для ErrOrderNotFound.
var (
	// Запрошенное количество превышает доступный остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// Операция недопустима из текущего состояния.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// Сущность по идентификатору не найдена.
	ErrReferenceNotFound = errors.New("reference not found")
	// Платёжный шлюз не смог открыть сессию или проверить подпись.
	ErrGateway = errors.New("payment gateway error")
	// Событие шлюза ссылается на объект, переход которого невозможен.
	ErrReconciliation = errors.New("reconciliation required")
	// Входные данные не прошли проверку.
	ErrValidation = errors.New("validation failed")
	// Конкурентное изменение (optimistic locking, повтор ключа).
	ErrConflict = errors.New("conflict")
)

var (
	// Ошибки поиска.
	ErrVariantNotFound     = fmt.Errorf("variant: %w", ErrReferenceNotFound)
	ErrOrderNotFound       = fmt.Errorf("order: %w", ErrReferenceNotFound)
	ErrSettlementNotFound  = fmt.Errorf("settlement: %w", ErrReferenceNotFound)
	ErrInstallmentNotFound = fmt.Errorf("installment: %w", ErrReferenceNotFound)

	// Ошибки валидации заказа.
	ErrItemsRequired            = fmt.Errorf("order must contain at least one item: %w", ErrValidation)
	ErrItemQtyInvalid           = fmt.Errorf("item quantity must be greater than zero: %w", ErrValidation)
	ErrItemPriceInvalid         = fmt.Errorf("item price must be non-negative: %w", ErrValidation)
	ErrVariantRequired          = fmt.Errorf("variant_id is required: %w", ErrValidation)
	ErrDiscountInvalid          = fmt.Errorf("discount must be between zero and subtotal: %w", ErrValidation)
	ErrTotalMismatch            = fmt.Errorf("order total does not match items: %w", ErrValidation)
	ErrPaymentMethodInvalid     = fmt.Errorf("unsupported payment method: %w", ErrValidation)
	ErrInstallmentCountInvalid  = fmt.Errorf("unsupported installment count: %w", ErrValidation)
	ErrInstallmentsNeedCard     = fmt.Errorf("installment plans require card payment: %w", ErrValidation)
	ErrPaymentReferenceRequired = fmt.Errorf("payment reference is required: %w", ErrValidation)
	ErrOrderNotExpired          = fmt.Errorf("order deadline has not passed: %w", ErrInvalidStateTransition)

	// Ошибки склада.
	ErrSKURequired        = fmt.Errorf("sku is required: %w", ErrValidation)
	ErrStockNegative      = fmt.Errorf("stock must be non-negative: %w", ErrValidation)
	ErrVariantPriceNeg    = fmt.Errorf("variant price and cost must be non-negative: %w", ErrValidation)
	ErrQuantityInvalid    = fmt.Errorf("quantity must be greater than zero: %w", ErrValidation)
	ErrAdjustModeInvalid  = fmt.Errorf("adjust mode must be delta or absolute: %w", ErrValidation)
	ErrAdjustReasonNeeded = fmt.Errorf("adjust reason is required: %w", ErrValidation)
	ErrVariantExists      = fmt.Errorf("variant already exists: %w", ErrConflict)

	// Аннулирование продажи без причины запрещено.
	ErrVoidReasonRequired = fmt.Errorf("void reason is required: %w", ErrValidation)

	// Ошибки рассрочки.
	ErrInstallmentAlreadyPaid = fmt.Errorf("installment already paid: %w", ErrInvalidStateTransition)
	ErrScheduleInvalid        = fmt.Errorf("installment schedule is invalid: %w", ErrValidation)

	// Ошибки шлюза.
	ErrSignatureInvalid = fmt.Errorf("webhook signature invalid: %w", ErrGateway)
	ErrEventMalformed   = fmt.Errorf("gateway event malformed: %w", ErrGateway)

	// Некорректный фильтр выборки.
	ErrFilterInvalid = fmt.Errorf("filter is invalid: %w", ErrValidation)

	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = fmt.Errorf("version conflict: %w", ErrConflict)
	// Ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// Ошибки хранилища ключей идемпотентности.
var (
	ErrIdempotencyKeyRequired         = fmt.Errorf("idempotency key is required: %w", ErrValidation)
	ErrIdempotencyRequestHashRequired = fmt.Errorf("idempotency request hash is required: %w", ErrValidation)
	ErrIdempotencyKeyAlreadyExists    = fmt.Errorf("idempotency key already exists: %w", ErrConflict)
	ErrIdempotencyHashMismatch        = fmt.Errorf("idempotency key reused with different request: %w", ErrConflict)
	ErrIdempotencyKeyNotFound         = fmt.Errorf("idempotency key: %w", ErrReferenceNotFound)
)

// StockError подробно описывает нехватку остатка по варианту.
type StockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// TransitionError описывает попытку недопустимого перехода состояния.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// ErrorKind — тип ошибки, на который переключаются вызывающие стороны.
type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindInsufficientStock      ErrorKind = "insufficient_stock"
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	KindReferenceNotFound      ErrorKind = "reference_not_found"
	KindGateway                ErrorKind = "gateway_error"
	KindReconciliation         ErrorKind = "reconciliation_error"
	KindValidation             ErrorKind = "validation_error"
	KindConflict               ErrorKind = "conflict"
	KindInternal               ErrorKind = "internal"
)

// KindOf классифицирует ошибку. nil даёт KindNone, неизвестные ошибки дают KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrInvalidStateTransition):
		return KindInvalidStateTransition
	case errors.Is(err, ErrReferenceNotFound):
		return KindReferenceNotFound
	case errors.Is(err, ErrGateway):
		return KindGateway
	case errors.Is(err, ErrReconciliation):
		return KindReconciliation
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsIdempotencyConflict сообщает, что ключ уже занят (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
