package domain

import "context"

// Store открывает атомарные единицы работы.
type Store interface {
	// WithinTx выполняет fn в одной транзакции. Любая ошибка fn откатывает все изменения:
	// резервы, движения, статусы, outbox и timeline.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx — набор репозиториев, привязанных к одной транзакции.
type Tx interface {
	Variants() VariantRepository
	Movements() MovementRepository
	Orders() OrderRepository
	Settlements() SettlementRepository
	Installments() InstallmentRepository
	Outbox() OutboxWriter
	Timeline() TimelineWriter
}

// VariantRepository хранит варианты. Остаток меняет только складской журнал.
type VariantRepository interface {
	Create(ctx context.Context, v Variant) error
	Get(ctx context.Context, id string) (Variant, error)
	// GetForUpdate читает вариант с эксклюзивной блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Variant, error)
	UpdateStock(ctx context.Context, id string, stock int) error
}

// MovementRepository — журнал движения остатков, только добавление.
type MovementRepository interface {
	Append(ctx context.Context, m InventoryMovement) error
	List(ctx context.Context, filter MovementFilter) ([]InventoryMovement, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate блокирует строку заказа до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	// GetBySessionRef ищет заказ по идентификатору платёжной сессии.
	GetBySessionRef(ctx context.Context, ref string) (Order, error)
	// Save применяет изменения с учётом optimistic locking по Version.
	Save(ctx context.Context, order Order) error
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// SettlementRepository хранит продажи. Удаление не предусмотрено.
type SettlementRepository interface {
	Create(ctx context.Context, s Settlement) error
	Get(ctx context.Context, id string) (Settlement, error)
	GetForUpdate(ctx context.Context, id string) (Settlement, error)
	GetByOrder(ctx context.Context, orderID string) (Settlement, error)
	Save(ctx context.Context, s Settlement) error
}

// InstallmentRepository хранит график платежей.
type InstallmentRepository interface {
	CreateBatch(ctx context.Context, items []Installment) error
	Get(ctx context.Context, id string) (Installment, error)
	GetForUpdate(ctx context.Context, id string) (Installment, error)
	GetBySessionRef(ctx context.Context, ref string) (Installment, error)
	Save(ctx context.Context, item Installment) error
	List(ctx context.Context, filter InstallmentFilter) ([]Installment, error)
}

// OutboxWriter пишет события в outbox в рамках транзакции.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// TimelineWriter пишет события timeline в рамках транзакции.
type TimelineWriter interface {
	Append(ctx context.Context, event TimelineEvent) error
}
