package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Store — in-memory хранилище для локальной разработки и тестов.
// Транзакции выполняются строго по одной, изменения откатываются по журналу отмены.
// Вложенный WithinTx на том же Store приведёт к взаимоблокировке.
type Store struct {
	mu sync.Mutex

	variants     map[string]domain.Variant
	skus         map[string]string
	movements    []domain.InventoryMovement
	orders       map[string]domain.Order
	settlements  map[string]domain.Settlement
	installments map[string]domain.Installment

	outbox   *outboxRepositoryInMemory
	timeline *timelineRepositoryInMemory
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		variants:     make(map[string]domain.Variant),
		skus:         make(map[string]string),
		orders:       make(map[string]domain.Order),
		settlements:  make(map[string]domain.Settlement),
		installments: make(map[string]domain.Installment),
		outbox:       NewOutboxRepository(),
		timeline:     NewTimelineRepository(),
	}
}

// Outbox возвращает outbox, в который попадают события зафиксированных транзакций.
func (s *Store) Outbox() domain.OutboxRepository { return s.outbox }

// Timeline возвращает хранилище timeline заказов.
func (s *Store) Timeline() domain.TimelineRepository { return s.timeline }

// WithinTx выполняет fn атомарно. Ошибка или паника внутри fn откатывает все изменения.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commit()
	committed = true
	return nil
}

type memTx struct {
	store    *Store
	undo     []func()
	outbox   []domain.OutboxMessage
	timeline []domain.TimelineEvent
}

func (t *memTx) onRollback(fn func()) { t.undo = append(t.undo, fn) }

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.outbox = nil
	t.timeline = nil
}

func (t *memTx) commit() {
	for _, msg := range t.outbox {
		// Enqueue in-memory outbox не возвращает ошибок.
		_, _ = t.store.outbox.Enqueue(msg)
	}
	for _, event := range t.timeline {
		_ = t.store.timeline.Append(event)
	}
}

func (t *memTx) Variants() domain.VariantRepository         { return txVariants{t} }
func (t *memTx) Movements() domain.MovementRepository       { return txMovements{t} }
func (t *memTx) Orders() domain.OrderRepository             { return txOrders{t} }
func (t *memTx) Settlements() domain.SettlementRepository   { return txSettlements{t} }
func (t *memTx) Installments() domain.InstallmentRepository { return txInstallments{t} }
func (t *memTx) Outbox() domain.OutboxWriter                { return txOutbox{t} }
func (t *memTx) Timeline() domain.TimelineWriter            { return txTimeline{t} }

// --- variants ---

type txVariants struct{ tx *memTx }

func (r txVariants) Create(_ context.Context, v domain.Variant) error {
	s := r.tx.store
	if _, ok := s.variants[v.ID]; ok {
		return domain.ErrVariantExists
	}
	if _, ok := s.skus[v.SKU]; ok {
		return domain.ErrVariantExists
	}
	s.variants[v.ID] = v
	s.skus[v.SKU] = v.ID
	r.tx.onRollback(func() {
		delete(s.variants, v.ID)
		delete(s.skus, v.SKU)
	})
	return nil
}

func (r txVariants) Get(_ context.Context, id string) (domain.Variant, error) {
	v, ok := r.tx.store.variants[id]
	if !ok {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	return v, nil
}

// GetForUpdate совпадает с Get: транзакция уже держит эксклюзивную блокировку хранилища.
func (r txVariants) GetForUpdate(ctx context.Context, id string) (domain.Variant, error) {
	return r.Get(ctx, id)
}

func (r txVariants) UpdateStock(_ context.Context, id string, stock int) error {
	s := r.tx.store
	prev, ok := s.variants[id]
	if !ok {
		return domain.ErrVariantNotFound
	}
	if stock < 0 {
		return domain.ErrStockNegative
	}
	next := prev
	next.Stock = stock
	next.UpdatedAt = time.Now().UTC()
	s.variants[id] = next
	r.tx.onRollback(func() { s.variants[id] = prev })
	return nil
}

// --- movements ---

type txMovements struct{ tx *memTx }

func (r txMovements) Append(_ context.Context, m domain.InventoryMovement) error {
	s := r.tx.store
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	n := len(s.movements)
	s.movements = append(s.movements, m)
	r.tx.onRollback(func() { s.movements = s.movements[:n] })
	return nil
}

func (r txMovements) List(_ context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	result := make([]domain.InventoryMovement, 0)
	for i := range r.tx.store.movements {
		m := &r.tx.store.movements[i]
		if !filter.Matches(m) {
			continue
		}
		result = append(result, *m)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// --- orders ---

type txOrders struct{ tx *memTx }

func (r txOrders) Create(_ context.Context, order domain.Order) error {
	s := r.tx.store
	if _, exists := s.orders[order.ID]; exists {
		return domain.ErrVersionConflict
	}
	s.orders[order.ID] = order.Clone()
	r.tx.onRollback(func() { delete(s.orders, order.ID) })
	return nil
}

func (r txOrders) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.tx.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r txOrders) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

func (r txOrders) GetBySessionRef(_ context.Context, ref string) (domain.Order, error) {
	if ref == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	for _, order := range r.tx.store.orders {
		if order.PaymentSessionRef == ref {
			return order.Clone(), nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r txOrders) Save(_ context.Context, order domain.Order) error {
	s := r.tx.store
	current, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrVersionConflict
	}
	order = order.Clone()
	order.Version++
	s.orders[order.ID] = order
	r.tx.onRollback(func() { s.orders[order.ID] = current })
	return nil
}

// List возвращает заказы в порядке создания.
func (r txOrders) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	for _, order := range r.tx.store.orders {
		order := order
		if filter.Matches(&order) {
			result = append(result, order.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// --- settlements ---

type txSettlements struct{ tx *memTx }

func (r txSettlements) Create(_ context.Context, settlement domain.Settlement) error {
	s := r.tx.store
	if _, exists := s.settlements[settlement.ID]; exists {
		return domain.ErrVersionConflict
	}
	for _, existing := range s.settlements {
		if existing.OrderID == settlement.OrderID {
			return domain.ErrVersionConflict
		}
	}
	s.settlements[settlement.ID] = settlement.Clone()
	r.tx.onRollback(func() { delete(s.settlements, settlement.ID) })
	return nil
}

func (r txSettlements) Get(_ context.Context, id string) (domain.Settlement, error) {
	settlement, ok := r.tx.store.settlements[id]
	if !ok {
		return domain.Settlement{}, domain.ErrSettlementNotFound
	}
	return settlement.Clone(), nil
}

func (r txSettlements) GetForUpdate(ctx context.Context, id string) (domain.Settlement, error) {
	return r.Get(ctx, id)
}

func (r txSettlements) GetByOrder(_ context.Context, orderID string) (domain.Settlement, error) {
	for _, settlement := range r.tx.store.settlements {
		if settlement.OrderID == orderID {
			return settlement.Clone(), nil
		}
	}
	return domain.Settlement{}, domain.ErrSettlementNotFound
}

func (r txSettlements) Save(_ context.Context, settlement domain.Settlement) error {
	s := r.tx.store
	current, ok := s.settlements[settlement.ID]
	if !ok {
		return domain.ErrSettlementNotFound
	}
	if current.Version != settlement.Version {
		return domain.ErrVersionConflict
	}
	settlement = settlement.Clone()
	settlement.Version++
	s.settlements[settlement.ID] = settlement
	r.tx.onRollback(func() { s.settlements[settlement.ID] = current })
	return nil
}

// --- installments ---

type txInstallments struct{ tx *memTx }

func (r txInstallments) CreateBatch(_ context.Context, items []domain.Installment) error {
	s := r.tx.store
	for _, item := range items {
		if _, exists := s.installments[item.ID]; exists {
			return domain.ErrVersionConflict
		}
	}
	for _, item := range items {
		id := item.ID
		s.installments[id] = item
		r.tx.onRollback(func() { delete(s.installments, id) })
	}
	return nil
}

func (r txInstallments) Get(_ context.Context, id string) (domain.Installment, error) {
	item, ok := r.tx.store.installments[id]
	if !ok {
		return domain.Installment{}, domain.ErrInstallmentNotFound
	}
	return item, nil
}

func (r txInstallments) GetForUpdate(ctx context.Context, id string) (domain.Installment, error) {
	return r.Get(ctx, id)
}

func (r txInstallments) GetBySessionRef(_ context.Context, ref string) (domain.Installment, error) {
	if ref == "" {
		return domain.Installment{}, domain.ErrInstallmentNotFound
	}
	for _, item := range r.tx.store.installments {
		if item.SessionRef == ref {
			return item, nil
		}
	}
	return domain.Installment{}, domain.ErrInstallmentNotFound
}

func (r txInstallments) Save(_ context.Context, item domain.Installment) error {
	s := r.tx.store
	current, ok := s.installments[item.ID]
	if !ok {
		return domain.ErrInstallmentNotFound
	}
	if current.Version != item.Version {
		return domain.ErrVersionConflict
	}
	item.Version++
	s.installments[item.ID] = item
	r.tx.onRollback(func() { s.installments[item.ID] = current })
	return nil
}

// List возвращает платежи, упорядоченные по сроку и номеру.
func (r txInstallments) List(_ context.Context, filter domain.InstallmentFilter) ([]domain.Installment, error) {
	result := make([]domain.Installment, 0)
	for _, item := range r.tx.store.installments {
		item := item
		if filter.Matches(&item) {
			result = append(result, item)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].DueDate.Before(result[j].DueDate)
		}
		if result[i].Number != result[j].Number {
			return result[i].Number < result[j].Number
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// --- outbox / timeline ---

type txOutbox struct{ tx *memTx }

// Enqueue откладывает сообщение до фиксации транзакции.
func (w txOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	w.tx.outbox = append(w.tx.outbox, msg)
	return msg, nil
}

type txTimeline struct{ tx *memTx }

func (w txTimeline) Append(_ context.Context, event domain.TimelineEvent) error {
	w.tx.timeline = append(w.tx.timeline, event)
	return nil
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*memTx)(nil)
)
