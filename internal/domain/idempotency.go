package domain

import "time"

// IdempotencyStatus — состояние ключа, которым помечен HTTP-запрос или событие шлюза.
type IdempotencyStatus string

const (
	// Ключ занят, обработка не завершена.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// Обработка завершилась успешно, ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// Обработка завершилась отказом клиенту, ответ сохранён для повтора.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord — занятый ключ. Для событий шлюза RequestHash содержит идентификатор события.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Finished сообщает, что у ключа есть окончательный результат и повтор его только воспроизводит.
func (s IdempotencyStatus) Finished() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// Abandoned сообщает, что ключ занят дольше staleAfter и так и не получил результата.
// Запись без времени создания брошенной не считается.
func (r IdempotencyRecord) Abandoned(now time.Time, staleAfter time.Duration) bool {
	return r.Status == IdempotencyStatusProcessing &&
		!r.CreatedAt.IsZero() &&
		now.Sub(r.CreatedAt) > staleAfter
}
