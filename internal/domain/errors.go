package domain

import "errors"

var (
	// Ошибка отсутствующей границы недельного окна.
	ErrWeekStartRequired = errors.New("week_start is required")
	// Ошибка ненормализованной границы окна (не понедельник 09:00 бизнес-таймзоны).
	ErrWeekStartNotAligned = errors.New("week_start is not aligned to a week boundary")
	// ErrWeekNotFound возвращается, если запись недели отсутствует в хранилище.
	ErrWeekNotFound = errors.New("week record not found")
	// ErrWeekAlreadyExists сигнализирует о попытке создать уже существующую неделю.
	ErrWeekAlreadyExists = errors.New("week record already exists")
	// ErrInvalidCapacity — вместимость недели должна быть не меньше 1.
	ErrInvalidCapacity = errors.New("capacity must be at least 1")
	// ErrInvalidCount — счётчик заказов не может быть отрицательным.
	ErrInvalidCount = errors.New("orders count must be non-negative")
	// ErrCapacityExceeded — недельная вместимость исчерпана; это бизнес-исход, а не сбой.
	ErrCapacityExceeded = errors.New("weekly capacity exceeded")
	// ErrNotAuthorized — у вызывающего нет прав администратора.
	ErrNotAuthorized = errors.New("admin privileges required")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// Ошибка отсутствующего idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка отсутствующего хэша запроса при создании idempotency-записи.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — запись с таким ключом уже создана.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись с таким ключом отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — повторный запрос с тем же ключом, но другим телом.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")
)

// IsCapacityExceeded проверяет, является ли ошибка исчерпанием вместимости.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}
