package domain

import "time"

// CapacityRepository описывает требования к хранилищу недельных записей.
// Записи append-only: недели никогда не удаляются и остаются историей.
type CapacityRepository interface {
	// Get возвращает запись недели или ErrWeekNotFound, если её нет.
	Get(weekStart time.Time) (WeekRecord, error)
	// LatestBefore возвращает самую позднюю запись со стартом строго раньше weekStart.
	// Нужна для наследования capacity при ленивом создании новой недели.
	LatestBefore(weekStart time.Time) (WeekRecord, error)
	// Create сохраняет новую запись недели. Возвращает ErrWeekAlreadyExists,
	// если запись с таким weekStart уже существует.
	Create(record WeekRecord) (WeekRecord, error)
	// IncrementCount атомарно увеличивает счётчик заказов на 1 при условии
	// orders_count < capacity. Возвращает ErrCapacityExceeded, если условие
	// не выполнено, и ErrWeekNotFound, если записи нет. Это единственная
	// операция, закрывающая гонку check-then-act между конкурентными приёмами.
	IncrementCount(weekStart time.Time) (WeekRecord, error)
	// SetCapacity задаёт вместимость недели. ErrInvalidCapacity при capacity < 1.
	SetCapacity(weekStart time.Time, capacity int) (WeekRecord, error)
	// SetCount — административная перезапись счётчика. ErrInvalidCount при count < 0.
	SetCount(weekStart time.Time, count int) (WeekRecord, error)
}

// AuditRepository хранит события аудита недельных окон.
type AuditRepository interface {
	Append(event AuditEvent) error
	List(weekStart time.Time) ([]AuditEvent, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
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
