package memory

import (
	"sync"
	"time"

	"github.com/nailflow/capacity/internal/domain"
)

// capacityRepositoryInMemory — in-memory реализация CapacityRepository.
// Все мутации сериализуются на одном мьютексе, поэтому условный инкремент
// атомарен относительно конкурентных вызовов.
type capacityRepositoryInMemory struct {
	mu    sync.RWMutex
	weeks map[int64]domain.WeekRecord
}

// NewCapacityRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewCapacityRepository() domain.CapacityRepository {
	return &capacityRepositoryInMemory{
		weeks: make(map[int64]domain.WeekRecord),
	}
}

func weekKey(weekStart time.Time) int64 {
	return weekStart.Unix()
}

// Get возвращает запись недели или ErrWeekNotFound, если её нет.
func (r *capacityRepositoryInMemory) Get(weekStart time.Time) (domain.WeekRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.weeks[weekKey(weekStart)]
	if !ok {
		return domain.WeekRecord{}, domain.ErrWeekNotFound
	}
	return record, nil
}

// LatestBefore возвращает самую позднюю запись со стартом строго раньше weekStart.
func (r *capacityRepositoryInMemory) LatestBefore(weekStart time.Time) (domain.WeekRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	boundary := weekKey(weekStart)
	var (
		bestKey int64
		found   bool
	)
	for key := range r.weeks {
		if key >= boundary {
			continue
		}
		if !found || key > bestKey {
			bestKey = key
			found = true
		}
	}
	if !found {
		return domain.WeekRecord{}, domain.ErrWeekNotFound
	}
	return r.weeks[bestKey], nil
}

// Create сохраняет новую запись недели, если weekStart ещё не занят.
func (r *capacityRepositoryInMemory) Create(record domain.WeekRecord) (domain.WeekRecord, error) {
	if errs := record.ValidateInvariants(); len(errs) > 0 {
		return domain.WeekRecord{}, errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := weekKey(record.WeekStart)
	if _, exists := r.weeks[key]; exists {
		return domain.WeekRecord{}, domain.ErrWeekAlreadyExists
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	r.weeks[key] = record
	return record, nil
}

// IncrementCount выполняет условный инкремент под общим мьютексом:
// проверка orders_count < capacity и запись неразделимы.
func (r *capacityRepositoryInMemory) IncrementCount(weekStart time.Time) (domain.WeekRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := weekKey(weekStart)
	record, ok := r.weeks[key]
	if !ok {
		return domain.WeekRecord{}, domain.ErrWeekNotFound
	}
	if record.OrdersCount >= record.Capacity {
		return domain.WeekRecord{}, domain.ErrCapacityExceeded
	}

	record.OrdersCount++
	record.UpdatedAt = time.Now().UTC()
	r.weeks[key] = record
	return record, nil
}

// SetCapacity задаёт вместимость недели.
func (r *capacityRepositoryInMemory) SetCapacity(weekStart time.Time, capacity int) (domain.WeekRecord, error) {
	if capacity < 1 {
		return domain.WeekRecord{}, domain.ErrInvalidCapacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := weekKey(weekStart)
	record, ok := r.weeks[key]
	if !ok {
		return domain.WeekRecord{}, domain.ErrWeekNotFound
	}

	record.Capacity = capacity
	record.UpdatedAt = time.Now().UTC()
	r.weeks[key] = record
	return record, nil
}

// SetCount — административная перезапись счётчика заказов.
func (r *capacityRepositoryInMemory) SetCount(weekStart time.Time, count int) (domain.WeekRecord, error) {
	if count < 0 {
		return domain.WeekRecord{}, domain.ErrInvalidCount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := weekKey(weekStart)
	record, ok := r.weeks[key]
	if !ok {
		return domain.WeekRecord{}, domain.ErrWeekNotFound
	}

	record.OrdersCount = count
	record.UpdatedAt = time.Now().UTC()
	r.weeks[key] = record
	return record, nil
}

var _ domain.CapacityRepository = (*capacityRepositoryInMemory)(nil)
