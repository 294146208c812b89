package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nailflow/capacity/internal/domain"
)

// auditRepositoryInMemory хранит события аудита в памяти (для разработки/тестов).
type auditRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[int64][]domain.AuditEvent
}

// NewAuditRepository создаёт in-memory реализацию AuditRepository.
func NewAuditRepository() domain.AuditRepository {
	return &auditRepositoryInMemory{events: make(map[int64][]domain.AuditEvent)}
}

// Append добавляет событие в журнал недели.
func (r *auditRepositoryInMemory) Append(event domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := weekKey(event.WeekStart)
	r.events[key] = append(r.events[key], event)

	sort.Slice(r.events[key], func(i, j int) bool {
		return r.events[key][i].Occurred.Before(r.events[key][j].Occurred)
	})

	return nil
}

// List возвращает события недели в хронологическом порядке.
func (r *auditRepositoryInMemory) List(weekStart time.Time) ([]domain.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[weekKey(weekStart)]
	result := make([]domain.AuditEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.AuditRepository = (*auditRepositoryInMemory)(nil)
