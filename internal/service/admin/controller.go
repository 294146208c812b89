// Package admin реализует операции админ-панели над недельной вместимостью.
package admin

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nailflow/capacity/internal/clock"
	"github.com/nailflow/capacity/internal/domain"
	"github.com/nailflow/capacity/internal/metrics"
	"github.com/nailflow/capacity/internal/service/ledger"
)

// Principal — уже аутентифицированный вызывающий. Аутентификацию выполняет
// внешний сервис сессий; контроллер только проверяет флаг IsAdmin.
type Principal struct {
	ID      string
	IsAdmin bool
}

// WeeklyCapacityStatus — срез активной недели для админ-панели.
type WeeklyCapacityStatus struct {
	WeekStart     time.Time
	NextWeekStart time.Time
	Capacity      int
	OrdersCount   int
	Remaining     int
}

// Controller выполняет админ-операции поверх ledger и хранилища.
// Операции симуляции rollover (reset, создание следующей недели) идут через
// тот же repository API, что и боевой путь приёма: отдельной тестовой ветки нет.
type Controller struct {
	repo    domain.CapacityRepository
	audit   domain.AuditRepository
	ledger  *ledger.Ledger
	clk     clock.Clock
	logger  *log.Entry
	metrics *metrics.AdmissionMetrics
}

// NewController создаёт контроллер с зависимостями.
func NewController(
	repo domain.CapacityRepository,
	audit domain.AuditRepository,
	ldg *ledger.Ledger,
	clk clock.Clock,
	logger *log.Entry,
	m *metrics.AdmissionMetrics,
) *Controller {
	if logger == nil {
		logger = log.WithField("component", "admin-capacity")
	}
	return &Controller{
		repo:    repo,
		audit:   audit,
		ledger:  ldg,
		clk:     clk,
		logger:  logger,
		metrics: m,
	}
}

// GetWeeklyCapacity возвращает состояние активной недели, создавая запись
// при первом обращении (то же ленивое наследование, что и у ledger).
func (c *Controller) GetWeeklyCapacity(p Principal) (WeeklyCapacityStatus, error) {
	if err := c.authorize(p); err != nil {
		return WeeklyCapacityStatus{}, err
	}

	record, err := c.ledger.EnsureWeek(c.clk.CurrentWeekStart())
	if err != nil {
		return WeeklyCapacityStatus{}, err
	}

	c.recordOp("get")
	return c.status(record), nil
}

// UpdateWeeklyCapacity меняет вместимость активной недели.
// При capacity < 1 существующая запись остаётся нетронутой.
func (c *Controller) UpdateWeeklyCapacity(p Principal, capacity int) (WeeklyCapacityStatus, error) {
	if err := c.authorize(p); err != nil {
		return WeeklyCapacityStatus{}, err
	}
	if capacity < 1 {
		return WeeklyCapacityStatus{}, domain.ErrInvalidCapacity
	}

	weekStart := c.clk.CurrentWeekStart()
	if _, err := c.ledger.EnsureWeek(weekStart); err != nil {
		return WeeklyCapacityStatus{}, err
	}

	record, err := c.repo.SetCapacity(weekStart, capacity)
	if err != nil {
		return WeeklyCapacityStatus{}, err
	}

	c.logger.WithFields(log.Fields{
		"week_start": weekStart,
		"capacity":   capacity,
		"actor":      p.ID,
	}).Info("недельная вместимость обновлена")
	c.ledger.RecordEvent(domain.AuditCapacityUpdated, record, p.ID, fmt.Sprintf("capacity set to %d", capacity))
	c.recordOp("update_capacity")

	return c.status(record), nil
}

// ResetCurrentWeekCount обнуляет счётчик заказов активной недели.
// Вместимость и исторические недели не затрагиваются; операция предназначена
// для поддержки и репетиций rollover, не для штатной работы.
func (c *Controller) ResetCurrentWeekCount(p Principal) (WeeklyCapacityStatus, error) {
	if err := c.authorize(p); err != nil {
		return WeeklyCapacityStatus{}, err
	}

	weekStart := c.clk.CurrentWeekStart()
	if _, err := c.ledger.EnsureWeek(weekStart); err != nil {
		return WeeklyCapacityStatus{}, err
	}

	record, err := c.repo.SetCount(weekStart, 0)
	if err != nil {
		return WeeklyCapacityStatus{}, err
	}

	c.logger.WithFields(log.Fields{
		"week_start": weekStart,
		"actor":      p.ID,
	}).Warn("счётчик заказов активной недели сброшен")
	c.ledger.RecordEvent(domain.AuditCountReset, record, p.ID, "orders count reset to 0")
	c.recordOp("reset_count")

	return c.status(record), nil
}

// CreateNextWeekCapacity заранее материализует запись следующей недели,
// наследуя вместимость (но не счётчик) активной недели. Повторный вызов
// возвращает ErrWeekAlreadyExists.
func (c *Controller) CreateNextWeekCapacity(p Principal) (WeeklyCapacityStatus, error) {
	if err := c.authorize(p); err != nil {
		return WeeklyCapacityStatus{}, err
	}

	current, err := c.ledger.EnsureWeek(c.clk.CurrentWeekStart())
	if err != nil {
		return WeeklyCapacityStatus{}, err
	}

	nextStart := c.clk.NextWeekStart()
	record, err := c.repo.Create(domain.WeekRecord{
		WeekStart: nextStart,
		Capacity:  current.Capacity,
	})
	if err != nil {
		return WeeklyCapacityStatus{}, err
	}

	c.logger.WithFields(log.Fields{
		"week_start": nextStart,
		"capacity":   record.Capacity,
		"actor":      p.ID,
	}).Info("запись следующей недели создана заранее")
	c.ledger.RecordEvent(domain.AuditWeekCreated, record, p.ID, "next week created ahead of rollover")
	c.recordOp("create_next_week")

	return WeeklyCapacityStatus{
		WeekStart:     record.WeekStart,
		NextWeekStart: clock.NextWeekStart(record.WeekStart.In(c.clk.Location())),
		Capacity:      record.Capacity,
		OrdersCount:   record.OrdersCount,
		Remaining:     record.Remaining(),
	}, nil
}

// WeekHistory возвращает журнал аудита активной недели.
func (c *Controller) WeekHistory(p Principal) ([]domain.AuditEvent, error) {
	if err := c.authorize(p); err != nil {
		return nil, err
	}
	if c.audit == nil {
		return nil, nil
	}
	return c.audit.List(c.clk.CurrentWeekStart())
}

// NextWeekStartDateTime возвращает момент следующего rollover.
func (c *Controller) NextWeekStartDateTime() time.Time {
	return c.clk.NextWeekStart()
}

// FormatNextWeekStartForAdmin форматирует следующий rollover для админ-панели.
func (c *Controller) FormatNextWeekStartForAdmin() string {
	return c.clk.NextWeekStart().Format("Monday, Jan 2 2006 at 3:04 PM MST")
}

func (c *Controller) authorize(p Principal) error {
	if !p.IsAdmin {
		return domain.ErrNotAuthorized
	}
	return nil
}

func (c *Controller) status(record domain.WeekRecord) WeeklyCapacityStatus {
	return WeeklyCapacityStatus{
		WeekStart:     record.WeekStart,
		NextWeekStart: clock.NextWeekStart(record.WeekStart.In(c.clk.Location())),
		Capacity:      record.Capacity,
		OrdersCount:   record.OrdersCount,
		Remaining:     record.Remaining(),
	}
}

func (c *Controller) recordOp(operation string) {
	if c.metrics != nil {
		c.metrics.RecordAdminOperation(operation)
	}
}
