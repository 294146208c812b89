// Package ledger реализует контур приёма заказов против недельной вместимости.
package ledger

import (
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nailflow/capacity/internal/clock"
	"github.com/nailflow/capacity/internal/domain"
	"github.com/nailflow/capacity/internal/metrics"
)

// DefaultWeeklyCapacity используется, когда нет ни одной прошлой недели,
// у которой можно унаследовать вместимость.
const DefaultWeeklyCapacity = 40

const aggregateTypeWeek = "week_capacity"

// Ledger принимает решения о приёме заказов и лениво создаёт записи недель.
type Ledger struct {
	repo            domain.CapacityRepository
	audit           domain.AuditRepository
	outbox          domain.OutboxRepository
	clk             clock.Clock
	defaultCapacity int
	logger          *log.Entry
	metrics         *metrics.AdmissionMetrics
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithAudit подключает журнал аудита недель.
func WithAudit(audit domain.AuditRepository) Option {
	return func(l *Ledger) { l.audit = audit }
}

// WithOutbox подключает transactional outbox для публикации событий.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(l *Ledger) { l.outbox = outbox }
}

// WithMetrics подключает метрики приёма.
func WithMetrics(m *metrics.AdmissionMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithDefaultCapacity задаёт fallback-вместимость для самой первой недели.
func WithDefaultCapacity(capacity int) Option {
	return func(l *Ledger) {
		if capacity >= 1 {
			l.defaultCapacity = capacity
		}
	}
}

// New создаёт ledger поверх хранилища и часов.
func New(repo domain.CapacityRepository, clk clock.Clock, logger *log.Entry, options ...Option) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "capacity-ledger")
	}

	l := &Ledger{
		repo:            repo,
		clk:             clk,
		defaultCapacity: DefaultWeeklyCapacity,
		logger:          logger,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Admit решает, может ли один входящий заказ быть принят в активную неделю.
// Исчерпанная вместимость — ожидаемый исход (Allowed=false), а не ошибка.
func (l *Ledger) Admit() (domain.AdmissionDecision, error) {
	started := time.Now()

	// Граница окна фиксируется на входе: даже если реальное время пересечёт
	// понедельник 09:00 до завершения инкремента, заказ не расщепляется
	// между двумя неделями.
	weekStart := l.clk.CurrentWeekStart()

	record, err := l.EnsureWeek(weekStart)
	if err != nil {
		return domain.AdmissionDecision{}, err
	}

	if record.Full() {
		decision := domain.AdmissionDecision{Allowed: false, Remaining: 0, WeekStart: weekStart}
		l.observe(decision, started, record)
		return decision, nil
	}

	updated, err := l.repo.IncrementCount(weekStart)
	if err != nil {
		if domain.IsCapacityExceeded(err) {
			// Конкурентный приём забрал последний слот между Get и инкрементом.
			decision := domain.AdmissionDecision{Allowed: false, Remaining: 0, WeekStart: weekStart}
			l.observe(decision, started, record)
			return decision, nil
		}
		return domain.AdmissionDecision{}, err
	}

	decision := domain.AdmissionDecision{
		Allowed:   true,
		Remaining: updated.Remaining(),
		WeekStart: weekStart,
	}
	l.observe(decision, started, updated)
	l.recordEvent(domain.AuditOrderAdmitted, updated, "", "order admitted")
	return decision, nil
}

// EnsureWeek возвращает запись недели, создавая её при первом обращении.
// Вместимость наследуется от самой поздней прошлой недели, при её отсутствии
// берётся настроенный default.
func (l *Ledger) EnsureWeek(weekStart time.Time) (domain.WeekRecord, error) {
	record, err := l.repo.Get(weekStart)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrWeekNotFound) {
		return domain.WeekRecord{}, err
	}

	capacity := l.defaultCapacity
	prev, err := l.repo.LatestBefore(weekStart)
	switch {
	case err == nil:
		capacity = prev.Capacity
	case errors.Is(err, domain.ErrWeekNotFound):
		// Первая неделя в истории: остаёмся на default.
	default:
		return domain.WeekRecord{}, err
	}

	created, err := l.repo.Create(domain.WeekRecord{
		WeekStart: weekStart,
		Capacity:  capacity,
	})
	if err != nil {
		if errors.Is(err, domain.ErrWeekAlreadyExists) {
			// Проигравший гонку создания перечитывает чужую запись.
			return l.repo.Get(weekStart)
		}
		return domain.WeekRecord{}, err
	}

	if l.metrics != nil {
		l.metrics.RecordWeekCreated()
	}
	l.logger.WithFields(log.Fields{
		"week_start": created.WeekStart,
		"capacity":   created.Capacity,
	}).Info("создана запись недельного окна")
	l.recordEvent(domain.AuditWeekCreated, created, "", "week record created")

	return created, nil
}

// RecordEvent пишет событие в аудит и ставит его в outbox от имени actor.
// Используется ledger'ом и админ-контроллером, чтобы оба пути событий
// проходили через одну и ту же механику.
func (l *Ledger) RecordEvent(eventType string, record domain.WeekRecord, actor, detail string) {
	l.recordEvent(eventType, record, actor, detail)
}

func (l *Ledger) recordEvent(eventType string, record domain.WeekRecord, actor, detail string) {
	occurred := time.Now().UTC()

	if l.audit != nil {
		err := l.audit.Append(domain.AuditEvent{
			WeekStart: record.WeekStart,
			Type:      eventType,
			Actor:     actor,
			Detail:    detail,
			Occurred:  occurred,
		})
		if err != nil {
			l.logger.WithError(err).WithField("event_type", eventType).Warn("failed to append audit event")
		}
	}

	if l.outbox == nil {
		return
	}

	payload, err := json.Marshal(struct {
		WeekStart   time.Time `json:"week_start"`
		Capacity    int       `json:"capacity"`
		OrdersCount int       `json:"orders_count"`
		Actor       string    `json:"actor,omitempty"`
		Detail      string    `json:"detail,omitempty"`
		OccurredAt  time.Time `json:"occurred_at"`
	}{
		WeekStart:   record.WeekStart,
		Capacity:    record.Capacity,
		OrdersCount: record.OrdersCount,
		Actor:       actor,
		Detail:      detail,
		OccurredAt:  occurred,
	})
	if err != nil {
		l.logger.WithError(err).Warn("failed to marshal outbox payload")
		return
	}

	_, err = l.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateTypeWeek,
		AggregateID:   record.WeekStart.UTC().Format(time.RFC3339),
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		l.logger.WithError(err).WithField("event_type", eventType).Warn("failed to enqueue outbox event")
	}
}

func (l *Ledger) observe(decision domain.AdmissionDecision, started time.Time, record domain.WeekRecord) {
	if l.metrics == nil {
		return
	}
	l.metrics.RecordAdmission(decision.Allowed, time.Since(started))
	l.metrics.SetWeekRemaining(record.Remaining())
}
