package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nailflow/capacity/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type capacityRepository struct {
	db *sql.DB
}

// NewCapacityRepository создаёт PostgreSQL-реализацию CapacityRepository.
func NewCapacityRepository(store *Store) domain.CapacityRepository {
	return &capacityRepository{db: store.DB()}
}

func (r *capacityRepository) Get(weekStart time.Time) (domain.WeekRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT week_start, capacity, orders_count, created_at, updated_at
		FROM week_capacity
		WHERE week_start = $1
	`, weekStart.UTC()))
}

func (r *capacityRepository) LatestBefore(weekStart time.Time) (domain.WeekRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT week_start, capacity, orders_count, created_at, updated_at
		FROM week_capacity
		WHERE week_start < $1
		ORDER BY week_start DESC
		LIMIT 1
	`, weekStart.UTC()))
}

func (r *capacityRepository) Create(record domain.WeekRecord) (domain.WeekRecord, error) {
	if errs := record.ValidateInvariants(); len(errs) > 0 {
		return domain.WeekRecord{}, errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO week_capacity (
			week_start, capacity, orders_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5)
	`,
		record.WeekStart.UTC(), record.Capacity, record.OrdersCount,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WeekRecord{}, domain.ErrWeekAlreadyExists
		}
		return domain.WeekRecord{}, fmt.Errorf("insert week record: %w", err)
	}

	return record, nil
}

// IncrementCount выражает условный инкремент одним UPDATE: проверка границы
// и запись выполняются в одном атомарном statement, поэтому N конкурентных
// приёмов при вместимости K дают ровно min(N, K) успехов.
func (r *capacityRepository) IncrementCount(weekStart time.Time) (domain.WeekRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	record, err := r.scanOne(r.db.QueryRowContext(ctx, `
		UPDATE week_capacity
		SET orders_count = orders_count + 1,
		    updated_at = NOW()
		WHERE week_start = $1
		  AND orders_count < capacity
		RETURNING week_start, capacity, orders_count, created_at, updated_at
	`, weekStart.UTC()))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrWeekNotFound) {
		return domain.WeekRecord{}, fmt.Errorf("conditional increment: %w", err)
	}

	// UPDATE не зацепил строку: либо недели нет, либо вместимость исчерпана.
	if _, getErr := r.Get(weekStart); getErr != nil {
		return domain.WeekRecord{}, getErr
	}
	return domain.WeekRecord{}, domain.ErrCapacityExceeded
}

func (r *capacityRepository) SetCapacity(weekStart time.Time, capacity int) (domain.WeekRecord, error) {
	if capacity < 1 {
		return domain.WeekRecord{}, domain.ErrInvalidCapacity
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	record, err := r.scanOne(r.db.QueryRowContext(ctx, `
		UPDATE week_capacity
		SET capacity = $2,
		    updated_at = NOW()
		WHERE week_start = $1
		RETURNING week_start, capacity, orders_count, created_at, updated_at
	`, weekStart.UTC(), capacity))
	if err != nil {
		if errors.Is(err, domain.ErrWeekNotFound) {
			return domain.WeekRecord{}, domain.ErrWeekNotFound
		}
		return domain.WeekRecord{}, fmt.Errorf("set capacity: %w", err)
	}
	return record, nil
}

func (r *capacityRepository) SetCount(weekStart time.Time, count int) (domain.WeekRecord, error) {
	if count < 0 {
		return domain.WeekRecord{}, domain.ErrInvalidCount
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	record, err := r.scanOne(r.db.QueryRowContext(ctx, `
		UPDATE week_capacity
		SET orders_count = $2,
		    updated_at = NOW()
		WHERE week_start = $1
		RETURNING week_start, capacity, orders_count, created_at, updated_at
	`, weekStart.UTC(), count))
	if err != nil {
		if errors.Is(err, domain.ErrWeekNotFound) {
			return domain.WeekRecord{}, domain.ErrWeekNotFound
		}
		return domain.WeekRecord{}, fmt.Errorf("set count: %w", err)
	}
	return record, nil
}

func (r *capacityRepository) scanOne(row *sql.Row) (domain.WeekRecord, error) {
	var record domain.WeekRecord
	err := row.Scan(
		&record.WeekStart, &record.Capacity, &record.OrdersCount,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WeekRecord{}, domain.ErrWeekNotFound
		}
		return domain.WeekRecord{}, fmt.Errorf("scan week record: %w", err)
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.CapacityRepository = (*capacityRepository)(nil)
