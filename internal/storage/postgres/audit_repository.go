package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nailflow/capacity/internal/domain"
)

type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository создаёт PostgreSQL-реализацию AuditRepository.
func NewAuditRepository(store *Store) domain.AuditRepository {
	return &auditRepository{db: store.DB()}
}

func (r *auditRepository) Append(event domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO week_audit (
			id, week_start, event_type, actor, detail, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		event.ID, event.WeekStart.UTC(), event.Type, event.Actor, event.Detail, event.Occurred,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *auditRepository) List(weekStart time.Time) ([]domain.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, week_start, event_type, actor, detail, occurred_at
		FROM week_audit
		WHERE week_start = $1
		ORDER BY occurred_at, id
	`, weekStart.UTC())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var result []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID, &event.WeekStart, &event.Type,
			&event.Actor, &event.Detail, &event.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}

	return result, nil
}

var _ domain.AuditRepository = (*auditRepository)(nil)
