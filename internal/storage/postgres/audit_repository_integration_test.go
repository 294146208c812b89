package postgres

import (
	"testing"
	"time"

	"github.com/nailflow/capacity/internal/domain"
)

func TestAuditRepository_PostgresAppendList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewAuditRepository(store)

	week := mondayUTC(2026, time.August, 24)
	otherWeek := mondayUTC(2026, time.August, 31)
	base := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	events := []domain.AuditEvent{
		{WeekStart: week, Type: domain.AuditWeekCreated, Actor: "system", Detail: "capacity=40", Occurred: base},
		{WeekStart: week, Type: domain.AuditOrderAdmitted, Actor: "system", Detail: "orders_count=1", Occurred: base.Add(time.Second)},
		{WeekStart: otherWeek, Type: domain.AuditWeekCreated, Actor: "system", Detail: "capacity=40", Occurred: base.Add(2 * time.Second)},
	}
	for i, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
	}

	listed, err := repo.List(week)
	if err != nil {
		t.Fatalf("list week events: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 events for week, got %d", len(listed))
	}
	if listed[0].Type != domain.AuditWeekCreated || listed[1].Type != domain.AuditOrderAdmitted {
		t.Fatalf("expected chronological order, got %s then %s", listed[0].Type, listed[1].Type)
	}
	if listed[0].ID == "" {
		t.Fatal("expected generated event id")
	}

	other, err := repo.List(otherWeek)
	if err != nil {
		t.Fatalf("list other week: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("expected 1 event for other week, got %d", len(other))
	}
}
