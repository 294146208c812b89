package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAdmissionMetrics_RecordAdmission(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newAdmissionMetricsWithRegisterer(registry)

	m.RecordAdmission(true, 5*time.Millisecond)
	m.RecordAdmission(true, 5*time.Millisecond)
	m.RecordAdmission(false, time.Millisecond)

	if got := testutil.ToFloat64(m.admissionsAllowed); got != 2 {
		t.Fatalf("expected 2 allowed, got %v", got)
	}
	if got := testutil.ToFloat64(m.admissionsRejected); got != 1 {
		t.Fatalf("expected 1 rejected, got %v", got)
	}
}

func TestAdmissionMetrics_WeekLifecycle(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newAdmissionMetricsWithRegisterer(registry)

	m.RecordWeekCreated()
	m.SetWeekRemaining(37)
	m.RecordAdminOperation("update_capacity")
	m.RecordAdminOperation("update_capacity")
	m.RecordAdminOperation("reset_count")

	if got := testutil.ToFloat64(m.weeksCreated); got != 1 {
		t.Fatalf("expected 1 week created, got %v", got)
	}
	if got := testutil.ToFloat64(m.weekRemaining); got != 37 {
		t.Fatalf("expected remaining 37, got %v", got)
	}
	if got := testutil.ToFloat64(m.adminOps.WithLabelValues("update_capacity")); got != 2 {
		t.Fatalf("expected 2 update ops, got %v", got)
	}
	if got := testutil.ToFloat64(m.adminOps.WithLabelValues("reset_count")); got != 1 {
		t.Fatalf("expected 1 reset op, got %v", got)
	}
}

// Повторная регистрация на том же registerer возвращает существующие коллекторы.
func TestAdmissionMetrics_DoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newAdmissionMetricsWithRegisterer(registry)
	second := newAdmissionMetricsWithRegisterer(registry)

	first.RecordAdmission(true, time.Millisecond)
	second.RecordAdmission(true, time.Millisecond)

	if got := testutil.ToFloat64(first.admissionsAllowed); got != 2 {
		t.Fatalf("expected shared counter at 2, got %v", got)
	}
}
