package admin_test

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nailflow/capacity/internal/clock"
	"github.com/nailflow/capacity/internal/domain"
	"github.com/nailflow/capacity/internal/service/admin"
	"github.com/nailflow/capacity/internal/service/ledger"
	"github.com/nailflow/capacity/internal/storage/memory"
)

var (
	adminPrincipal  = admin.Principal{ID: "admin-1", IsAdmin: true}
	customerVisitor = admin.Principal{ID: "customer-1", IsAdmin: false}
)

type fixture struct {
	controller *admin.Controller
	repo       domain.CapacityRepository
	audit      domain.AuditRepository
	ledger     *ledger.Ledger
	clk        *clock.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	loc, err := time.LoadLocation(clock.DefaultTimezone)
	require.NoError(t, err)
	clk := clock.NewFixedClock(time.Date(2026, time.August, 26, 12, 0, 0, 0, loc), loc)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("test", true)

	repo := memory.NewCapacityRepository()
	audit := memory.NewAuditRepository()
	ldg := ledger.New(repo, clk, entry, ledger.WithAudit(audit))

	return &fixture{
		controller: admin.NewController(repo, audit, ldg, clk, entry, nil),
		repo:       repo,
		audit:      audit,
		ledger:     ldg,
		clk:        clk,
	}
}

func TestController_RejectsNonAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.GetWeeklyCapacity(customerVisitor)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.controller.UpdateWeeklyCapacity(customerVisitor, 50)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.controller.ResetCurrentWeekCount(customerVisitor)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.controller.CreateNextWeekCapacity(customerVisitor)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.controller.WeekHistory(customerVisitor)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestController_GetWeeklyCapacity_CreatesLazily(t *testing.T) {
	f := newFixture(t)

	status, err := f.controller.GetWeeklyCapacity(adminPrincipal)
	require.NoError(t, err)
	require.True(t, status.WeekStart.Equal(f.clk.CurrentWeekStart()))
	require.True(t, status.NextWeekStart.Equal(f.clk.NextWeekStart()))
	require.Equal(t, ledger.DefaultWeeklyCapacity, status.Capacity)
	require.Equal(t, 0, status.OrdersCount)
	require.Equal(t, ledger.DefaultWeeklyCapacity, status.Remaining)
}

func TestController_UpdateWeeklyCapacity(t *testing.T) {
	f := newFixture(t)

	status, err := f.controller.UpdateWeeklyCapacity(adminPrincipal, 60)
	require.NoError(t, err)
	require.Equal(t, 60, status.Capacity)
	require.Equal(t, 60, status.Remaining)

	record, err := f.repo.Get(f.clk.CurrentWeekStart())
	require.NoError(t, err)
	require.Equal(t, 60, record.Capacity)

	events, err := f.audit.List(f.clk.CurrentWeekStart())
	require.NoError(t, err)
	require.Equal(t, domain.AuditCapacityUpdated, events[len(events)-1].Type)
	require.Equal(t, "admin-1", events[len(events)-1].Actor)
}

func TestController_UpdateWeeklyCapacity_InvalidLeavesRecordIntact(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.UpdateWeeklyCapacity(adminPrincipal, 50)
	require.NoError(t, err)

	for _, invalid := range []int{0, -5} {
		_, err := f.controller.UpdateWeeklyCapacity(adminPrincipal, invalid)
		require.ErrorIs(t, err, domain.ErrInvalidCapacity)
	}

	record, err := f.repo.Get(f.clk.CurrentWeekStart())
	require.NoError(t, err)
	require.Equal(t, 50, record.Capacity)
}

func TestController_ResetCurrentWeekCount(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.UpdateWeeklyCapacity(adminPrincipal, 50)
	require.NoError(t, err)
	for i := 0; i < 47; i++ {
		decision, err := f.ledger.Admit()
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	status, err := f.controller.ResetCurrentWeekCount(adminPrincipal)
	require.NoError(t, err)
	require.Equal(t, 50, status.Capacity)
	require.Equal(t, 0, status.OrdersCount)
	require.Equal(t, 50, status.Remaining)

	// После сброса обновление вместимости работает как обычно.
	status, err = f.controller.UpdateWeeklyCapacity(adminPrincipal, 60)
	require.NoError(t, err)
	require.Equal(t, 60, status.Capacity)
	require.Equal(t, 0, status.OrdersCount)
}

func TestController_CreateNextWeekCapacity(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.UpdateWeeklyCapacity(adminPrincipal, 45)
	require.NoError(t, err)
	decision, err := f.ledger.Admit()
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	status, err := f.controller.CreateNextWeekCapacity(adminPrincipal)
	require.NoError(t, err)
	require.True(t, status.WeekStart.Equal(f.clk.NextWeekStart()))
	// Наследуется вместимость, но не счётчик.
	require.Equal(t, 45, status.Capacity)
	require.Equal(t, 0, status.OrdersCount)

	_, err = f.controller.CreateNextWeekCapacity(adminPrincipal)
	require.ErrorIs(t, err, domain.ErrWeekAlreadyExists)
}

func TestController_WeekHistory(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.UpdateWeeklyCapacity(adminPrincipal, 50)
	require.NoError(t, err)
	_, err = f.controller.ResetCurrentWeekCount(adminPrincipal)
	require.NoError(t, err)

	events, err := f.controller.WeekHistory(adminPrincipal)
	require.NoError(t, err)
	require.Len(t, events, 3) // WeekCreated, CapacityUpdated, CountReset
	require.Equal(t, domain.AuditWeekCreated, events[0].Type)
	require.Equal(t, domain.AuditCountReset, events[2].Type)
}

func TestController_FormatNextWeekStartForAdmin(t *testing.T) {
	f := newFixture(t)

	formatted := f.controller.FormatNextWeekStartForAdmin()
	require.Contains(t, formatted, "Monday")
	require.Contains(t, formatted, "9:00 AM")

	next := f.controller.NextWeekStartDateTime()
	require.Equal(t, time.Monday, next.Weekday())
	require.Equal(t, 9, next.Hour())
}
