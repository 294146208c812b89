package clock_test

import (
	"testing"
	"time"

	"github.com/nailflow/capacity/internal/clock"
)

func businessLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(clock.DefaultTimezone)
	if err != nil {
		t.Fatalf("load location failed: %v", err)
	}
	return loc
}

func TestWeekStartAt_MondayBoundary(t *testing.T) {
	loc := businessLocation(t)

	// 2026-08-24 — понедельник.
	currentWeek := time.Date(2026, time.August, 24, 9, 0, 0, 0, loc)
	previousWeek := time.Date(2026, time.August, 17, 9, 0, 0, 0, loc)

	cases := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"monday 08:59 belongs to previous week", time.Date(2026, time.August, 24, 8, 59, 0, 0, loc), previousWeek},
		{"monday 09:00 starts new week", currentWeek, currentWeek},
		{"monday 09:01 belongs to new week", time.Date(2026, time.August, 24, 9, 1, 0, 0, loc), currentWeek},
		{"midweek", time.Date(2026, time.August, 27, 15, 30, 0, 0, loc), currentWeek},
		{"sunday evening", time.Date(2026, time.August, 23, 23, 59, 59, 0, loc), previousWeek},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := clock.WeekStartAt(tc.at, loc)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWeekStartAt_ConvertsForeignZone(t *testing.T) {
	loc := businessLocation(t)

	// 2026-08-24 17:30 UTC = 10:30 на западном побережье, уже новая неделя.
	at := time.Date(2026, time.August, 24, 17, 30, 0, 0, time.UTC)
	want := time.Date(2026, time.August, 24, 9, 0, 0, 0, loc)

	got := clock.WeekStartAt(at, loc)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextWeekStart_SpringForward(t *testing.T) {
	loc := businessLocation(t)

	// Переход на летнее время: воскресенье 2026-03-08.
	weekStart := time.Date(2026, time.March, 2, 9, 0, 0, 0, loc)
	next := clock.NextWeekStart(weekStart)

	want := time.Date(2026, time.March, 9, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	// Неделя с переходом короче на час, но граница остаётся на 09:00 локального.
	if diff := next.Sub(weekStart); diff != 167*time.Hour {
		t.Fatalf("expected 167h across spring forward, got %v", diff)
	}
	if next.Hour() != 9 {
		t.Fatalf("expected boundary at 09:00 local, got %d:00", next.Hour())
	}
}

func TestNextWeekStart_FallBack(t *testing.T) {
	loc := businessLocation(t)

	// Переход на зимнее время: воскресенье 2026-11-01.
	weekStart := time.Date(2026, time.October, 26, 9, 0, 0, 0, loc)
	next := clock.NextWeekStart(weekStart)

	want := time.Date(2026, time.November, 2, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	if diff := next.Sub(weekStart); diff != 169*time.Hour {
		t.Fatalf("expected 169h across fall back, got %v", diff)
	}
}

func TestIsWeekStart(t *testing.T) {
	loc := businessLocation(t)

	if !clock.IsWeekStart(time.Date(2026, time.August, 24, 9, 0, 0, 0, loc)) {
		t.Fatal("monday 09:00 must be a week start")
	}
	if clock.IsWeekStart(time.Date(2026, time.August, 24, 10, 0, 0, 0, loc)) {
		t.Fatal("monday 10:00 must not be a week start")
	}
	if clock.IsWeekStart(time.Date(2026, time.August, 25, 9, 0, 0, 0, loc)) {
		t.Fatal("tuesday 09:00 must not be a week start")
	}
}

func TestNewBusinessClock(t *testing.T) {
	clk, err := clock.NewBusinessClock("")
	if err != nil {
		t.Fatalf("default timezone failed: %v", err)
	}
	if clk.Location().String() != clock.DefaultTimezone {
		t.Fatalf("expected %s, got %s", clock.DefaultTimezone, clk.Location())
	}

	if _, err := clock.NewBusinessClock("Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestFixedClock_AdvanceAcrossBoundary(t *testing.T) {
	loc := businessLocation(t)

	clk := clock.NewFixedClock(time.Date(2026, time.August, 24, 8, 0, 0, 0, loc), loc)

	before := clk.CurrentWeekStart()
	wantBefore := time.Date(2026, time.August, 17, 9, 0, 0, 0, loc)
	if !before.Equal(wantBefore) {
		t.Fatalf("expected %v before boundary, got %v", wantBefore, before)
	}

	clk.Advance(2 * time.Hour)

	after := clk.CurrentWeekStart()
	wantAfter := time.Date(2026, time.August, 24, 9, 0, 0, 0, loc)
	if !after.Equal(wantAfter) {
		t.Fatalf("expected %v after boundary, got %v", wantAfter, after)
	}

	next := clk.NextWeekStart()
	wantNext := time.Date(2026, time.August, 31, 9, 0, 0, 0, loc)
	if !next.Equal(wantNext) {
		t.Fatalf("expected next week start %v, got %v", wantNext, next)
	}
}
