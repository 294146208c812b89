// Package clock вычисляет границы недельного окна приёма заказов
// в бизнес-таймзоне. Вся работа со временем в сервисе идёт через Clock,
// чтобы ledger и админ-операции тестировались на фиксированных метках.
package clock

import (
	"fmt"
	"time"
)

const (
	// DefaultTimezone — бизнес-таймзона студии (политика: Pacific Time).
	DefaultTimezone = "America/Los_Angeles"

	weekStartWeekday = time.Monday
	weekStartHour    = 9
)

// Clock выдаёт текущий момент и границы активного недельного окна.
type Clock interface {
	// Now возвращает текущий момент в бизнес-таймзоне.
	Now() time.Time
	// CurrentWeekStart возвращает границу понедельник 09:00, не позднее Now().
	CurrentWeekStart() time.Time
	// NextWeekStart возвращает CurrentWeekStart() + 7 календарных дней.
	NextWeekStart() time.Time
	// Location возвращает бизнес-таймзону.
	Location() *time.Location
}

// BusinessClock — системные часы, привязанные к бизнес-таймзоне.
type BusinessClock struct {
	loc *time.Location
}

// NewBusinessClock загружает бизнес-таймзону по имени (пустое имя — DefaultTimezone).
func NewBusinessClock(timezone string) (*BusinessClock, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", timezone, err)
	}
	return &BusinessClock{loc: loc}, nil
}

func (c *BusinessClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *BusinessClock) CurrentWeekStart() time.Time {
	return WeekStartAt(c.Now(), c.loc)
}

func (c *BusinessClock) NextWeekStart() time.Time {
	return NextWeekStart(c.CurrentWeekStart())
}

func (c *BusinessClock) Location() *time.Location {
	return c.loc
}

// WeekStartAt возвращает границу недельного окна (понедельник 09:00 в loc),
// находящуюся не позже момента t.
func WeekStartAt(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)

	daysBack := (int(lt.Weekday()) - int(weekStartWeekday) + 7) % 7
	candidate := time.Date(lt.Year(), lt.Month(), lt.Day()-daysBack, weekStartHour, 0, 0, 0, loc)
	// Понедельник до 09:00 относится ещё к прошлой неделе.
	if candidate.After(lt) {
		candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()-7, weekStartHour, 0, 0, 0, loc)
	}
	return candidate
}

// NextWeekStart возвращает границу следующего окна. Сдвиг идёт по календарным
// дням через time.Date, а не через Add(7*24h): на неделях с переходом на
// летнее/зимнее время граница обязана остаться на 09:00 локального времени.
func NextWeekStart(weekStart time.Time) time.Time {
	loc := weekStart.Location()
	return time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day()+7, weekStartHour, 0, 0, 0, loc)
}

// IsWeekStart проверяет, что метка является корректной границей окна.
func IsWeekStart(t time.Time) bool {
	return t.Weekday() == weekStartWeekday &&
		t.Hour() == weekStartHour &&
		t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
