package clock

import (
	"sync"
	"time"
)

// FixedClock — управляемые часы для тестов и репетиций rollover:
// время меняется только через Set/Advance.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
	loc *time.Location
}

// NewFixedClock создаёт часы, остановленные на now в таймзоне loc.
func NewFixedClock(now time.Time, loc *time.Location) *FixedClock {
	if loc == nil {
		loc = time.UTC
	}
	return &FixedClock{now: now.In(loc), loc: loc}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FixedClock) CurrentWeekStart() time.Time {
	return WeekStartAt(c.Now(), c.loc)
}

func (c *FixedClock) NextWeekStart() time.Time {
	return NextWeekStart(c.CurrentWeekStart())
}

func (c *FixedClock) Location() *time.Location {
	return c.loc
}

// Set переводит часы на момент t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.In(c.loc)
}

// Advance сдвигает часы вперёд на d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ Clock = (*FixedClock)(nil)
var _ Clock = (*BusinessClock)(nil)
