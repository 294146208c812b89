package memory_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nailflow/capacity/internal/domain"
	"github.com/nailflow/capacity/internal/storage/memory"
)

func weekStart(day int) time.Time {
	return time.Date(2026, time.August, day, 9, 0, 0, 0, time.UTC)
}

func newWeek(day, capacity int) domain.WeekRecord {
	return domain.WeekRecord{
		WeekStart: weekStart(day),
		Capacity:  capacity,
	}
}

func TestCapacityRepository_CreateGet(t *testing.T) {
	repo := memory.NewCapacityRepository()

	created, err := repo.Create(newWeek(24, 40))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be populated")
	}

	stored, err := repo.Get(weekStart(24))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Capacity != 40 || stored.OrdersCount != 0 {
		t.Fatalf("unexpected record: %+v", stored)
	}
}

func TestCapacityRepository_GetMissing(t *testing.T) {
	repo := memory.NewCapacityRepository()

	if _, err := repo.Get(weekStart(24)); !errors.Is(err, domain.ErrWeekNotFound) {
		t.Fatalf("expected ErrWeekNotFound, got %v", err)
	}
}

func TestCapacityRepository_CreateDuplicate(t *testing.T) {
	repo := memory.NewCapacityRepository()

	if _, err := repo.Create(newWeek(24, 40)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.Create(newWeek(24, 50)); !errors.Is(err, domain.ErrWeekAlreadyExists) {
		t.Fatalf("expected ErrWeekAlreadyExists, got %v", err)
	}
}

func TestCapacityRepository_CreateInvalid(t *testing.T) {
	repo := memory.NewCapacityRepository()

	if _, err := repo.Create(domain.WeekRecord{WeekStart: weekStart(24), Capacity: 0}); !errors.Is(err, domain.ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestCapacityRepository_LatestBefore(t *testing.T) {
	repo := memory.NewCapacityRepository()

	if _, err := repo.LatestBefore(weekStart(24)); !errors.Is(err, domain.ErrWeekNotFound) {
		t.Fatalf("expected ErrWeekNotFound on empty repo, got %v", err)
	}

	for _, week := range []domain.WeekRecord{newWeek(10, 30), newWeek(17, 55), newWeek(24, 60)} {
		if _, err := repo.Create(week); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	prev, err := repo.LatestBefore(weekStart(24))
	if err != nil {
		t.Fatalf("latest before failed: %v", err)
	}
	if !prev.WeekStart.Equal(weekStart(17)) || prev.Capacity != 55 {
		t.Fatalf("expected week of Aug 17 with capacity 55, got %+v", prev)
	}
}

func TestCapacityRepository_IncrementCount(t *testing.T) {
	repo := memory.NewCapacityRepository()
	if _, err := repo.Create(newWeek(24, 2)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for want := 1; want <= 2; want++ {
		record, err := repo.IncrementCount(weekStart(24))
		if err != nil {
			t.Fatalf("increment %d failed: %v", want, err)
		}
		if record.OrdersCount != want {
			t.Fatalf("expected count %d, got %d", want, record.OrdersCount)
		}
	}

	if _, err := repo.IncrementCount(weekStart(24)); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if _, err := repo.IncrementCount(weekStart(17)); !errors.Is(err, domain.ErrWeekNotFound) {
		t.Fatalf("expected ErrWeekNotFound, got %v", err)
	}
}

// Конкурентные инкременты не должны пробивать вместимость:
// при capacity=K и N>K горутинах успешных должно быть ровно K.
func TestCapacityRepository_IncrementCount_NoOversell(t *testing.T) {
	const (
		capacity   = 25
		goroutines = 100
	)

	repo := memory.NewCapacityRepository()
	if _, err := repo.Create(newWeek(24, capacity)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := repo.IncrementCount(weekStart(24))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, domain.ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if admitted != capacity {
		t.Fatalf("expected exactly %d admitted, got %d", capacity, admitted)
	}
	if rejected != goroutines-capacity {
		t.Fatalf("expected %d rejected, got %d", goroutines-capacity, rejected)
	}

	record, err := repo.Get(weekStart(24))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.OrdersCount != capacity {
		t.Fatalf("expected stored count %d, got %d", capacity, record.OrdersCount)
	}
}

func TestCapacityRepository_SetCapacity(t *testing.T) {
	repo := memory.NewCapacityRepository()
	if _, err := repo.Create(newWeek(24, 40)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	record, err := repo.SetCapacity(weekStart(24), 60)
	if err != nil {
		t.Fatalf("set capacity failed: %v", err)
	}
	if record.Capacity != 60 {
		t.Fatalf("expected capacity 60, got %d", record.Capacity)
	}

	if _, err := repo.SetCapacity(weekStart(24), 0); !errors.Is(err, domain.ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
	if _, err := repo.SetCapacity(weekStart(17), 10); !errors.Is(err, domain.ErrWeekNotFound) {
		t.Fatalf("expected ErrWeekNotFound, got %v", err)
	}
}

func TestCapacityRepository_SetCount(t *testing.T) {
	repo := memory.NewCapacityRepository()
	if _, err := repo.Create(newWeek(24, 40)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := repo.IncrementCount(weekStart(24)); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}

	record, err := repo.SetCount(weekStart(24), 0)
	if err != nil {
		t.Fatalf("set count failed: %v", err)
	}
	if record.OrdersCount != 0 || record.Capacity != 40 {
		t.Fatalf("expected count reset with capacity intact, got %+v", record)
	}

	if _, err := repo.SetCount(weekStart(24), -1); !errors.Is(err, domain.ErrInvalidCount) {
		t.Fatalf("expected ErrInvalidCount, got %v", err)
	}
}
