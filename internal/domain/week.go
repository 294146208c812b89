package domain

import "time"

// WeekRecord — учётная запись одного недельного окна приёма заказов.
// Ключом служит WeekStart: понедельник 09:00 в бизнес-таймзоне.
type WeekRecord struct {
	WeekStart   time.Time
	Capacity    int
	OrdersCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Remaining возвращает остаток вместимости, не опускаясь ниже нуля.
// Отрицательный остаток возможен, если администратор снизил capacity
// ниже уже набранного счётчика; наружу он всегда показывается как 0.
func (r WeekRecord) Remaining() int {
	remaining := r.Capacity - r.OrdersCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Full сообщает, исчерпана ли вместимость недели.
func (r WeekRecord) Full() bool {
	return r.OrdersCount >= r.Capacity
}

// ValidateInvariants проверяет базовые инварианты записи и возвращает список замечаний.
func (r WeekRecord) ValidateInvariants() []error {
	var errs []error

	if r.WeekStart.IsZero() {
		errs = append(errs, ErrWeekStartRequired)
	}
	if r.Capacity < 1 {
		errs = append(errs, ErrInvalidCapacity)
	}
	if r.OrdersCount < 0 {
		errs = append(errs, ErrInvalidCount)
	}

	return errs
}

// AdmissionDecision — результат проверки приёма одного заказа.
// Не персистится: состояние недели хранится только в WeekRecord.
type AdmissionDecision struct {
	Allowed   bool
	Remaining int
	WeekStart time.Time
}
