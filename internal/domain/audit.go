package domain

import "time"

// Типы событий аудита недельного окна.
const (
	AuditWeekCreated     = "WeekCreated"
	AuditOrderAdmitted   = "OrderAdmitted"
	AuditCapacityUpdated = "CapacityUpdated"
	AuditCountReset      = "CountReset"
)

// AuditEvent — запись аудита, привязанная к недельному окну.
// История недель не удаляется, поэтому аудит служит постоянным журналом
// для админ-панели и разборов инцидентов.
type AuditEvent struct {
	ID        string
	WeekStart time.Time
	Type      string
	Actor     string
	Detail    string
	Occurred  time.Time
}
