package auditlog

import (
	"context"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

// AuditLog is the append-only, bounded record of send attempts. It is the
// only durable trace of delivery outcomes once a job leaves the schedule
// store.
type AuditLog interface {
	Record(ctx context.Context, entry model.LogEntry) error
	List(ctx context.Context) ([]model.LogEntry, error)
	Clear(ctx context.Context) error
}
