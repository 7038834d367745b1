package store

import (
	"context"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

// ScheduleStore is the durable collection of pending jobs. Save is an
// upsert by id and writes the persisted creation timestamp back into the
// job; Delete is a no-op for unknown ids; RemoveAll removes the given ids
// in a single transaction so a failed dispatch pass never loses jobs that
// did not fully run.
type ScheduleStore interface {
	List(ctx context.Context) ([]model.ScheduleJob, error)
	Save(ctx context.Context, job *model.ScheduleJob) error
	Delete(ctx context.Context, id string) error
	RemoveAll(ctx context.Context, ids []string) error
}
