package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

// PostgresScheduleStore persists jobs in the schedule_jobs table:
//
//	id         text primary key
//	send_time  char(5)       -- "HH:MM"
//	recipients jsonb
//	message    text
//	file_meta  jsonb null
//	created_at timestamptz
type PostgresScheduleStore struct {
	db *sql.DB
}

func NewPostgresScheduleStore(db *sql.DB) *PostgresScheduleStore {
	return &PostgresScheduleStore{db: db}
}

func (s *PostgresScheduleStore) List(ctx context.Context) ([]model.ScheduleJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, send_time, recipients, message, file_meta, created_at
		FROM schedule_jobs
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var jobs []model.ScheduleJob
	for rows.Next() {
		var (
			j          model.ScheduleJob
			recipients []byte
			fileMeta   []byte
		)
		if err := rows.Scan(&j.ID, &j.Time, &recipients, &j.Message, &fileMeta, &j.Created); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		if err := json.Unmarshal(recipients, &j.Recipients); err != nil {
			return nil, fmt.Errorf("decode recipients for job %s: %w", j.ID, err)
		}
		if len(fileMeta) > 0 {
			j.FileMeta = &model.AttachmentMeta{}
			if err := json.Unmarshal(fileMeta, j.FileMeta); err != nil {
				return nil, fmt.Errorf("decode file meta for job %s: %w", j.ID, err)
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresScheduleStore) Save(ctx context.Context, job *model.ScheduleJob) error {
	if job.ID == "" {
		return errors.New("job id must not be empty")
	}
	if job.Created.IsZero() {
		job.Created = time.Now().UTC()
	}

	recipients, err := json.Marshal(job.Recipients)
	if err != nil {
		return fmt.Errorf("encode recipients: %w", err)
	}

	var fileMeta sql.NullString
	if job.FileMeta != nil {
		b, err := json.Marshal(job.FileMeta)
		if err != nil {
			return fmt.Errorf("encode file meta: %w", err)
		}
		fileMeta = sql.NullString{String: string(b), Valid: true}
	}

	// An update keeps the row's original created_at; scan it back so the
	// caller always holds the persisted timestamp.
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO schedule_jobs (id, send_time, recipients, message, file_meta, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5::jsonb, $6)
		ON CONFLICT (id) DO UPDATE SET
			send_time  = EXCLUDED.send_time,
			recipients = EXCLUDED.recipients,
			message    = EXCLUDED.message,
			file_meta  = EXCLUDED.file_meta
		RETURNING created_at
	`, job.ID, job.Time, string(recipients), job.Message, fileMeta, job.Created).Scan(&job.Created)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", job.ID, err)
	}
	return nil
}

func (s *PostgresScheduleStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM schedule_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return nil
}

func (s *PostgresScheduleStore) RemoveAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("remove schedules: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_jobs WHERE id = $1`, id); err != nil {
			return fmt.Errorf("remove schedule %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remove schedules: %w", err)
	}
	return nil
}
