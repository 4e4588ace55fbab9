package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aura-erp/meeting-scheduler/internal/models"
)

const jobColumns = `key, kind, meeting_id, fire_at, payload, status, attempts, last_error, fired_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.ScheduledJob, error) {
	var j models.ScheduledJob
	var kind, status string
	var payload []byte
	if err := row.Scan(&j.Key, &kind, &j.MeetingID, &j.FireAt, &payload, &status, &j.Attempts, &j.LastError,
		&j.FiredAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Kind = models.JobKind(kind)
	j.Status = models.JobStatus(status)
	if err := json.Unmarshal(payload, &j.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal job payload %s: %w", j.Key, err)
	}
	return &j, nil
}

// SaveJob upserts a job record by key.
func (q *queries) SaveJob(ctx context.Context, job *models.ScheduledJob) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	const sql = `INSERT INTO scheduled_jobs (key, kind, meeting_id, fire_at, payload, status, attempts, last_error, fired_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (key) DO UPDATE SET kind = EXCLUDED.kind, meeting_id = EXCLUDED.meeting_id, fire_at = EXCLUDED.fire_at,
			payload = EXCLUDED.payload, status = EXCLUDED.status, attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error, fired_at = EXCLUDED.fired_at, updated_at = EXCLUDED.updated_at`
	_, err = q.db.Exec(ctx, sql, job.Key, string(job.Kind), job.MeetingID, job.FireAt, payload, string(job.Status),
		job.Attempts, job.LastError, job.FiredAt, job.CreatedAt, job.UpdatedAt)
	return err
}

// GetJob returns a job record by key.
func (q *queries) GetJob(ctx context.Context, key string) (*models.ScheduledJob, error) {
	j, err := scanJob(q.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE key = $1`, key))
	if err != nil {
		return nil, notFound(err)
	}
	return j, nil
}

// ListJobsByStatus returns job records in a status ordered by fire time.
func (q *queries) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.ScheduledJob, error) {
	rows, err := q.db.Query(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE status = $1 ORDER BY fire_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *j)
	}
	return list, rows.Err()
}
