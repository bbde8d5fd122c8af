package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository/base"
)

type reminderRepository struct {
	db base.Querier
}

func NewReminderRepository(db base.Querier) ReminderRepository {
	return &reminderRepository{db: db}
}

// CancelPending отменяет все неотправленные напоминания сессии
func (r *reminderRepository) CancelPending(ctx context.Context, sessionID int64) (int64, error) {
	query := `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = NOW()
		WHERE session_id = $1 AND status = 'pending'
	`

	result, err := r.db.Exec(ctx, query, sessionID)
	if err != nil {
		return 0, fmt.Errorf("cancel pending reminders: %w", err)
	}

	return result.RowsAffected(), nil
}

// Schedule сохраняет напоминание. Повторное планирование с тем же ключом
// возвращает задачу в pending, если она была отменена.
func (r *reminderRepository) Schedule(ctx context.Context, intent model.ReminderIntent) error {
	query := `
		INSERT INTO reminder_jobs (key, session_id, occurrence_id, kind, send_at, recipient_role, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		ON CONFLICT (key) DO UPDATE
		SET status = 'pending', lease_until = NULL, updated_at = NOW()
		WHERE reminder_jobs.status = 'cancelled'
	`

	_, err := r.db.Exec(
		ctx, query,
		intent.Key(),
		intent.SessionID,
		intent.OccurrenceID,
		intent.Kind,
		intent.SendAt,
		intent.RecipientRole,
	)
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}

	return nil
}

// ClaimDue выдаёт аренду на готовые к отправке напоминания. Строки, занятые
// другим диспетчером, пропускаются; блокировки живут только до коммита.
func (r *reminderRepository) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*model.ReminderJob, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM reminder_jobs
			WHERE status = 'pending' AND send_at <= $1
			  AND (lease_until IS NULL OR lease_until <= $1)
			ORDER BY send_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE reminder_jobs j
		SET lease_until = $3, updated_at = NOW()
		FROM due
		WHERE j.id = due.id
		RETURNING j.id, j.key, j.session_id, j.occurrence_id, j.kind, j.send_at,
		          j.recipient_role, j.status, j.sent_at, j.lease_until
	`

	rows, err := r.db.Query(ctx, query, now, limit, leaseUntil)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ReminderJob
	for rows.Next() {
		var job model.ReminderJob
		err := rows.Scan(
			&job.ID,
			&job.Key,
			&job.Intent.SessionID,
			&job.Intent.OccurrenceID,
			&job.Intent.Kind,
			&job.Intent.SendAt,
			&job.Intent.RecipientRole,
			&job.Status,
			&job.SentAt,
			&job.LeaseUntil,
		)
		if err != nil {
			return nil, fmt.Errorf("scan reminder job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder jobs: %w", err)
	}

	// RETURNING не сохраняет порядок подзапроса
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].Intent.SendAt.Equal(jobs[k].Intent.SendAt) {
			return jobs[i].Intent.SendAt.Before(jobs[k].Intent.SendAt)
		}
		return jobs[i].ID < jobs[k].ID
	})

	return jobs, nil
}

// ReleaseClaim снимает аренду, чтобы следующий проход повторил отправку
func (r *reminderRepository) ReleaseClaim(ctx context.Context, id int64) error {
	query := `
		UPDATE reminder_jobs
		SET lease_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("release reminder claim: %w", err)
	}

	return nil
}

// MarkSent отмечает напоминание отправленным
func (r *reminderRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `
		UPDATE reminder_jobs
		SET status = 'sent', sent_at = $1, lease_until = NULL, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`

	if _, err := r.db.Exec(ctx, query, sentAt, id); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}

	return nil
}

// MarkCancelled отменяет одно напоминание
func (r *reminderRepository) MarkCancelled(ctx context.Context, id int64) error {
	query := `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark reminder cancelled: %w", err)
	}

	return nil
}
