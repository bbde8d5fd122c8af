package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/recurrence"
	"github.com/Freeeeeet/study_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, teacher_id, title, description, starts_at, ends_at, location, meeting_url,
		capacity, timezone, status, recurrence_rule, created_at, updated_at`

type sessionRepository struct {
	db base.Querier
}

func NewSessionRepository(db base.Querier) SessionRepository {
	return &sessionRepository{db: db}
}

// Create создаёт новую сессию
func (r *sessionRepository) Create(ctx context.Context, session *model.StudySession) error {
	query := `
		INSERT INTO study_sessions (teacher_id, title, description, starts_at, ends_at, location, meeting_url,
			capacity, timezone, status, recurrence_rule)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		session.TeacherID,
		session.Title,
		session.Description,
		session.StartsAt,
		session.EndsAt,
		session.Location,
		session.MeetingURL,
		session.Capacity,
		session.Timezone,
		session.Status,
		encodeRule(session.Recurrence),
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByID получает сессию по ID
func (r *sessionRepository) GetByID(ctx context.Context, id int64) (*model.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return session, nil
}

// LockForUpdate получает сессию с блокировкой строки до конца транзакции
func (r *sessionRepository) LockForUpdate(ctx context.Context, id int64) (*model.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE id = $1 FOR UPDATE`

	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}

	return session, nil
}

// Update обновляет поля сессии
func (r *sessionRepository) Update(ctx context.Context, session *model.StudySession) error {
	query := `
		UPDATE study_sessions
		SET title = $1, description = $2, starts_at = $3, ends_at = $4, location = $5, meeting_url = $6,
			capacity = $7, timezone = $8, status = $9, recurrence_rule = $10, updated_at = NOW()
		WHERE id = $11
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		session.Title,
		session.Description,
		session.StartsAt,
		session.EndsAt,
		session.Location,
		session.MeetingURL,
		session.Capacity,
		session.Timezone,
		session.Status,
		encodeRule(session.Recurrence),
		session.ID,
	).Scan(&session.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("session not found")
		}
		return fmt.Errorf("update session: %w", err)
	}

	return nil
}

// ListOverlapping получает запланированные сессии учителя, пересекающиеся с окном
func (r *sessionRepository) ListOverlapping(ctx context.Context, teacherID int64, start, end time.Time, excludeID int64) ([]*model.StudySession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM study_sessions
		WHERE teacher_id = $1
		  AND status = 'scheduled'
		  AND starts_at <= $3
		  AND ends_at >= $2
		  AND id <> $4
		ORDER BY starts_at
	`

	rows, err := r.db.Query(ctx, query, teacherID, start, end, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list overlapping sessions: %w", err)
	}

	return collectSessions(rows)
}

// ListByTeacher получает сессии учителя, начинающиеся в заданном диапазоне
func (r *sessionRepository) ListByTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.StudySession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM study_sessions
		WHERE teacher_id = $1
		  AND starts_at >= $2
		  AND starts_at < $3
		ORDER BY starts_at
	`

	rows, err := r.db.Query(ctx, query, teacherID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions by teacher: %w", err)
	}

	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]*model.StudySession, error) {
	defer rows.Close()

	var sessions []*model.StudySession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*model.StudySession, error) {
	var (
		session model.StudySession
		rule    *string
	)

	err := row.Scan(
		&session.ID,
		&session.TeacherID,
		&session.Title,
		&session.Description,
		&session.StartsAt,
		&session.EndsAt,
		&session.Location,
		&session.MeetingURL,
		&session.Capacity,
		&session.Timezone,
		&session.Status,
		&rule,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rule != nil {
		session.Recurrence, err = recurrence.Decode(*rule)
		if err != nil {
			return nil, fmt.Errorf("decode recurrence rule of session %d: %w", session.ID, err)
		}
	}

	return &session, nil
}

// encodeRule stores "no recurrence" as NULL.
func encodeRule(d recurrence.Descriptor) *string {
	if d.IsNone() {
		return nil
	}
	s := d.Encode()
	return &s
}
