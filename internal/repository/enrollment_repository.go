package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const enrollmentColumns = `id, session_id, student_id, status, waitlist_position, created_at, updated_at`

type enrollmentRepository struct {
	db base.Querier
}

func NewEnrollmentRepository(db base.Querier) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

// Create создаёт запись студента на сессию
func (r *enrollmentRepository) Create(ctx context.Context, e *model.StudySessionEnrollment) error {
	query := `
		INSERT INTO study_session_enrollments (session_id, student_id, status, waitlist_position)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, e.SessionID, e.StudentID, e.Status, e.WaitlistPosition).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}

	return nil
}

// GetByID получает запись по ID
func (r *enrollmentRepository) GetByID(ctx context.Context, id int64) (*model.StudySessionEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM study_session_enrollments WHERE id = $1`
	return r.getOne(ctx, "get enrollment by id", query, id)
}

// GetByStudent получает запись студента на конкретную сессию
func (r *enrollmentRepository) GetByStudent(ctx context.Context, sessionID, studentID int64) (*model.StudySessionEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM study_session_enrollments WHERE session_id = $1 AND student_id = $2`
	return r.getOne(ctx, "get enrollment by student", query, sessionID, studentID)
}

// FirstWaitlisted получает первого в листе ожидания
func (r *enrollmentRepository) FirstWaitlisted(ctx context.Context, sessionID int64) (*model.StudySessionEnrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM study_session_enrollments
		WHERE session_id = $1 AND status = 'waitlisted'
		ORDER BY waitlist_position
		LIMIT 1
	`
	return r.getOne(ctx, "get first waitlisted", query, sessionID)
}

// CountEnrolled считает подтверждённые записи
func (r *enrollmentRepository) CountEnrolled(ctx context.Context, sessionID int64) (int, error) {
	query := `SELECT COUNT(*) FROM study_session_enrollments WHERE session_id = $1 AND status = 'enrolled'`

	var count int
	if err := r.db.QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count enrolled: %w", err)
	}

	return count, nil
}

// MaxWaitlistPosition возвращает максимальную позицию в листе ожидания (0 если пусто)
func (r *enrollmentRepository) MaxWaitlistPosition(ctx context.Context, sessionID int64) (int, error) {
	query := `
		SELECT COALESCE(MAX(waitlist_position), 0)
		FROM study_session_enrollments
		WHERE session_id = $1 AND status = 'waitlisted'
	`

	var position int
	if err := r.db.QueryRow(ctx, query, sessionID).Scan(&position); err != nil {
		return 0, fmt.Errorf("max waitlist position: %w", err)
	}

	return position, nil
}

// ListWaitlisted получает лист ожидания по порядку
func (r *enrollmentRepository) ListWaitlisted(ctx context.Context, sessionID int64) ([]*model.StudySessionEnrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM study_session_enrollments
		WHERE session_id = $1 AND status = 'waitlisted'
		ORDER BY waitlist_position
	`
	return r.list(ctx, "list waitlisted", query, sessionID)
}

// ListBySession получает все записи сессии: сначала записанные, затем лист ожидания
func (r *enrollmentRepository) ListBySession(ctx context.Context, sessionID int64) ([]*model.StudySessionEnrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM study_session_enrollments
		WHERE session_id = $1
		ORDER BY (status = 'waitlisted'), waitlist_position NULLS FIRST, created_at, id
	`
	return r.list(ctx, "list enrollments", query, sessionID)
}

// Promote переводит запись из листа ожидания в записанные
func (r *enrollmentRepository) Promote(ctx context.Context, id int64) error {
	query := `
		UPDATE study_session_enrollments
		SET status = 'enrolled', waitlist_position = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'waitlisted'
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("promote enrollment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("waitlisted enrollment not found")
	}

	return nil
}

// SetWaitlistPosition обновляет позицию в листе ожидания
func (r *enrollmentRepository) SetWaitlistPosition(ctx context.Context, id int64, position int) error {
	query := `
		UPDATE study_session_enrollments
		SET waitlist_position = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'waitlisted'
	`

	result, err := r.db.Exec(ctx, query, position, id)
	if err != nil {
		return fmt.Errorf("set waitlist position: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("waitlisted enrollment not found")
	}

	return nil
}

// Delete удаляет запись
func (r *enrollmentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM study_session_enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("enrollment not found")
	}

	return nil
}

func (r *enrollmentRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.StudySessionEnrollment, error) {
	e, err := scanEnrollment(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

func (r *enrollmentRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.StudySessionEnrollment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var enrollments []*model.StudySessionEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return enrollments, nil
}

func scanEnrollment(row pgx.Row) (*model.StudySessionEnrollment, error) {
	var e model.StudySessionEnrollment
	err := row.Scan(
		&e.ID,
		&e.SessionID,
		&e.StudentID,
		&e.Status,
		&e.WaitlistPosition,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
