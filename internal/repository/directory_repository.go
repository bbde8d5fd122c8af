package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, telegram_id, username, first_name, last_name, email, role, created_at`

type directoryRepository struct {
	db base.Querier
}

func NewDirectoryRepository(db base.Querier) DirectoryRepository {
	return &directoryRepository{db: db}
}

// GetUser получает пользователя по ID
func (r *directoryRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

// GetUserByTelegramID получает пользователя по Telegram ID
func (r *directoryRepository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	return user, nil
}

// LinkTelegram привязывает Telegram аккаунт к пользователю по username
func (r *directoryRepository) LinkTelegram(ctx context.Context, username string, telegramID int64) (*model.User, error) {
	query := `
		UPDATE users
		SET telegram_id = $1
		WHERE lower(username) = lower($2)
		  AND (telegram_id IS NULL OR telegram_id = $1)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID, strings.TrimPrefix(username, "@")))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		if base.IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("link telegram: %w", err)
	}

	return user, nil
}

// GetStudent получает ученика из справочника
func (r *directoryRepository) GetStudent(ctx context.Context, id int64) (*model.Student, error) {
	query := `
		SELECT id, user_id, first_name, last_name, teacher_id, case_manager_id
		FROM students
		WHERE id = $1
	`

	var s model.Student
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.FirstName,
		&s.LastName,
		&s.TeacherID,
		&s.CaseManagerID,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get student: %w", err)
	}

	return &s, nil
}

// IsInCaseload проверяет, ведёт ли учитель ученика (как учитель или куратор)
func (r *directoryRepository) IsInCaseload(ctx context.Context, teacherID, studentID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM students
			WHERE id = $1 AND (teacher_id = $2 OR case_manager_id = $2)
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, studentID, teacherID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check caseload: %w", err)
	}

	return exists, nil
}

// GuardiansToNotify получает опекунов ученика с включёнными уведомлениями
func (r *directoryRepository) GuardiansToNotify(ctx context.Context, studentID int64) ([]*model.User, error) {
	query := `
		SELECT u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.email, u.role, u.created_at
		FROM guardian_links gl
		JOIN users u ON u.id = gl.guardian_id
		WHERE gl.student_id = $1 AND gl.notifications_enabled
		ORDER BY u.id
	`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	defer rows.Close()

	var guardians []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guardian: %w", err)
		}
		guardians = append(guardians, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guardians: %w", err)
	}

	return guardians, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
