package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type occurrenceRepository struct {
	db base.Querier
}

func NewOccurrenceRepository(db base.Querier) OccurrenceRepository {
	return &occurrenceRepository{db: db}
}

// CreateBatch вставляет все вхождения одним batch-запросом
func (r *occurrenceRepository) CreateBatch(ctx context.Context, occurrences []*model.StudySessionOccurrence) error {
	if len(occurrences) == 0 {
		return nil
	}

	query := `
		INSERT INTO study_session_occurrences (session_id, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	batch := &pgx.Batch{}
	for _, occ := range occurrences {
		batch.Queue(query, occ.SessionID, occ.StartsAt, occ.EndsAt, occ.Status)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, occ := range occurrences {
		if err := results.QueryRow().Scan(&occ.ID, &occ.CreatedAt, &occ.UpdatedAt); err != nil {
			return fmt.Errorf("create occurrence: %w", err)
		}
	}

	return nil
}

// GetByID получает вхождение по ID
func (r *occurrenceRepository) GetByID(ctx context.Context, id int64) (*model.StudySessionOccurrence, error) {
	query := `
		SELECT id, session_id, starts_at, ends_at, status, created_at, updated_at
		FROM study_session_occurrences
		WHERE id = $1
	`

	var occ model.StudySessionOccurrence
	err := r.db.QueryRow(ctx, query, id).Scan(
		&occ.ID,
		&occ.SessionID,
		&occ.StartsAt,
		&occ.EndsAt,
		&occ.Status,
		&occ.CreatedAt,
		&occ.UpdatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get occurrence by id: %w", err)
	}

	return &occ, nil
}

// Update обновляет время и статус одного вхождения
func (r *occurrenceRepository) Update(ctx context.Context, occ *model.StudySessionOccurrence) error {
	query := `
		UPDATE study_session_occurrences
		SET starts_at = $1, ends_at = $2, status = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query, occ.StartsAt, occ.EndsAt, occ.Status, occ.ID).Scan(&occ.UpdatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("occurrence not found")
		}
		return fmt.Errorf("update occurrence: %w", err)
	}

	return nil
}

// DeleteBySession удаляет все вхождения сессии
func (r *occurrenceRepository) DeleteBySession(ctx context.Context, sessionID int64) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM study_session_occurrences WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete occurrences: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListBySession получает все вхождения сессии по возрастанию времени начала
func (r *occurrenceRepository) ListBySession(ctx context.Context, sessionID int64) ([]*model.StudySessionOccurrence, error) {
	query := `
		SELECT id, session_id, starts_at, ends_at, status, created_at, updated_at
		FROM study_session_occurrences
		WHERE session_id = $1
		ORDER BY starts_at, id
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var occurrences []*model.StudySessionOccurrence
	for rows.Next() {
		var occ model.StudySessionOccurrence
		err := rows.Scan(
			&occ.ID,
			&occ.SessionID,
			&occ.StartsAt,
			&occ.EndsAt,
			&occ.Status,
			&occ.CreatedAt,
			&occ.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		occurrences = append(occurrences, &occ)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate occurrences: %w", err)
	}

	return occurrences, nil
}
