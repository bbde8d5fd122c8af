package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/recurrence"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
)

// ConflictDetector проверяет пересечения с другими сессиями учителя
type ConflictDetector struct{}

func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// HasConflict проверяет, пересекается ли окно с запланированной сессией учителя.
// Касание границ считается конфликтом, excludeID 0 ничего не исключает.
func (d *ConflictDetector) HasConflict(ctx context.Context, sessions repository.SessionRepository, teacherID int64, candidate recurrence.Window, excludeID int64) (bool, error) {
	existing, err := sessions.ListOverlapping(ctx, teacherID, candidate.StartsAt, candidate.EndsAt, excludeID)
	if err != nil {
		return false, fmt.Errorf("list overlapping sessions: %w", err)
	}

	return len(Conflicting(existing, teacherID, candidate, excludeID)) > 0, nil
}

// Conflicting оставляет сессии, конфликтующие с окном
func Conflicting(sessions []*model.StudySession, teacherID int64, candidate recurrence.Window, excludeID int64) []*model.StudySession {
	var clashes []*model.StudySession
	for _, s := range sessions {
		if s.TeacherID != teacherID || s.IsCancelled() {
			continue
		}
		if excludeID != 0 && s.ID == excludeID {
			continue
		}
		if s.Window().Overlaps(candidate) {
			clashes = append(clashes, s)
		}
	}
	return clashes
}
