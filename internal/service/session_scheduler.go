package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/recurrence"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
	"go.uber.org/zap"
)

// SessionAttrs - поля сессии от вызывающего
type SessionAttrs struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Location    string    `json:"location" validate:"max=255"`
	MeetingURL  string    `json:"meeting_url" validate:"omitempty,url"`
	Capacity    int       `json:"capacity" validate:"min=1"`
	Timezone    string    `json:"timezone" validate:"omitempty,timezone"`
}

// SessionPatch - частичное обновление серии, nil поля не меняются
type SessionPatch struct {
	Title       *string
	Description *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Location    *string
	MeetingURL  *string
	Capacity    *int
	Timezone    *string
	Status      *model.SessionStatus
}

// OccurrencePatch - частичное обновление одного вхождения
type OccurrencePatch struct {
	StartsAt *time.Time
	EndsAt   *time.Time
	Status   *model.OccurrenceStatus
}

type SessionScheduler struct {
	store     repository.Store
	conflicts *ConflictDetector
	planner   *ReminderPlanner
	notifier  Notifier
	validator *structValidator
	logger    *zap.Logger
}

func NewSessionScheduler(
	store repository.Store,
	conflicts *ConflictDetector,
	planner *ReminderPlanner,
	notifier Notifier,
	logger *zap.Logger,
) *SessionScheduler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SessionScheduler{
		store:     store,
		conflicts: conflicts,
		planner:   planner,
		notifier:  notifier,
		validator: newStructValidator(),
		logger:    logger,
	}
}

// Create создаёт сессию вместе со всеми её вхождениями. rule nil означает
// разовую сессию.
func (s *SessionScheduler) Create(ctx context.Context, actor model.Actor, teacherID int64, attrs SessionAttrs, rule *recurrence.Descriptor) (*model.StudySession, error) {
	if !actor.IsAdmin() && !actor.IsTeacher() {
		return nil, ErrForbidden
	}
	// Учитель создаёт сессии только для себя
	if actor.IsTeacher() && actor.ID != teacherID {
		return nil, ErrForbidden
	}

	if !attrs.EndsAt.After(attrs.StartsAt) {
		return nil, ErrInvalidTimeRange
	}
	if err := s.validator.Struct(attrs); err != nil {
		return nil, err
	}

	descriptor := recurrence.None()
	if rule != nil {
		descriptor = *rule
	}

	windows, err := descriptor.Expand(attrs.StartsAt, attrs.EndsAt)
	if err != nil {
		return nil, mapRecurrenceErr(err)
	}

	session := &model.StudySession{
		TeacherID:   teacherID,
		Title:       attrs.Title,
		Description: attrs.Description,
		StartsAt:    attrs.StartsAt,
		EndsAt:      attrs.EndsAt,
		Location:    attrs.Location,
		MeetingURL:  attrs.MeetingURL,
		Capacity:    attrs.Capacity,
		Timezone:    attrs.Timezone,
		Status:      model.SessionStatusScheduled,
		Recurrence:  descriptor,
	}

	var (
		occurrences []*model.StudySessionOccurrence
		planned     int
	)
	err = runInTx(ctx, s.store, "create session", func(tx *repository.Repositories) error {
		clash, err := s.conflicts.HasConflict(ctx, tx.Sessions, teacherID, session.Window(), 0)
		if err != nil {
			return err
		}
		if clash {
			return ErrSchedulingConflict
		}

		if err := tx.Sessions.Create(ctx, session); err != nil {
			return err
		}

		occurrences = buildOccurrences(session.ID, windows, model.OccurrenceStatusScheduled)
		if err := tx.Occurrences.CreateBatch(ctx, occurrences); err != nil {
			return err
		}

		planned, err = s.planner.Replan(ctx, tx.Reminders, session, occurrences)
		return err
	})
	if err != nil {
		s.logFailure("create session", err, zap.Int64("teacher_id", teacherID))
		return nil, err
	}

	s.logger.Info("Session created",
		zap.Int64("session_id", session.ID),
		zap.Int64("teacher_id", teacherID),
		zap.String("recurrence", descriptor.String()),
		zap.Int("occurrences", len(occurrences)),
		zap.Int("reminders", planned),
	)

	s.notifyTeacher(ctx, session, model.EventSessionCreated, model.Payload{
		Session:     session,
		Occurrences: flattenOccurrences(occurrences),
	})

	return session, nil
}

// UpdateSeries обновляет всю серию: поля сессии меняются, все вхождения
// удаляются и генерируются заново. rule nil сохраняет текущее правило.
func (s *SessionScheduler) UpdateSeries(ctx context.Context, actor model.Actor, sessionID int64, patch SessionPatch, rule *recurrence.Descriptor) (*model.StudySession, error) {
	var (
		session     *model.StudySession
		occurrences []*model.StudySessionOccurrence
		promoted    []*model.StudySessionEnrollment
		deleted     int64
		planned     int
	)

	err := runInTx(ctx, s.store, "update session series", func(tx *repository.Repositories) error {
		current, err := tx.Sessions.LockForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNotFound
		}
		if !canEdit(actor, current) {
			return ErrForbidden
		}

		session = applyPatch(current, patch)
		if rule != nil {
			session.Recurrence = *rule
		}

		if !session.EndsAt.After(session.StartsAt) {
			return ErrInvalidTimeRange
		}
		if err := s.validator.Struct(sessionAttrs(session)); err != nil {
			return err
		}
		if session.Status != model.SessionStatusScheduled && session.Status != model.SessionStatusCancelled {
			return &ValidationError{Fields: map[string]string{"status": "status must be scheduled or cancelled"}}
		}

		windows, err := session.Recurrence.Expand(session.StartsAt, session.EndsAt)
		if err != nil {
			return mapRecurrenceErr(err)
		}

		// Отменённая серия ни с чем не конфликтует
		if !session.IsCancelled() {
			clash, err := s.conflicts.HasConflict(ctx, tx.Sessions, session.TeacherID, session.Window(), session.ID)
			if err != nil {
				return err
			}
			if clash {
				return ErrSchedulingConflict
			}
		}

		if err := tx.Sessions.Update(ctx, session); err != nil {
			return err
		}

		// Добавленные места достаются листу ожидания по порядку
		if !session.IsCancelled() && session.Capacity > current.Capacity {
			promoted, err = fillFreeSeats(ctx, tx.Enrollments, session)
			if err != nil {
				return err
			}
		}

		deleted, err = tx.Occurrences.DeleteBySession(ctx, session.ID)
		if err != nil {
			return err
		}

		status := model.OccurrenceStatusScheduled
		if session.IsCancelled() {
			status = model.OccurrenceStatusCancelled
		}
		occurrences = buildOccurrences(session.ID, windows, status)
		if err := tx.Occurrences.CreateBatch(ctx, occurrences); err != nil {
			return err
		}

		planned, err = s.planner.Replan(ctx, tx.Reminders, session, occurrences)
		return err
	})
	if err != nil {
		s.logFailure("update session series", err, zap.Int64("session_id", sessionID))
		return nil, err
	}

	s.logger.Info("Session series updated",
		zap.Int64("session_id", session.ID),
		zap.String("status", string(session.Status)),
		zap.String("recurrence", session.Recurrence.String()),
		zap.Int64("occurrences_deleted", deleted),
		zap.Int("occurrences_created", len(occurrences)),
		zap.Int("reminders", planned),
		zap.Int("promoted", len(promoted)),
	)

	payload := model.Payload{Session: session, Occurrences: flattenOccurrences(occurrences)}
	s.notifyTeacher(ctx, session, model.EventSessionUpdated, payload)
	if session.IsCancelled() {
		s.notifyStudents(ctx, session, model.EventSessionUpdated, payload)
	}
	for _, e := range promoted {
		notifyPromoted(ctx, s.store.Repos(), s.notifier, s.logger, session, e)
	}

	return session, nil
}

// UpdateOccurrence меняет одно вхождение, не трогая остальные
func (s *SessionScheduler) UpdateOccurrence(ctx context.Context, actor model.Actor, sessionID, occurrenceID int64, patch OccurrencePatch) (*model.StudySessionOccurrence, error) {
	var (
		session    *model.StudySession
		occurrence *model.StudySessionOccurrence
		planned    int
	)

	err := runInTx(ctx, s.store, "update occurrence", func(tx *repository.Repositories) error {
		var err error
		session, err = tx.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrNotFound
		}
		if !canEdit(actor, session) {
			return ErrForbidden
		}

		occurrence, err = tx.Occurrences.GetByID(ctx, occurrenceID)
		if err != nil {
			return err
		}
		if occurrence == nil {
			return ErrNotFound
		}
		if occurrence.SessionID != sessionID {
			return ErrMismatch
		}

		if patch.StartsAt != nil {
			occurrence.StartsAt = *patch.StartsAt
		}
		if patch.EndsAt != nil {
			occurrence.EndsAt = *patch.EndsAt
		}
		if patch.Status != nil {
			occurrence.Status = *patch.Status
		}

		if !occurrence.EndsAt.After(occurrence.StartsAt) {
			return ErrInvalidTimeRange
		}
		if occurrence.Status != model.OccurrenceStatusScheduled && occurrence.Status != model.OccurrenceStatusCancelled {
			return &ValidationError{Fields: map[string]string{"status": "status must be scheduled or cancelled"}}
		}

		if err := tx.Occurrences.Update(ctx, occurrence); err != nil {
			return err
		}

		siblings, err := tx.Occurrences.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}

		planned, err = s.planner.Replan(ctx, tx.Reminders, session, siblings)
		return err
	})
	if err != nil {
		s.logFailure("update occurrence", err,
			zap.Int64("session_id", sessionID),
			zap.Int64("occurrence_id", occurrenceID),
		)
		return nil, err
	}

	s.logger.Info("Occurrence updated",
		zap.Int64("session_id", sessionID),
		zap.Int64("occurrence_id", occurrence.ID),
		zap.String("status", string(occurrence.Status)),
		zap.Int("reminders", planned),
	)

	s.notifyTeacher(ctx, session, model.EventSessionUpdated, model.Payload{
		Session:    session,
		Occurrence: occurrence,
	})

	return occurrence, nil
}

// Get получает сессию и её вхождения
func (s *SessionScheduler) Get(ctx context.Context, sessionID int64) (*model.StudySession, []*model.StudySessionOccurrence, error) {
	repos := s.store.Repos()

	session, err := repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, &InfrastructureError{Op: "get session", Err: err}
	}
	if session == nil {
		return nil, nil, ErrNotFound
	}

	occurrences, err := repos.Occurrences.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, &InfrastructureError{Op: "list occurrences", Err: err}
	}

	return session, occurrences, nil
}

// ListForTeacher получает сессии учителя, начинающиеся в [from, to)
func (s *SessionScheduler) ListForTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.StudySession, error) {
	if !to.After(from) {
		return nil, ErrInvalidTimeRange
	}

	sessions, err := s.store.Repos().Sessions.ListByTeacher(ctx, teacherID, from, to)
	if err != nil {
		return nil, &InfrastructureError{Op: "list sessions", Err: err}
	}

	return sessions, nil
}

func (s *SessionScheduler) notifyTeacher(ctx context.Context, session *model.StudySession, event model.EventKind, payload model.Payload) {
	teacher, err := s.store.Repos().Directory.GetUser(ctx, session.TeacherID)
	if err != nil {
		s.logger.Warn("Failed to resolve teacher for notification",
			zap.Int64("teacher_id", session.TeacherID),
			zap.Error(err),
		)
		return
	}
	notifyAll(ctx, s.notifier, s.logger, event, payload, []*model.User{teacher})
}

func (s *SessionScheduler) notifyStudents(ctx context.Context, session *model.StudySession, event model.EventKind, payload model.Payload) {
	audience, err := studentAudience(ctx, s.store.Repos(), session.ID)
	if err != nil {
		s.logger.Warn("Failed to resolve student audience",
			zap.Int64("session_id", session.ID),
			zap.Error(err),
		)
		return
	}
	notifyAll(ctx, s.notifier, s.logger, event, payload, audience)
}

func (s *SessionScheduler) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if IsInfrastructure(err) {
		s.logger.Error("Failed to "+op, fields...)
		return
	}
	s.logger.Debug("Rejected "+op, fields...)
}

// canEdit: админ правит всё, учитель только свои сессии
func canEdit(actor model.Actor, session *model.StudySession) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsTeacher() && session.TeacherID == actor.ID
}

func applyPatch(current *model.StudySession, patch SessionPatch) *model.StudySession {
	next := *current
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.StartsAt != nil {
		next.StartsAt = *patch.StartsAt
	}
	if patch.EndsAt != nil {
		next.EndsAt = *patch.EndsAt
	}
	if patch.Location != nil {
		next.Location = *patch.Location
	}
	if patch.MeetingURL != nil {
		next.MeetingURL = *patch.MeetingURL
	}
	if patch.Capacity != nil {
		next.Capacity = *patch.Capacity
	}
	if patch.Timezone != nil {
		next.Timezone = *patch.Timezone
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	return &next
}

func sessionAttrs(s *model.StudySession) SessionAttrs {
	return SessionAttrs{
		Title:       s.Title,
		Description: s.Description,
		StartsAt:    s.StartsAt,
		EndsAt:      s.EndsAt,
		Location:    s.Location,
		MeetingURL:  s.MeetingURL,
		Capacity:    s.Capacity,
		Timezone:    s.Timezone,
	}
}

func buildOccurrences(sessionID int64, windows []recurrence.Window, status model.OccurrenceStatus) []*model.StudySessionOccurrence {
	occurrences := make([]*model.StudySessionOccurrence, 0, len(windows))
	for _, w := range windows {
		occurrences = append(occurrences, &model.StudySessionOccurrence{
			SessionID: sessionID,
			StartsAt:  w.StartsAt,
			EndsAt:    w.EndsAt,
			Status:    status,
		})
	}
	return occurrences
}

func flattenOccurrences(occurrences []*model.StudySessionOccurrence) []model.StudySessionOccurrence {
	out := make([]model.StudySessionOccurrence, 0, len(occurrences))
	for _, o := range occurrences {
		out = append(out, *o)
	}
	return out
}

func mapRecurrenceErr(err error) error {
	if errors.Is(err, recurrence.ErrInvalidArgument) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}
