package service

import (
	"context"
	"errors"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
	"go.uber.org/zap"
)

type EnrollmentManager struct {
	store    repository.Store
	notifier Notifier
	logger   *zap.Logger
}

func NewEnrollmentManager(store repository.Store, notifier Notifier, logger *zap.Logger) *EnrollmentManager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &EnrollmentManager{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Enroll записывает ученика на сессию или ставит в лист ожидания.
// Строка сессии блокируется до конца транзакции, поэтому подсчёт мест и
// вставка не пересекаются с параллельными записями.
func (m *EnrollmentManager) Enroll(ctx context.Context, actor model.Actor, sessionID, studentID int64) (*model.StudySessionEnrollment, error) {
	if !actor.IsTeacher() {
		return nil, ErrForbidden
	}

	var enrollment *model.StudySessionEnrollment
	err := runInTx(ctx, m.store, "enroll student", func(tx *repository.Repositories) error {
		session, err := tx.Sessions.LockForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrNotFound
		}
		if session.TeacherID != actor.ID {
			return ErrForbidden
		}

		inCaseload, err := tx.Directory.IsInCaseload(ctx, actor.ID, studentID)
		if err != nil {
			return err
		}
		if !inCaseload {
			return ErrForbidden
		}

		if session.IsCancelled() {
			return &ValidationError{Fields: map[string]string{"session_id": "session is cancelled"}}
		}

		existing, err := tx.Enrollments.GetByStudent(ctx, sessionID, studentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyEnrolled
		}

		enrolled, err := tx.Enrollments.CountEnrolled(ctx, sessionID)
		if err != nil {
			return err
		}

		enrollment = &model.StudySessionEnrollment{
			SessionID: sessionID,
			StudentID: studentID,
			Status:    model.EnrollmentStatusEnrolled,
		}

		if enrolled >= session.Capacity {
			last, err := tx.Enrollments.MaxWaitlistPosition(ctx, sessionID)
			if err != nil {
				return err
			}
			position := last + 1
			enrollment.Status = model.EnrollmentStatusWaitlisted
			enrollment.WaitlistPosition = &position
		}

		if err := tx.Enrollments.Create(ctx, enrollment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyEnrolled
			}
			return err
		}

		return nil
	})
	if err != nil {
		m.logFailure("enroll student", err,
			zap.Int64("session_id", sessionID),
			zap.Int64("student_id", studentID),
		)
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("enrollment_id", enrollment.ID),
		zap.Int64("session_id", sessionID),
		zap.Int64("student_id", studentID),
		zap.String("status", string(enrollment.Status)),
	}
	if enrollment.WaitlistPosition != nil {
		fields = append(fields, zap.Int("waitlist_position", *enrollment.WaitlistPosition))
	}
	m.logger.Info("Student enrolled", fields...)

	return enrollment, nil
}

// Cancel удаляет запись, продвигает первого из листа ожидания и
// перенумеровывает оставшихся 1..N.
func (m *EnrollmentManager) Cancel(ctx context.Context, actor model.Actor, enrollmentID int64) error {
	if !actor.IsTeacher() {
		return ErrForbidden
	}

	var (
		session   *model.StudySession
		cancelled *model.StudySessionEnrollment
		promoted  *model.StudySessionEnrollment
	)

	err := runInTx(ctx, m.store, "cancel enrollment", func(tx *repository.Repositories) error {
		var err error
		cancelled, err = tx.Enrollments.GetByID(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if cancelled == nil {
			return ErrNotFound
		}

		session, err = tx.Sessions.LockForUpdate(ctx, cancelled.SessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrNotFound
		}
		if session.TeacherID != actor.ID {
			return ErrForbidden
		}

		// Перечитываем под блокировкой: запись могли отменить параллельно
		cancelled, err = tx.Enrollments.GetByID(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if cancelled == nil {
			return ErrNotFound
		}

		if err := tx.Enrollments.Delete(ctx, cancelled.ID); err != nil {
			return err
		}

		promoted, err = promote(ctx, tx.Enrollments, session)
		if err != nil {
			return err
		}

		return resequenceWaitlist(ctx, tx.Enrollments, session.ID)
	})
	if err != nil {
		m.logFailure("cancel enrollment", err, zap.Int64("enrollment_id", enrollmentID))
		return err
	}

	fields := []zap.Field{
		zap.Int64("enrollment_id", enrollmentID),
		zap.Int64("session_id", session.ID),
		zap.Int64("student_id", cancelled.StudentID),
	}
	if promoted != nil {
		fields = append(fields, zap.Int64("promoted_student_id", promoted.StudentID))
	}
	m.logger.Info("Enrollment cancelled", fields...)

	m.notifyCancelled(ctx, session, cancelled)
	if promoted != nil {
		notifyPromoted(ctx, m.store.Repos(), m.notifier, m.logger, session, promoted)
	}

	return nil
}

// List получает записи сессии: сначала записанные, затем лист ожидания
func (m *EnrollmentManager) List(ctx context.Context, actor model.Actor, sessionID int64) ([]*model.StudySessionEnrollment, error) {
	repos := m.store.Repos()

	session, err := repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, &InfrastructureError{Op: "get session", Err: err}
	}
	if session == nil {
		return nil, ErrNotFound
	}
	if !canEdit(actor, session) {
		return nil, ErrForbidden
	}

	enrollments, err := repos.Enrollments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, &InfrastructureError{Op: "list enrollments", Err: err}
	}

	return enrollments, nil
}

// RosterEntry - запись вместе с учеником
type RosterEntry struct {
	Enrollment *model.StudySessionEnrollment
	Student    *model.Student
}

// Roster получает состав сессии с именами учеников в порядке List
func (m *EnrollmentManager) Roster(ctx context.Context, actor model.Actor, sessionID int64) (*model.StudySession, []RosterEntry, error) {
	enrollments, err := m.List(ctx, actor, sessionID)
	if err != nil {
		return nil, nil, err
	}

	repos := m.store.Repos()
	session, err := repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, &InfrastructureError{Op: "get session", Err: err}
	}
	if session == nil {
		return nil, nil, ErrNotFound
	}

	roster := make([]RosterEntry, 0, len(enrollments))
	for _, e := range enrollments {
		student, err := repos.Directory.GetStudent(ctx, e.StudentID)
		if err != nil {
			return nil, nil, &InfrastructureError{Op: "get student", Err: err}
		}
		roster = append(roster, RosterEntry{Enrollment: e, Student: student})
	}

	return session, roster, nil
}

// promote переводит первого в листе ожидания в записанные, если есть место.
// Место может отсутствовать, если отменена запись из листа ожидания или
// вместимость была уменьшена.
func promote(ctx context.Context, enrollments repository.EnrollmentRepository, session *model.StudySession) (*model.StudySessionEnrollment, error) {
	enrolled, err := enrollments.CountEnrolled(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if enrolled >= session.Capacity {
		return nil, nil
	}

	first, err := enrollments.FirstWaitlisted(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, nil
	}

	if err := enrollments.Promote(ctx, first.ID); err != nil {
		return nil, err
	}

	first.Status = model.EnrollmentStatusEnrolled
	first.WaitlistPosition = nil
	return first, nil
}

// fillFreeSeats продвигает лист ожидания, пока есть места, и перенумеровывает остаток
func fillFreeSeats(ctx context.Context, enrollments repository.EnrollmentRepository, session *model.StudySession) ([]*model.StudySessionEnrollment, error) {
	var promoted []*model.StudySessionEnrollment
	for {
		e, err := promote(ctx, enrollments, session)
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		promoted = append(promoted, e)
	}

	if err := resequenceWaitlist(ctx, enrollments, session.ID); err != nil {
		return nil, err
	}
	return promoted, nil
}

// resequenceWaitlist переписывает позиции листа ожидания в 1..N, сохраняя порядок
func resequenceWaitlist(ctx context.Context, enrollments repository.EnrollmentRepository, sessionID int64) error {
	waitlist, err := enrollments.ListWaitlisted(ctx, sessionID)
	if err != nil {
		return err
	}

	for i, e := range waitlist {
		position := i + 1
		if e.WaitlistPosition != nil && *e.WaitlistPosition == position {
			continue
		}
		if err := enrollments.SetWaitlistPosition(ctx, e.ID, position); err != nil {
			return err
		}
	}

	return nil
}

func (m *EnrollmentManager) notifyCancelled(ctx context.Context, session *model.StudySession, cancelled *model.StudySessionEnrollment) {
	repos := m.store.Repos()

	teacher, err := repos.Directory.GetUser(ctx, session.TeacherID)
	if err != nil {
		m.logger.Warn("Failed to resolve teacher for notification",
			zap.Int64("teacher_id", session.TeacherID),
			zap.Error(err),
		)
		return
	}

	payload := model.Payload{Session: session, Student: lookupStudent(ctx, repos, m.logger, cancelled.StudentID)}
	notifyAll(ctx, m.notifier, m.logger, model.EventEnrollmentCancelled, payload, []*model.User{teacher})
}

// notifyPromoted сообщает опекунам, что ученик получил место
func notifyPromoted(ctx context.Context, repos *repository.Repositories, notifier Notifier, logger *zap.Logger, session *model.StudySession, promoted *model.StudySessionEnrollment) {
	// Опекуны без согласия на уведомления просто не попадают в выборку
	guardians, err := repos.Directory.GuardiansToNotify(ctx, promoted.StudentID)
	if err != nil {
		logger.Warn("Failed to resolve guardians for notification",
			zap.Int64("student_id", promoted.StudentID),
			zap.Error(err),
		)
		return
	}

	payload := model.Payload{Session: session, Student: lookupStudent(ctx, repos, logger, promoted.StudentID)}
	notifyAll(ctx, notifier, logger, model.EventWaitlistPromoted, payload, guardians)
}

func lookupStudent(ctx context.Context, repos *repository.Repositories, logger *zap.Logger, studentID int64) *model.Student {
	student, err := repos.Directory.GetStudent(ctx, studentID)
	if err != nil {
		logger.Warn("Failed to load student", zap.Int64("student_id", studentID), zap.Error(err))
		return nil
	}
	return student
}

func (m *EnrollmentManager) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if IsInfrastructure(err) {
		m.logger.Error("Failed to "+op, fields...)
		return
	}
	m.logger.Debug("Rejected "+op, fields...)
}
