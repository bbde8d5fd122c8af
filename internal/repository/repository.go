package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// Lookups return (nil, nil) when the row does not exist.

type SessionRepository interface {
	Create(ctx context.Context, session *model.StudySession) error
	GetByID(ctx context.Context, id int64) (*model.StudySession, error)
	// LockForUpdate reads the session row and holds an exclusive lock on it
	// until the surrounding transaction ends.
	LockForUpdate(ctx context.Context, id int64) (*model.StudySession, error)
	Update(ctx context.Context, session *model.StudySession) error
	// ListOverlapping returns scheduled sessions of the teacher whose window
	// overlaps [start, end] with inclusive boundaries. excludeID 0 excludes nothing.
	ListOverlapping(ctx context.Context, teacherID int64, start, end time.Time, excludeID int64) ([]*model.StudySession, error)
	ListByTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.StudySession, error)
}

type OccurrenceRepository interface {
	CreateBatch(ctx context.Context, occurrences []*model.StudySessionOccurrence) error
	GetByID(ctx context.Context, id int64) (*model.StudySessionOccurrence, error)
	Update(ctx context.Context, occurrence *model.StudySessionOccurrence) error
	DeleteBySession(ctx context.Context, sessionID int64) (int64, error)
	// ListBySession is ordered by starts_at ascending.
	ListBySession(ctx context.Context, sessionID int64) ([]*model.StudySessionOccurrence, error)
}

type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *model.StudySessionEnrollment) error
	GetByID(ctx context.Context, id int64) (*model.StudySessionEnrollment, error)
	GetByStudent(ctx context.Context, sessionID, studentID int64) (*model.StudySessionEnrollment, error)
	CountEnrolled(ctx context.Context, sessionID int64) (int, error)
	// MaxWaitlistPosition returns 0 for an empty waitlist.
	MaxWaitlistPosition(ctx context.Context, sessionID int64) (int, error)
	FirstWaitlisted(ctx context.Context, sessionID int64) (*model.StudySessionEnrollment, error)
	// ListWaitlisted is ordered by waitlist_position ascending.
	ListWaitlisted(ctx context.Context, sessionID int64) ([]*model.StudySessionEnrollment, error)
	// ListBySession returns enrolled rows first, then the waitlist in order.
	ListBySession(ctx context.Context, sessionID int64) ([]*model.StudySessionEnrollment, error)
	Promote(ctx context.Context, id int64) error
	SetWaitlistPosition(ctx context.Context, id int64, position int) error
	Delete(ctx context.Context, id int64) error
}

// DirectoryRepository reads the student/guardian directory owned by the
// wider school application.
type DirectoryRepository interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	LinkTelegram(ctx context.Context, username string, telegramID int64) (*model.User, error)
	GetStudent(ctx context.Context, id int64) (*model.Student, error)
	IsInCaseload(ctx context.Context, teacherID, studentID int64) (bool, error)
	// GuardiansToNotify returns guardians of the student who opted in.
	GuardiansToNotify(ctx context.Context, studentID int64) ([]*model.User, error)
}

// ReminderRepository persists reminder jobs for the dispatcher.
type ReminderRepository interface {
	CancelPending(ctx context.Context, sessionID int64) (int64, error)
	// Schedule is idempotent on intent.Key().
	Schedule(ctx context.Context, intent model.ReminderIntent) error
	// ClaimDue leases up to limit pending jobs with send_at <= now until
	// leaseUntil. Jobs under an unexpired lease are skipped.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*model.ReminderJob, error)
	// ReleaseClaim drops the lease so the next pass retries the job.
	ReleaseClaim(ctx context.Context, id int64) error
	// MarkSent only affects a job that is still pending.
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkCancelled(ctx context.Context, id int64) error
}

// Repositories bundles every repository bound to the same connection or
// transaction.
type Repositories struct {
	Sessions    SessionRepository
	Occurrences OccurrenceRepository
	Enrollments EnrollmentRepository
	Directory   DirectoryRepository
	Reminders   ReminderRepository
}

// Store is the transactional storage contract.
type Store interface {
	// Repos returns repositories running outside any transaction.
	Repos() *Repositories
	// InTx runs fn with repositories bound to one transaction. The transaction
	// commits when fn returns nil and rolls back otherwise; row locks taken by
	// LockForUpdate are released at that point.
	InTx(ctx context.Context, fn func(tx *Repositories) error) error
}
