package model

import (
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/recurrence"
)

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// StudySession is a teacher-owned one-off or recurring meeting template.
// StartsAt/EndsAt describe the first occurrence.
type StudySession struct {
	ID          int64                 `json:"id"`
	TeacherID   int64                 `json:"teacher_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	StartsAt    time.Time             `json:"starts_at"`
	EndsAt      time.Time             `json:"ends_at"`
	Location    string                `json:"location"`
	MeetingURL  string                `json:"meeting_url"`
	Capacity    int                   `json:"capacity"`
	Timezone    string                `json:"timezone"` // display hint only
	Status      SessionStatus         `json:"status"`
	Recurrence  recurrence.Descriptor `json:"recurrence_rule"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// IsCancelled checks if the whole series is cancelled
func (s *StudySession) IsCancelled() bool {
	return s.Status == SessionStatusCancelled
}

// Window returns the first-occurrence window.
func (s *StudySession) Window() recurrence.Window {
	return recurrence.Window{StartsAt: s.StartsAt, EndsAt: s.EndsAt}
}

// DisplayLocation resolves Timezone for rendering; unknown zones fall back to UTC.
func (s *StudySession) DisplayLocation() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type OccurrenceStatus string

const (
	OccurrenceStatusScheduled OccurrenceStatus = "scheduled"
	OccurrenceStatusCancelled OccurrenceStatus = "cancelled"
)

// StudySessionOccurrence is one materialized meeting of a session.
type StudySessionOccurrence struct {
	ID        int64            `json:"id"`
	SessionID int64            `json:"session_id"`
	StartsAt  time.Time        `json:"starts_at"`
	EndsAt    time.Time        `json:"ends_at"`
	Status    OccurrenceStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IsCancelled checks if the occurrence is cancelled
func (o *StudySessionOccurrence) IsCancelled() bool {
	return o.Status == OccurrenceStatusCancelled
}

type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentStatusWaitlisted EnrollmentStatus = "waitlisted"
)

// StudySessionEnrollment is a student's claim on a whole session.
type StudySessionEnrollment struct {
	ID               int64            `json:"id"`
	SessionID        int64            `json:"session_id"`
	StudentID        int64            `json:"student_id"`
	Status           EnrollmentStatus `json:"status"`
	WaitlistPosition *int             `json:"waitlist_position"` // set iff Status is waitlisted
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsWaitlisted checks if the enrollment is on the waitlist
func (e *StudySessionEnrollment) IsWaitlisted() bool {
	return e.Status == EnrollmentStatusWaitlisted
}
