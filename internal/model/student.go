package model

import "strings"

// Student is a directory record; students are not necessarily users.
type Student struct {
	ID            int64  `json:"id"`
	UserID        *int64 `json:"user_id"` // set when the student has their own account
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	TeacherID     *int64 `json:"teacher_id"`
	CaseManagerID *int64 `json:"case_manager_id"`
}

// FullName returns "First Last".
func (s *Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// InCaseloadOf reports whether the teacher is the student's teacher or case manager.
func (s *Student) InCaseloadOf(teacherID int64) bool {
	return (s.TeacherID != nil && *s.TeacherID == teacherID) ||
		(s.CaseManagerID != nil && *s.CaseManagerID == teacherID)
}

// GuardianLink connects a guardian account to a student.
type GuardianLink struct {
	ID                   int64 `json:"id"`
	StudentID            int64 `json:"student_id"`
	GuardianID           int64 `json:"guardian_id"`
	NotificationsEnabled bool  `json:"notifications_enabled"`

	Guardian *User `json:"guardian,omitempty"`
}
