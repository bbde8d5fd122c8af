package model

import (
	"strings"
	"time"
)

// Role is the caller's role as asserted by the identity layer.
type Role string

const (
	RoleTeacher  Role = "teacher"
	RoleAdmin    Role = "admin"
	RoleStudent  Role = "student"
	RoleGuardian Role = "guardian"
)

// User is a directory account that can receive notifications.
type User struct {
	ID         int64     `json:"id"`
	TelegramID *int64    `json:"telegram_id"` // nil until the user links the bot via /start
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayName returns "First Last", falling back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Actor is an already-authenticated principal invoking an operation.
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// IsAdmin checks if the actor has the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsTeacher checks if the actor has the teacher role
func (a Actor) IsTeacher() bool {
	return a.Role == RoleTeacher
}
