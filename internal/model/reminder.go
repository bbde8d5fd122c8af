package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// reminderNamespace seeds deterministic reminder keys.
var reminderNamespace = uuid.MustParse("6f1c9d5e-3a7b-4c2e-9f0d-8b1a2c3d4e5f")

// ReminderIntent is a planned reminder for one occurrence. It is derived,
// the core never persists it; the scheduling collaborator may.
type ReminderIntent struct {
	SessionID     int64     `json:"session_id"`
	OccurrenceID  int64     `json:"occurrence_id"`
	Kind          EventKind `json:"kind"`
	SendAt        time.Time `json:"send_at"`
	RecipientRole Role      `json:"recipient_role"`
}

// Key is stable for the same occurrence, kind and send time, so re-planning
// an unchanged occurrence does not create a second job.
func (r ReminderIntent) Key() uuid.UUID {
	name := fmt.Sprintf("%d:%d:%s:%d", r.SessionID, r.OccurrenceID, r.Kind, r.SendAt.UTC().Unix())
	return uuid.NewSHA1(reminderNamespace, []byte(name))
}

type ReminderJobStatus string

const (
	ReminderJobPending   ReminderJobStatus = "pending"
	ReminderJobSent      ReminderJobStatus = "sent"
	ReminderJobCancelled ReminderJobStatus = "cancelled"
)

// ReminderJob is a persisted, deliverable reminder.
type ReminderJob struct {
	ID     int64             `json:"id"`
	Key    uuid.UUID         `json:"key"`
	Intent ReminderIntent    `json:"intent"`
	Status ReminderJobStatus `json:"status"`
	SentAt *time.Time        `json:"sent_at"`

	// LeaseUntil: до этого момента задачу доставляет захвативший её диспетчер
	LeaseUntil *time.Time `json:"lease_until"`
}
