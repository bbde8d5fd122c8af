package model

// EventKind identifies what a notification is about.
type EventKind string

const (
	EventSessionCreated      EventKind = "session_created"
	EventSessionUpdated      EventKind = "session_updated"
	EventEnrollmentCancelled EventKind = "enrollment_cancelled"
	EventWaitlistPromoted    EventKind = "waitlist_promoted"
	EventReminderDayBefore   EventKind = "reminder_24h"
	EventReminderHourBefore  EventKind = "reminder_1h"
)

// Notification is an intent handed to the delivery collaborator.
type Notification struct {
	Recipient User      `json:"recipient"`
	Event     EventKind `json:"event"`
	Payload   Payload   `json:"payload"`
}

// Payload carries whatever the message renderer needs; unused fields stay zero.
type Payload struct {
	Session     *StudySession            `json:"session,omitempty"`
	Occurrence  *StudySessionOccurrence  `json:"occurrence,omitempty"`
	Occurrences []StudySessionOccurrence `json:"occurrences,omitempty"`
	Student     *Student                 `json:"student,omitempty"`
}
