package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	ics "github.com/arran4/golang-ical"
)

const calendarProductID = "-//study_scheduler//RU"

// CalendarFile собирает iCalendar с одним VEVENT на каждое занятие серии.
// UID привязан к id occurrence.
func CalendarFile(session *model.StudySession, occurrences []model.StudySessionOccurrence, now time.Time) []byte {
	cal := ics.NewCalendar()
	cal.SetProductId(calendarProductID)
	cal.SetMethod(ics.MethodPublish)

	for _, occ := range occurrences {
		event := cal.AddEvent(occurrenceUID(session.ID, occ.ID))
		event.SetDtStampTime(now)
		event.SetStartAt(occ.StartsAt)
		event.SetEndAt(occ.EndsAt)
		event.SetSummary(session.Title)
		if session.Location != "" {
			event.SetLocation(session.Location)
		}
		if desc := calendarDescription(session); desc != "" {
			event.SetDescription(desc)
		}
		if occ.IsCancelled() || session.IsCancelled() {
			event.SetStatus(ics.ObjectStatusCancelled)
		} else {
			event.SetStatus(ics.ObjectStatusConfirmed)
		}
	}

	return []byte(cal.Serialize())
}

func occurrenceUID(sessionID, occurrenceID int64) string {
	return fmt.Sprintf("session-%d-occurrence-%d@study_scheduler", sessionID, occurrenceID)
}

func calendarDescription(session *model.StudySession) string {
	var parts []string
	if session.Description != "" {
		parts = append(parts, session.Description)
	}
	if session.MeetingURL != "" {
		parts = append(parts, session.MeetingURL)
	}
	return strings.Join(parts, "\n")
}

// hasCalendar - события, к которым прикладывается .ics
func hasCalendar(n model.Notification) bool {
	if n.Payload.Session == nil || len(n.Payload.Occurrences) == 0 {
		return false
	}
	return n.Event == model.EventSessionCreated || n.Event == model.EventSessionUpdated
}
