package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
)

// За сколько до начала напоминаем
var reminderOffsets = []struct {
	kind   model.EventKind
	before time.Duration
}{
	{model.EventReminderDayBefore, 24 * time.Hour},
	{model.EventReminderHourBefore, time.Hour},
}

// ReminderPlanner планирует напоминания по вхождениям сессии
type ReminderPlanner struct {
	clock Clock
}

func NewReminderPlanner(clock Clock) *ReminderPlanner {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ReminderPlanner{clock: clock}
}

// Plan даёт напоминания за 24 часа и за час для каждого неотменённого вхождения.
// Время отправки не позже now отбрасывается.
func (p *ReminderPlanner) Plan(session *model.StudySession, occurrences []*model.StudySessionOccurrence) []model.ReminderIntent {
	now := p.clock.Now()

	var intents []model.ReminderIntent
	for _, occ := range occurrences {
		if occ.IsCancelled() {
			continue
		}
		for _, offset := range reminderOffsets {
			sendAt := occ.StartsAt.Add(-offset.before)
			if !sendAt.After(now) {
				continue
			}
			intents = append(intents, model.ReminderIntent{
				SessionID:     session.ID,
				OccurrenceID:  occ.ID,
				Kind:          offset.kind,
				SendAt:        sendAt,
				RecipientRole: model.RoleStudent,
			})
		}
	}

	return intents
}

// Replan отменяет ожидающие напоминания сессии и сохраняет новый план
func (p *ReminderPlanner) Replan(ctx context.Context, reminders repository.ReminderRepository, session *model.StudySession, occurrences []*model.StudySessionOccurrence) (int, error) {
	if _, err := reminders.CancelPending(ctx, session.ID); err != nil {
		return 0, fmt.Errorf("cancel pending reminders: %w", err)
	}

	if session.IsCancelled() {
		return 0, nil
	}

	intents := p.Plan(session, occurrences)
	for _, intent := range intents {
		if err := reminders.Schedule(ctx, intent); err != nil {
			return 0, fmt.Errorf("schedule reminder: %w", err)
		}
	}

	return len(intents), nil
}
