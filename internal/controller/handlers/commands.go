package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/notify"
	"github.com/Freeeeeet/study_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	text := h.startReply(ctx, update.Message.From)
	h.sendText(ctx, b, update.Message.Chat.ID, text)
}

// startReply привязывает аккаунт и возвращает текст ответа
func (h *Handlers) startReply(ctx context.Context, from *models.User) string {
	user, err := h.users.LinkTelegram(ctx, from.ID, from.Username)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidArgument):
			return "❌ У вашего Telegram аккаунта нет username. Укажите его в настройках Telegram и повторите /start."
		case errors.Is(err, service.ErrNotFound):
			return fmt.Sprintf("❌ Пользователь @%s не найден. Попросите администратора школы добавить вас.", from.Username)
		case errors.Is(err, service.ErrForbidden):
			return "❌ Этот аккаунт уже привязан к другому пользователю."
		default:
			h.logger.Error("Failed to link telegram account",
				zap.Int64("telegram_id", from.ID),
				zap.Error(err),
			)
			return "❌ Произошла ошибка. Попробуйте позже."
		}
	}

	return fmt.Sprintf("👋 Привет, %s!\n\nTelegram привязан, уведомления о занятиях будут приходить сюда.\n\n/help - Справка", user.DisplayName())
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendText(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleSchedule обрабатывает команду /schedule
func (h *Handlers) HandleSchedule(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireTeacher(ctx, b, update)
	if !ok {
		return
	}

	text, err := h.scheduleReply(ctx, user)
	if err != nil {
		h.logger.Error("Failed to build schedule", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Не удалось получить расписание. Попробуйте позже.")
		return
	}

	h.sendText(ctx, b, update.Message.Chat.ID, text)
}

type scheduleLine struct {
	session    *model.StudySession
	occurrence *model.StudySessionOccurrence
}

// scheduleReply собирает вхождения учителя на ближайшую неделю
func (h *Handlers) scheduleReply(ctx context.Context, teacher *model.User) (string, error) {
	now := h.now()
	until := now.Add(scheduleAhead)

	sessions, err := h.schedule.ListForTeacher(ctx, teacher.ID, now.Add(-scheduleLookback), until)
	if err != nil {
		return "", err
	}

	var lines []scheduleLine
	for _, session := range sessions {
		if session.IsCancelled() {
			continue
		}
		_, occurrences, err := h.schedule.Get(ctx, session.ID)
		if err != nil {
			return "", err
		}
		for _, occ := range occurrences {
			if occ.EndsAt.Before(now) || !occ.StartsAt.Before(until) {
				continue
			}
			lines = append(lines, scheduleLine{session: session, occurrence: occ})
		}
	}

	if len(lines) == 0 {
		return "📭 На ближайшую неделю занятий нет.", nil
	}

	sort.Slice(lines, func(i, j int) bool {
		return lines[i].occurrence.StartsAt.Before(lines[j].occurrence.StartsAt)
	})

	var b strings.Builder
	b.WriteString("🗓 Занятия на неделю:\n")
	for i, line := range lines {
		if i == maxScheduleLines {
			fmt.Fprintf(&b, "\n… и ещё %d", len(lines)-maxScheduleLines)
			break
		}
		loc := line.session.DisplayLocation()
		start := line.occurrence.StartsAt.In(loc)
		end := line.occurrence.EndsAt.In(loc)

		mark := "•"
		if line.occurrence.IsCancelled() {
			mark = "✖"
		}
		fmt.Fprintf(&b, "\n%s %s %s %s %s",
			mark,
			notify.GetWeekdayShortName(start.Weekday()),
			start.Format("02.01"),
			notify.FormatTimeRange(start, end),
			line.session.Title,
		)
	}

	return b.String(), nil
}

// HandleRoster обрабатывает команду /roster <id>
func (h *Handlers) HandleRoster(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireTeacher(ctx, b, update)
	if !ok {
		return
	}

	h.sendText(ctx, b, update.Message.Chat.ID, h.rosterReply(ctx, user, update.Message.Text))
}

// rosterReply разбирает id занятия и собирает состав
func (h *Handlers) rosterReply(ctx context.Context, teacher *model.User, text string) string {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return rosterUsage
	}
	sessionID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || sessionID <= 0 {
		return rosterUsage
	}

	actor := model.Actor{ID: teacher.ID, Role: teacher.Role}
	session, roster, err := h.roster.Roster(ctx, actor, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return fmt.Sprintf("❌ Занятие #%d не найдено.", sessionID)
		case errors.Is(err, service.ErrForbidden):
			return "❌ Это занятие ведёт другой учитель."
		default:
			h.logger.Error("Failed to build roster",
				zap.Int64("user_id", teacher.ID),
				zap.Int64("session_id", sessionID),
				zap.Error(err),
			)
			return "❌ Произошла ошибка. Попробуйте позже."
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 %s (мест: %d)\n", session.Title, session.Capacity)

	var enrolled, waitlist []service.RosterEntry
	for _, entry := range roster {
		if entry.Enrollment.IsWaitlisted() {
			waitlist = append(waitlist, entry)
		} else {
			enrolled = append(enrolled, entry)
		}
	}

	if len(enrolled) == 0 {
		b.WriteString("\nЗаписанных нет.")
	} else {
		b.WriteString("\nЗаписаны:")
		for i, entry := range enrolled {
			fmt.Fprintf(&b, "\n%d. %s", i+1, rosterName(entry))
		}
	}

	if len(waitlist) > 0 {
		b.WriteString("\n\nЛист ожидания:")
		for _, entry := range waitlist {
			fmt.Fprintf(&b, "\n%d. %s", *entry.Enrollment.WaitlistPosition, rosterName(entry))
		}
	}

	return b.String()
}

func rosterName(entry service.RosterEntry) string {
	if entry.Student == nil {
		return fmt.Sprintf("ученик #%d", entry.Enrollment.StudentID)
	}
	return entry.Student.FullName()
}
