package handlers

import (
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/recurrence"
)

const (
	// Окно команды /schedule
	scheduleAhead = 7 * 24 * time.Hour

	// Самая длинная серия - MaxCount недель: сессии, начавшиеся раньше, уже закончились
	scheduleLookback = recurrence.MaxCount * 7 * 24 * time.Hour

	maxScheduleLines = 20
)

const rosterUsage = "Использование: /roster <id занятия>"

const helpText = "📚 Справка по командам:\n\n" +
	"/start - Привязать Telegram к аккаунту школы\n" +
	"/schedule - Занятия на ближайшую неделю (учитель)\n" +
	"/roster <id> - Записанные и лист ожидания занятия (учитель)\n" +
	"/help - Показать эту справку\n\n" +
	"Бот присылает:\n" +
	"• сообщение о новых и изменённых занятиях\n" +
	"• напоминания за 24 часа и за 1 час до занятия\n" +
	"• уведомление, когда ученик получил место из листа ожидания"
