package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/recurrence"
)

// maxListedOccurrences ограничивает список дат в сообщении о создании
const maxListedOccurrences = 10

// FormatDateTime форматирует дату и время
func FormatDateTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

// FormatTimeRange форматирует диапазон времени
func FormatTimeRange(start, end time.Time) string {
	return fmt.Sprintf("%s-%s", start.Format("15:04"), end.Format("15:04"))
}

// FormatDuration форматирует длительность
func FormatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}

// GetWeekdayShortName возвращает краткое название дня недели на русском
func GetWeekdayShortName(weekday time.Weekday) string {
	names := []string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}
	if int(weekday) >= 0 && int(weekday) < len(names) {
		return names[weekday]
	}
	return "?"
}

// formatWindow: "Пн 03.02.2025 10:00-11:30" в часовом поясе сессии
func formatWindow(start, end time.Time, loc *time.Location) string {
	start = start.In(loc)
	end = end.In(loc)
	return fmt.Sprintf("%s %s %s", GetWeekdayShortName(start.Weekday()), start.Format("02.01.2006"), FormatTimeRange(start, end))
}

func formatRecurrence(session *model.StudySession) string {
	if session.Recurrence.IsNone() {
		return "разовое занятие"
	}
	switch session.Recurrence.Frequency() {
	case recurrence.FrequencyDaily:
		return fmt.Sprintf("ежедневно, %d раз", session.Recurrence.Count())
	case recurrence.FrequencyWeekly:
		return fmt.Sprintf("еженедельно, %d раз", session.Recurrence.Count())
	default:
		return session.Recurrence.String()
	}
}

// Subject возвращает короткий заголовок уведомления (тема письма, подпись к фото)
func Subject(n model.Notification) string {
	title := ""
	if n.Payload.Session != nil {
		title = n.Payload.Session.Title
	}

	switch n.Event {
	case model.EventSessionCreated:
		return "Новое занятие: " + title
	case model.EventSessionUpdated:
		if n.Payload.Session != nil && n.Payload.Session.IsCancelled() {
			return "Занятие отменено: " + title
		}
		return "Занятие изменено: " + title
	case model.EventEnrollmentCancelled:
		return "Запись отменена: " + title
	case model.EventWaitlistPromoted:
		return "Место освободилось: " + title
	case model.EventReminderDayBefore:
		return "Завтра занятие: " + title
	case model.EventReminderHourBefore:
		return "Через час занятие: " + title
	default:
		return title
	}
}

// Message рендерит текст уведомления в HTML-разметке Telegram
func Message(n model.Notification) string {
	session := n.Payload.Session
	if session == nil {
		return html.EscapeString(Subject(n))
	}
	loc := session.DisplayLocation()

	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(Subject(n)) + "</b>\n\n")

	switch n.Event {
	case model.EventSessionCreated:
		fmt.Fprintf(&b, "🗓 %s\n", formatRecurrence(session))
		fmt.Fprintf(&b, "⏱ %s\n", FormatDuration(session.EndsAt.Sub(session.StartsAt)))
		writeOccurrences(&b, n.Payload.Occurrences, loc)

	case model.EventSessionUpdated:
		if n.Payload.Occurrence != nil {
			occ := n.Payload.Occurrence
			status := ""
			if occ.IsCancelled() {
				status = " (отменено)"
			}
			fmt.Fprintf(&b, "📅 %s%s\n", formatWindow(occ.StartsAt, occ.EndsAt, loc), status)
		} else if !session.IsCancelled() {
			fmt.Fprintf(&b, "🗓 %s\n", formatRecurrence(session))
			writeOccurrences(&b, n.Payload.Occurrences, loc)
		}

	case model.EventEnrollmentCancelled, model.EventWaitlistPromoted:
		if n.Payload.Student != nil {
			fmt.Fprintf(&b, "👤 %s\n", html.EscapeString(n.Payload.Student.FullName()))
		}
		fmt.Fprintf(&b, "📅 %s\n", formatWindow(session.StartsAt, session.EndsAt, loc))

	case model.EventReminderDayBefore, model.EventReminderHourBefore:
		if occ := n.Payload.Occurrence; occ != nil {
			fmt.Fprintf(&b, "📅 %s\n", formatWindow(occ.StartsAt, occ.EndsAt, loc))
		}
	}

	if session.Location != "" {
		fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(session.Location))
	}
	if session.MeetingURL != "" {
		fmt.Fprintf(&b, "🔗 %s\n", html.EscapeString(session.MeetingURL))
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeOccurrences(b *strings.Builder, occs []model.StudySessionOccurrence, loc *time.Location) {
	if len(occs) == 0 {
		return
	}
	b.WriteString("\n")
	for i, occ := range occs {
		if i == maxListedOccurrences {
			fmt.Fprintf(b, "… и ещё %d\n", len(occs)-maxListedOccurrences)
			break
		}
		line := formatWindow(occ.StartsAt, occ.EndsAt, loc)
		if occ.IsCancelled() {
			line = "<s>" + line + "</s>"
		}
		b.WriteString("• " + line + "\n")
	}
}

// PlainText убирает HTML-разметку из Message для текстовой версии письма
func PlainText(n model.Notification) string {
	replacer := strings.NewReplacer("<b>", "", "</b>", "", "<s>", "", "</s>", "")
	return html.UnescapeString(replacer.Replace(Message(n)))
}
