package main

import (
	"flag"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/notify"
	"github.com/Freeeeeet/study_scheduler/internal/recurrence"
)

// Рендерит картинку недели для тестовой ежедневной серии, без БД и Telegram
func main() {
	out := flag.String("o", "week.png", "output file")
	tz := flag.String("tz", "Europe/Moscow", "session timezone")
	count := flag.Int("count", 5, "daily occurrences")
	flag.Parse()

	now := time.Now()
	// Начинаем с понедельника текущей недели
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for monday.Weekday() != time.Monday {
		monday = monday.AddDate(0, 0, -1)
	}

	session := &model.StudySession{
		ID:         1,
		Title:      "Algebra 9B",
		StartsAt:   monday.Add(7 * time.Hour),
		EndsAt:     monday.Add(8*time.Hour + 30*time.Minute),
		Capacity:   10,
		Timezone:   *tz,
		Status:     model.SessionStatusScheduled,
		Recurrence: recurrence.Daily(*count),
	}

	windows, err := session.Recurrence.Expand(session.StartsAt, session.EndsAt)
	if err != nil {
		fmt.Printf("Ошибка развёртки серии: %v\n", err)
		os.Exit(1)
	}

	occurrences := make([]model.StudySessionOccurrence, 0, len(windows))
	for i, w := range windows {
		status := model.OccurrenceStatusScheduled
		// Одно вхождение отменено, чтобы было видно оба цвета
		if i == 2 {
			status = model.OccurrenceStatusCancelled
		}
		occurrences = append(occurrences, model.StudySessionOccurrence{
			ID:        int64(i + 1),
			SessionID: session.ID,
			StartsAt:  w.StartsAt,
			EndsAt:    w.EndsAt,
			Status:    status,
		})
	}

	imageData, err := notify.RenderWeek(session, occurrences, now)
	if err != nil {
		fmt.Printf("Ошибка генерации изображения: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, imageData, 0644); err != nil {
		fmt.Printf("Ошибка сохранения файла: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Изображение успешно сохранено в %s\n", *out)
	fmt.Printf("📅 Неделя с %s, пояс %s\n", monday.Format("02.01.2006"), session.DisplayLocation())
	fmt.Printf("📊 Вхождений: %d\n", len(occurrences))
}
