package handlers

import (
	"context"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/service"
	"go.uber.org/zap"
)

// UserDirectory - привязка Telegram аккаунтов к справочнику
type UserDirectory interface {
	LinkTelegram(ctx context.Context, telegramID int64, username string) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

// ScheduleReader - чтение сессий учителя
type ScheduleReader interface {
	ListForTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.StudySession, error)
	Get(ctx context.Context, sessionID int64) (*model.StudySession, []*model.StudySessionOccurrence, error)
}

// RosterReader - состав сессии для учителя
type RosterReader interface {
	Roster(ctx context.Context, actor model.Actor, sessionID int64) (*model.StudySession, []service.RosterEntry, error)
}

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	users    UserDirectory
	schedule ScheduleReader
	roster   RosterReader
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(users UserDirectory, schedule ScheduleReader, roster RosterReader, logger *zap.Logger) *Handlers {
	return &Handlers{
		users:    users,
		schedule: schedule,
		roster:   roster,
		now:      time.Now,
		logger:   logger,
	}
}
