package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
	"go.uber.org/zap"
)

type UserService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewUserService(store repository.Store, logger *zap.Logger) *UserService {
	return &UserService{
		store:  store,
		logger: logger,
	}
}

// LinkTelegram привязывает Telegram аккаунт к пользователю справочника с тем
// же username. Повторный вызов для уже привязанного аккаунта безопасен.
func (s *UserService) LinkTelegram(ctx context.Context, telegramID int64, username string) (*model.User, error) {
	repos := s.store.Repos()

	// Проверяем существует ли пользователь
	existing, err := repos.Directory.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, &InfrastructureError{Op: "get user by telegram id", Err: err}
	}
	if existing != nil {
		return existing, nil
	}

	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, &ValidationError{Fields: map[string]string{"username": "telegram username is required"}}
	}

	user, err := repos.Directory.LinkTelegram(ctx, username, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Этот Telegram аккаунт уже привязан к другому пользователю
			return nil, ErrForbidden
		}
		return nil, &InfrastructureError{Op: "link telegram", Err: err}
	}
	if user == nil {
		return nil, ErrNotFound
	}

	s.logger.Info("Telegram account linked",
		zap.Int64("user_id", user.ID),
		zap.Int64("telegram_id", telegramID),
		zap.String("username", username),
	)

	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.store.Repos().Directory.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, &InfrastructureError{Op: "get user by telegram id", Err: err}
	}
	return user, nil
}
