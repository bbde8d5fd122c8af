package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// telegramCaptionLimit: подписи к фото длиннее отправляются отдельным сообщением
const telegramCaptionLimit = 1024

// MessageSender - часть *bot.Bot, нужная для отправки уведомлений
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
}

// TelegramNotifier доставляет уведомления в личный чат пользователя
type TelegramNotifier struct {
	sender MessageSender
	now    func() time.Time
	logger *zap.Logger
}

func NewTelegramNotifier(sender MessageSender, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		now:    time.Now,
		logger: logger,
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// Reaches проверяет, привязал ли пользователь бота через /start
func (t *TelegramNotifier) Reaches(u model.User) bool {
	return u.TelegramID != nil
}

// Notify отправляет текст; для новой сессии прикладывает картинку недели
func (t *TelegramNotifier) Notify(ctx context.Context, n model.Notification) error {
	if n.Recipient.TelegramID == nil {
		return ErrUnreachable
	}
	chatID := *n.Recipient.TelegramID
	text := Message(n)

	if n.Event == model.EventSessionCreated && n.Payload.Session != nil && len(text) <= telegramCaptionLimit {
		sent, err := t.sendWeekImage(ctx, chatID, text, n)
		if sent {
			return nil
		}
		if err != nil {
			t.logger.Warn("Failed to send week image, falling back to text",
				zap.Int64("user_id", n.Recipient.ID),
				zap.Error(err),
			)
		}
	}

	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (t *TelegramNotifier) sendWeekImage(ctx context.Context, chatID int64, caption string, n model.Notification) (bool, error) {
	imageData, err := RenderWeek(n.Payload.Session, n.Payload.Occurrences, t.now())
	if err != nil {
		return false, fmt.Errorf("render week image: %w", err)
	}

	_, err = t.sender.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:    chatID,
		Photo:     &models.InputFileUpload{Filename: "week.png", Data: bytes.NewReader(imageData)},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return false, fmt.Errorf("send telegram photo: %w", err)
	}
	return true, nil
}
