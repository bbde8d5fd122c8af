package service

import (
	"context"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"go.uber.org/zap"
)

// Notifier доставляет уведомления
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// NopNotifier ничего не отправляет
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, model.Notification) error {
	return nil
}

// notifyAll отправляет уведомление каждому получателю. Ошибки только логируются:
// операция уже закоммичена.
func notifyAll(ctx context.Context, notifier Notifier, logger *zap.Logger, event model.EventKind, payload model.Payload, recipients []*model.User) {
	for _, recipient := range recipients {
		if recipient == nil {
			continue
		}
		n := model.Notification{Recipient: *recipient, Event: event, Payload: payload}
		if err := notifier.Notify(ctx, n); err != nil {
			logger.Warn("Failed to deliver notification",
				zap.String("event", string(event)),
				zap.Int64("user_id", recipient.ID),
				zap.Error(err),
			)
		}
	}
}
