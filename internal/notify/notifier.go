// Package notify доставляет уведомления пользователям: Telegram, email.
package notify

import (
	"context"
	"errors"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"go.uber.org/zap"
)

// ErrUnreachable - у получателя нет адреса для канала
var ErrUnreachable = errors.New("recipient unreachable")

// Channel - один способ доставки
type Channel interface {
	Name() string
	Reaches(u model.User) bool
	Notify(ctx context.Context, n model.Notification) error
}

// Fanout пробует каналы по порядку и останавливается на первом успешном.
// Получатель без единого канала пропускается с записью в лог: повторная
// попытка ему ничего не даст.
type Fanout struct {
	channels []Channel
	logger   *zap.Logger
}

func NewFanout(logger *zap.Logger, channels ...Channel) *Fanout {
	return &Fanout{channels: channels, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, ch := range f.channels {
		if !ch.Reaches(n.Recipient) {
			continue
		}

		err := ch.Notify(ctx, n)
		if err == nil {
			return nil
		}
		f.logger.Warn("Channel delivery failed",
			zap.String("channel", ch.Name()),
			zap.Int64("user_id", n.Recipient.ID),
			zap.String("event", string(n.Event)),
			zap.Error(err),
		)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	f.logger.Info("No delivery channel for recipient",
		zap.Int64("user_id", n.Recipient.ID),
		zap.String("event", string(n.Event)),
	)
	return nil
}
