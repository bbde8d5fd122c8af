package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
	"go.uber.org/zap"
)

// DeliveryGuard не даёт отправить одно напоминание одному получателю дважды
type DeliveryGuard interface {
	// Claim возвращает false, если ключ уже занят
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// NopGuard пропускает всё
type NopGuard struct{}

func (NopGuard) Claim(context.Context, string) (bool, error) { return true, nil }
func (NopGuard) Release(context.Context, string) error       { return nil }

// reminderLease - сколько задача принадлежит диспетчеру, взявшему её в работу.
// Зависший диспетчер не держит задачу дольше.
const reminderLease = 5 * time.Minute

// DispatchStats - итог одного прохода
type DispatchStats struct {
	Claimed   int
	Sent      int
	Cancelled int
	Failed    int
}

// ReminderService отправляет наступившие напоминания
type ReminderService struct {
	store     repository.Store
	notifier  Notifier
	guard     DeliveryGuard
	clock     Clock
	batchSize int
	logger    *zap.Logger
}

func NewReminderService(store repository.Store, notifier Notifier, guard DeliveryGuard, clock Clock, batchSize int, logger *zap.Logger) *ReminderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if guard == nil {
		guard = NopGuard{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &ReminderService{
		store:     store,
		notifier:  notifier,
		guard:     guard,
		clock:     clock,
		batchSize: batchSize,
		logger:    logger,
	}
}

// DispatchDue берёт в аренду пачку готовых задач и доставляет их вне
// транзакции. Задачи с удалённым, отменённым или уже начавшимся вхождением
// отменяются. Задача с неудачной доставкой освобождается и повторяется на
// следующем проходе.
func (s *ReminderService) DispatchDue(ctx context.Context) (DispatchStats, error) {
	var (
		stats      DispatchStats
		deliveries []delivery
	)
	now := s.clock.Now()

	err := runInTx(ctx, s.store, "claim reminders", func(tx *repository.Repositories) error {
		jobs, err := tx.Reminders.ClaimDue(ctx, now, now.Add(reminderLease), s.batchSize)
		if err != nil {
			return err
		}
		stats.Claimed = len(jobs)

		for _, job := range jobs {
			session, occurrence, err := loadTarget(ctx, tx, job)
			if err != nil {
				return err
			}

			if session == nil || occurrence == nil || session.IsCancelled() ||
				occurrence.IsCancelled() || !occurrence.StartsAt.After(now) {
				if err := tx.Reminders.MarkCancelled(ctx, job.ID); err != nil {
					return err
				}
				stats.Cancelled++
				continue
			}

			recipients, err := s.recipients(ctx, tx, session)
			if err != nil {
				return err
			}
			deliveries = append(deliveries, delivery{job: job, session: session, occurrence: occurrence, recipients: recipients})
		}

		return nil
	})
	if err != nil {
		return stats, err
	}

	reminders := s.store.Repos().Reminders
	for _, d := range deliveries {
		if !s.deliver(ctx, d.job, d.session, d.occurrence, d.recipients) {
			stats.Failed++
			if err := reminders.ReleaseClaim(ctx, d.job.ID); err != nil {
				return stats, &InfrastructureError{Op: "release reminder claim", Err: err}
			}
			continue
		}

		if err := reminders.MarkSent(ctx, d.job.ID, now); err != nil {
			return stats, &InfrastructureError{Op: "mark reminder sent", Err: err}
		}
		stats.Sent++
	}

	if stats.Claimed > 0 {
		s.logger.Info("Reminders dispatched",
			zap.Int("claimed", stats.Claimed),
			zap.Int("sent", stats.Sent),
			zap.Int("cancelled", stats.Cancelled),
			zap.Int("failed", stats.Failed),
		)
	}

	return stats, nil
}

type delivery struct {
	job        *model.ReminderJob
	session    *model.StudySession
	occurrence *model.StudySessionOccurrence
	recipients []*model.User
}

func loadTarget(ctx context.Context, tx *repository.Repositories, job *model.ReminderJob) (*model.StudySession, *model.StudySessionOccurrence, error) {
	session, err := tx.Sessions.GetByID(ctx, job.Intent.SessionID)
	if err != nil {
		return nil, nil, err
	}
	occurrence, err := tx.Occurrences.GetByID(ctx, job.Intent.OccurrenceID)
	if err != nil {
		return nil, nil, err
	}
	if occurrence != nil && occurrence.SessionID != job.Intent.SessionID {
		return session, nil, nil
	}
	return session, occurrence, nil
}

// recipients - учитель и сторона учеников
func (s *ReminderService) recipients(ctx context.Context, tx *repository.Repositories, session *model.StudySession) ([]*model.User, error) {
	audience, err := studentAudience(ctx, tx, session.ID)
	if err != nil {
		return nil, err
	}

	teacher, err := tx.Directory.GetUser(ctx, session.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	if teacher == nil {
		return audience, nil
	}

	return append([]*model.User{teacher}, audience...), nil
}

// deliver возвращает false, если хоть одна отправка не удалась
func (s *ReminderService) deliver(ctx context.Context, job *model.ReminderJob, session *model.StudySession, occurrence *model.StudySessionOccurrence, recipients []*model.User) bool {
	ok := true
	for _, recipient := range recipients {
		key := fmt.Sprintf("reminder:%s:%d", job.Key, recipient.ID)

		claimed, err := s.guard.Claim(ctx, key)
		if err != nil {
			s.logger.Warn("Delivery guard unavailable, sending anyway",
				zap.String("key", key),
				zap.Error(err),
			)
			claimed = true
		}
		if !claimed {
			continue
		}

		n := model.Notification{
			Recipient: *recipient,
			Event:     job.Intent.Kind,
			Payload:   model.Payload{Session: session, Occurrence: occurrence},
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("Failed to deliver reminder",
				zap.Int64("job_id", job.ID),
				zap.Int64("user_id", recipient.ID),
				zap.Error(err),
			)
			if err := s.guard.Release(ctx, key); err != nil {
				s.logger.Warn("Failed to release delivery guard", zap.String("key", key), zap.Error(err))
			}
			ok = false
		}
	}
	return ok
}
