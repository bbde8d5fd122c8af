package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/service"
	"go.uber.org/zap"
)

// ReminderSource - то, что диспетчер вызывает на каждом тике
type ReminderSource interface {
	DispatchDue(ctx context.Context) (service.DispatchStats, error)
}

// ReminderDispatcher периодически отправляет наступившие напоминания
type ReminderDispatcher struct {
	reminders ReminderSource
	interval  time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	started   atomic.Bool
	done      chan struct{}
}

// NewReminderDispatcher создаёт новый диспетчер
func NewReminderDispatcher(reminders ReminderSource, interval time.Duration, logger *zap.Logger) *ReminderDispatcher {
	return &ReminderDispatcher{
		reminders: reminders,
		interval:  interval,
		logger:    logger,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start запускает фоновую задачу
func (d *ReminderDispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	d.logger.Info("Starting reminder dispatcher", zap.Duration("interval", d.interval))
	go d.run(ctx)
}

// Stop останавливает задачу и ждёт завершения текущего прохода
func (d *ReminderDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("Stopping reminder dispatcher")
		close(d.stopChan)
	})
	if d.started.Load() {
		<-d.done
	}
}

func (d *ReminderDispatcher) run(ctx context.Context) {
	defer close(d.done)

	// Первый запуск сразу при старте
	d.dispatch(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.dispatch(ctx)
		case <-d.stopChan:
			d.logger.Info("Reminder dispatcher stopped")
			return
		case <-ctx.Done():
			d.logger.Info("Reminder dispatcher cancelled")
			return
		}
	}
}

// dispatch выбирает партии, пока они приходят полными
func (d *ReminderDispatcher) dispatch(ctx context.Context) {
	for {
		stats, err := d.reminders.DispatchDue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Error("Failed to dispatch reminders", zap.Error(err))
			}
			return
		}
		// Повтор только если что-то продвинулось, иначе упавшие задачи крутились бы в цикле
		if stats.Claimed == 0 || stats.Sent+stats.Cancelled == 0 || stats.Failed > 0 {
			return
		}

		select {
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}
