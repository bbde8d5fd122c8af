package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/Freeeeeet/study_scheduler/internal/app"
	"github.com/Freeeeeet/study_scheduler/internal/config"
	"github.com/Freeeeeet/study_scheduler/internal/controller"
	"github.com/Freeeeeet/study_scheduler/internal/notify"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
	"github.com/Freeeeeet/study_scheduler/internal/service"
	"github.com/Freeeeeet/study_scheduler/migrations"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting study scheduler",
		zap.String("environment", cfg.Environment),
		zap.Bool("telegram", cfg.TelegramEnabled()),
		zap.Bool("email", cfg.EmailEnabled()),
		zap.Bool("redis", cfg.RedisEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Application stopped with error", zap.Error(err))
	}

	logger.Info("Application stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		migrator.Close()
		return err
	}
	migrator.Close()

	store := repository.NewPgStore(pool, cfg.LockTimeout)

	// Каналы доставки: Telegram в приоритете, email как запасной
	var (
		channels []notify.Channel
		tgBot    *bot.Bot
	)
	if cfg.TelegramEnabled() {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
		channels = append(channels, notify.NewTelegramNotifier(tgBot, logger))
	}
	if cfg.EmailEnabled() {
		channels = append(channels, notify.NewEmailNotifier(cfg.SendGridAPIKey, cfg.MailFrom, logger))
	}
	notifier := notify.NewFanout(logger, channels...)

	var guard service.DeliveryGuard = service.NopGuard{}
	if cfg.RedisEnabled() {
		redisGuard, closeRedis, err := app.NewRedisGuard(ctx, cfg, logger)
		if err != nil {
			// Без Redis напоминания всё равно уходят, теряется только защита от дублей
			logger.Warn("Redis unavailable, delivery de-duplication disabled", zap.Error(err))
		} else {
			guard = redisGuard
			defer closeRedis()
		}
	}

	conflicts := service.NewConflictDetector()
	planner := service.NewReminderPlanner(service.SystemClock{})
	scheduler := service.NewSessionScheduler(store, conflicts, planner, notifier, logger)
	enrollments := service.NewEnrollmentManager(store, notifier, logger)
	users := service.NewUserService(store, logger)
	reminders := service.NewReminderService(store, notifier, guard, service.SystemClock{}, cfg.ReminderBatchSize, logger)

	dispatcher := app.NewReminderDispatcher(reminders, cfg.ReminderPollInterval, logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	if tgBot == nil {
		logger.Info("Telegram token not set, running reminder dispatcher only")
		<-ctx.Done()
		return nil
	}

	botController := controller.NewBotController(tgBot, users, scheduler, enrollments, logger)
	if err := botController.RegisterHandlers(ctx); err != nil {
		return err
	}

	return botController.Start(ctx)
}
