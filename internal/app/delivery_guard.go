package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/config"
	"github.com/Freeeeeet/study_scheduler/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// deliveryGuardTTL перекрывает окно между напоминанием за 24ч и началом занятия
const deliveryGuardTTL = 48 * time.Hour

var _ service.DeliveryGuard = (*RedisGuard)(nil)

// RedisGuard помечает доставленные напоминания ключами с TTL
type RedisGuard struct {
	rdb    goredis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGuard подключается к Redis и проверяет соединение
func NewRedisGuard(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RedisGuard, func() error, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	return NewRedisGuardWithClient(rdb, logger), rdb.Close, nil
}

func NewRedisGuardWithClient(rdb goredis.Cmdable, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: deliveryGuardTTL, logger: logger}
}

// Claim ставит ключ через SETNX; false значит, что ключ уже занят
func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery key: %w", err)
	}
	if !ok {
		g.logger.Debug("Delivery already claimed", zap.String("key", key))
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release delivery key: %w", err)
	}
	return nil
}
