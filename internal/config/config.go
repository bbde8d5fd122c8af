package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`
	DBDSN         string `mapstructure:"DB_DSN"`
	Environment   string `mapstructure:"ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`

	// LockTimeout ограничивает ожидание блокировки строки внутри транзакции
	LockTimeout time.Duration `mapstructure:"LOCK_TIMEOUT"`

	ReminderPollInterval time.Duration `mapstructure:"REMINDER_POLL_INTERVAL"`
	ReminderBatchSize    int           `mapstructure:"REMINDER_BATCH_SIZE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	MailFrom       string `mapstructure:"MAIL_FROM"`
}

var keys = []string{
	"TELEGRAM_TOKEN", "DB_DSN", "ENV", "LOG_LEVEL", "LOCK_TIMEOUT",
	"REMINDER_POLL_INTERVAL", "REMINDER_BATCH_SIZE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"SENDGRID_API_KEY", "MAIL_FROM",
}

// Load читает конфигурацию из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOCK_TIMEOUT", 5*time.Second)
	v.SetDefault("REMINDER_POLL_INTERVAL", 30*time.Second)
	v.SetDefault("REMINDER_BATCH_SIZE", 25)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MAIL_FROM", "noreply@localhost")

	v.AutomaticEnv()
	// Unmarshal видит только известные viper ключи, поэтому связываем их явно
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	return v
}

// FromViper собирает Config из готового viper и проверяет его
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет обязательные поля
func (c *Config) Validate() error {
	var errs []error

	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required but not set"))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT must be positive"))
	}
	if c.ReminderPollInterval <= 0 {
		errs = append(errs, errors.New("REMINDER_POLL_INTERVAL must be positive"))
	}
	if c.ReminderBatchSize <= 0 {
		errs = append(errs, errors.New("REMINDER_BATCH_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c *Config) EmailEnabled() bool {
	return c.SendGridAPIKey != ""
}
