package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implements Store on top of a pgx pool.
type PgStore struct {
	runner *base.TxRunner
	repos  *Repositories
}

var _ Store = (*PgStore)(nil)

// NewPgStore создаёт хранилище поверх пула соединений
func NewPgStore(pool *pgxpool.Pool, lockTimeout time.Duration) *PgStore {
	return &PgStore{
		runner: base.NewTxRunner(pool, lockTimeout),
		repos:  bind(pool),
	}
}

// Repos returns pool-bound repositories.
func (s *PgStore) Repos() *Repositories {
	return s.repos
}

// InTx runs fn inside one transaction.
func (s *PgStore) InTx(ctx context.Context, fn func(tx *Repositories) error) error {
	return s.runner.Run(ctx, func(tx pgx.Tx) error {
		return fn(bind(tx))
	})
}

func bind(q base.Querier) *Repositories {
	return &Repositories{
		Sessions:    NewSessionRepository(q),
		Occurrences: NewOccurrenceRepository(q),
		Enrollments: NewEnrollmentRepository(q),
		Directory:   NewDirectoryRepository(q),
		Reminders:   NewReminderRepository(q),
	}
}
