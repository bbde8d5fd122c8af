package service

import (
	"context"

	"github.com/Freeeeeet/study_scheduler/internal/repository"
)

// runInTx выполняет fn в одной транзакции. Доменные ошибки проходят как есть,
// остальные оборачиваются в *InfrastructureError с op.
func runInTx(ctx context.Context, store repository.Store, op string, fn func(tx *repository.Repositories) error) error {
	err := store.InTx(ctx, fn)
	if err == nil || isDomain(err) || IsInfrastructure(err) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}
