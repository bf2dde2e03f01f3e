package repository

import (
	"context"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// CustomerRepository puerto de persistencia para clientes espejados.
type CustomerRepository interface {
	UpsertBatch(ctx context.Context, rows []*entity.Customer) (int, error)
	FindByID(ctx context.Context, id string) (*entity.Customer, error)
	Count(ctx context.Context) (int, error)
}
