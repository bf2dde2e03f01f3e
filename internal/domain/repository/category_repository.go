package repository

import (
	"context"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// CategoryRepository puerto de persistencia para categorías espejadas.
type CategoryRepository interface {
	UpsertBatch(ctx context.Context, rows []*entity.Category) (int, error)
	FindByID(ctx context.Context, id string) (*entity.Category, error)
	List(ctx context.Context) ([]*entity.Category, error)
	Count(ctx context.Context) (int, error)
}
