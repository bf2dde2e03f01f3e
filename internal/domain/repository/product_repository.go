package repository

import (
	"context"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// ProductRepository puerto de persistencia para productos espejados.
type ProductRepository interface {
	UpsertBatch(ctx context.Context, rows []*entity.Product) (int, error)
	FindByID(ctx context.Context, id string) (*entity.Product, error)
	// FindLowStock lista productos activos en o bajo su stock mínimo, dentro
	// del alcance de la identidad (tienda, company o global según rol).
	FindLowStock(ctx context.Context, scope entity.StoreScope) ([]*entity.Product, error)
	// AdjustStock aplica un delta a stock_quantity. Solo debe llamarse desde
	// la ruta de movimientos de stock.
	AdjustStock(ctx context.Context, productID string, delta int) error
	Count(ctx context.Context) (int, error)
}
