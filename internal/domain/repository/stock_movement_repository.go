package repository

import (
	"context"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// StockMovementRepository puerto de persistencia para movimientos de stock.
type StockMovementRepository interface {
	Create(ctx context.Context, m *entity.StockMovement) error
	ListByProduct(ctx context.Context, productID string) ([]*entity.StockMovement, error)
}
