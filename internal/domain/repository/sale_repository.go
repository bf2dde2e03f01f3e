package repository

import (
	"context"
	"time"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// SaleRepository puerto de persistencia para ventas (cabecera + líneas).
type SaleRepository interface {
	// Create persiste una venta de origen local con sus líneas.
	Create(ctx context.Context, s *entity.Sale) error
	FindByID(ctx context.Context, id string) (*entity.Sale, error)
	// UpsertBatch espeja ventas remotas: cabeceras primero, líneas después,
	// para que las referencias sale_id sean satisfacibles dentro del lote.
	UpsertBatch(ctx context.Context, rows []*entity.Sale) (int, error)
	// ListPendingSync lista ventas de origen local aún no reconciliadas.
	ListPendingSync(ctx context.Context) ([]*entity.Sale, error)
	MarkSynced(ctx context.Context, ids []string, at time.Time) error
	Count(ctx context.Context) (int, error)
}
