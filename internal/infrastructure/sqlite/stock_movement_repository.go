package sqlite

import (
	"context"
	"fmt"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
)

var _ repository.StockMovementRepository = (*StockMovementRepo)(nil)

// StockMovementRepo implementación del puerto StockMovementRepository sobre SQLite.
type StockMovementRepo struct {
	q querier
}

// NewStockMovementRepository construye el adaptador de persistencia para movimientos.
func NewStockMovementRepository(q querier) *StockMovementRepo {
	return &StockMovementRepo{q: q}
}

// Create persiste un movimiento. El ajuste de stock_quantity lo hace el caso
// de uso dentro de la misma transacción vía ProductRepository.AdjustStock.
func (r *StockMovementRepo) Create(ctx context.Context, m *entity.StockMovement) error {
	query := `
		INSERT INTO stock_movements (id, product_id, sale_id, type, quantity, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		m.ID, m.ProductID, m.SaleID, m.Type, m.Quantity, m.Reason, m.CreatedBy, fmtTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

// ListByProduct lista los movimientos de un producto, más recientes primero.
func (r *StockMovementRepo) ListByProduct(ctx context.Context, productID string) ([]*entity.StockMovement, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, product_id, sale_id, type, quantity, reason, created_by, created_at
		 FROM stock_movements WHERE product_id = ? ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()
	var list []*entity.StockMovement
	for rows.Next() {
		var (
			m         entity.StockMovement
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.SaleID, &m.Type, &m.Quantity, &m.Reason, &m.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		list = append(list, &m)
	}
	return list, rows.Err()
}
