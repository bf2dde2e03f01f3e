package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
)

var _ repository.ProductRepository = (*ProductRepo)(nil)

// ProductRepo implementación del puerto ProductRepository sobre SQLite.
type ProductRepo struct {
	q querier
}

// NewProductRepository construye el adaptador de persistencia para productos.
func NewProductRepository(q querier) *ProductRepo {
	return &ProductRepo{q: q}
}

const productColumns = `id, category_id, company_id, store_id, sku, name, price, cost, stock_quantity, min_stock, is_active, created_at, updated_at`

// UpsertBatch inserta o sobreescribe productos por su ID remoto.
// Requiere que las categorías referenciadas ya existan (orden de dependencia
// del merge: categorías antes que productos).
func (r *ProductRepo) UpsertBatch(ctx context.Context, rows []*entity.Product) (int, error) {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category_id    = excluded.category_id,
			company_id     = excluded.company_id,
			store_id       = excluded.store_id,
			sku            = excluded.sku,
			name           = excluded.name,
			price          = excluded.price,
			cost           = excluded.cost,
			stock_quantity = excluded.stock_quantity,
			min_stock      = excluded.min_stock,
			is_active      = excluded.is_active,
			updated_at     = excluded.updated_at`
	for _, p := range rows {
		_, err := r.q.ExecContext(ctx, query,
			p.ID, p.CategoryID, p.CompanyID, p.StoreID, p.SKU, p.Name,
			p.Price.String(), p.Cost.String(), p.StockQuantity, p.MinStock,
			boolToInt(p.IsActive), fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	return len(rows), nil
}

// FindByID obtiene un producto. Devuelve nil, nil si no existe.
func (r *ProductRepo) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// FindLowStock lista productos activos en o bajo su stock mínimo, filtrados
// por el alcance de la identidad (campos vacíos = sin restricción).
func (r *ProductRepo) FindLowStock(ctx context.Context, scope entity.StoreScope) ([]*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE is_active = 1 AND stock_quantity <= min_stock`
	args := []any{}
	if scope.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, scope.CompanyID)
	}
	if scope.StoreID != "" {
		query += ` AND store_id = ?`
		args = append(args, scope.StoreID)
	}
	query += ` ORDER BY stock_quantity ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()
	var list []*entity.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// AdjustStock aplica un delta a stock_quantity. Solo la ruta de movimientos
// de stock debe llamarlo.
func (r *ProductRepo) AdjustStock(ctx context.Context, productID string, delta int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + ? WHERE id = ?`,
		delta, productID,
	)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("adjust stock: producto %s no existe", productID)
	}
	return nil
}

// Count devuelve el total de productos espejados.
func (r *ProductRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func scanProduct(row rowScanner) (*entity.Product, error) {
	var (
		p                    entity.Product
		price, cost          string
		isActive             int
		createdAt, updatedAt string
	)
	err := row.Scan(
		&p.ID, &p.CategoryID, &p.CompanyID, &p.StoreID, &p.SKU, &p.Name,
		&price, &cost, &p.StockQuantity, &p.MinStock, &isActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Price = parseDecimal(price)
	p.Cost = parseDecimal(cost)
	p.IsActive = isActive != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
