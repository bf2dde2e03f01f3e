package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
)

var _ repository.SaleRepository = (*SaleRepo)(nil)

// SaleRepo implementación del puerto SaleRepository sobre SQLite.
type SaleRepo struct {
	q querier
}

// NewSaleRepository construye el adaptador de persistencia para ventas.
func NewSaleRepository(q querier) *SaleRepo {
	return &SaleRepo{q: q}
}

const saleColumns = `id, user_id, customer_id, store_id, subtotal, discount, tax, total, payment_method, status, origin, synced_at, created_at, updated_at`

// Create persiste una venta de origen local con sus líneas.
// Debe llamarse dentro de la transacción de venta (RunSale).
func (r *SaleRepo) Create(ctx context.Context, s *entity.Sale) error {
	query := `
		INSERT INTO sales (` + saleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		s.ID, s.UserID, s.CustomerID, s.StoreID,
		s.Subtotal.String(), s.Discount.String(), s.Tax.String(), s.Total.String(),
		s.PaymentMethod, s.Status, s.Origin, fmtTimePtr(s.SyncedAt),
		fmtTime(s.CreatedAt), fmtTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return r.insertItems(ctx, s.ID, s.Items)
}

// UpsertBatch espeja ventas remotas: cabecera y luego líneas de cada venta,
// de modo que sale_id sea satisfacible dentro del lote.
func (r *SaleRepo) UpsertBatch(ctx context.Context, rows []*entity.Sale) (int, error) {
	query := `
		INSERT INTO sales (` + saleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id        = excluded.user_id,
			customer_id    = excluded.customer_id,
			store_id       = excluded.store_id,
			subtotal       = excluded.subtotal,
			discount       = excluded.discount,
			tax            = excluded.tax,
			total          = excluded.total,
			payment_method = excluded.payment_method,
			status         = excluded.status,
			origin         = excluded.origin,
			synced_at      = excluded.synced_at,
			updated_at     = excluded.updated_at`
	itemQuery := `
		INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, total_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quantity    = excluded.quantity,
			unit_price  = excluded.unit_price,
			total_price = excluded.total_price`
	for _, s := range rows {
		_, err := r.q.ExecContext(ctx, query,
			s.ID, s.UserID, s.CustomerID, s.StoreID,
			s.Subtotal.String(), s.Discount.String(), s.Tax.String(), s.Total.String(),
			s.PaymentMethod, s.Status, s.Origin, fmtTimePtr(s.SyncedAt),
			fmtTime(s.CreatedAt), fmtTime(s.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("upsert sale %s: %w", s.ID, err)
		}
		for _, it := range s.Items {
			_, err := r.q.ExecContext(ctx, itemQuery,
				it.ID, s.ID, it.ProductID, it.Quantity,
				it.UnitPrice.String(), it.TotalPrice.String(), fmtTime(it.CreatedAt),
			)
			if err != nil {
				return 0, fmt.Errorf("upsert sale item %s: %w", it.ID, err)
			}
		}
	}
	return len(rows), nil
}

// FindByID obtiene una venta con sus líneas. Devuelve nil, nil si no existe.
func (r *SaleRepo) FindByID(ctx context.Context, id string) (*entity.Sale, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	items, err := r.itemsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Items = items
	return s, nil
}

// ListPendingSync lista ventas de origen local aún no reconciliadas.
func (r *SaleRepo) ListPendingSync(ctx context.Context) ([]*entity.Sale, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE origin = ? AND synced_at IS NULL ORDER BY created_at ASC`,
		entity.SaleOriginLocal,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending sales: %w", err)
	}
	defer rows.Close()
	var list []*entity.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// MarkSynced marca ventas locales como reconciliadas con la autoridad.
func (r *SaleRepo) MarkSynced(ctx context.Context, ids []string, at time.Time) error {
	for _, id := range ids {
		_, err := r.q.ExecContext(ctx,
			`UPDATE sales SET synced_at = ?, updated_at = ? WHERE id = ?`,
			fmtTime(at), fmtTime(at), id,
		)
		if err != nil {
			return fmt.Errorf("mark sale synced %s: %w", id, err)
		}
	}
	return nil
}

// Count devuelve el total de ventas.
func (r *SaleRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sales: %w", err)
	}
	return n, nil
}

func (r *SaleRepo) insertItems(ctx context.Context, saleID string, items []entity.SaleItem) error {
	query := `
		INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, total_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, it := range items {
		_, err := r.q.ExecContext(ctx, query,
			it.ID, saleID, it.ProductID, it.Quantity,
			it.UnitPrice.String(), it.TotalPrice.String(), fmtTime(it.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}
	return nil
}

func (r *SaleRepo) itemsFor(ctx context.Context, saleID string) ([]entity.SaleItem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, sale_id, product_id, quantity, unit_price, total_price, created_at
		 FROM sale_items WHERE sale_id = ? ORDER BY created_at ASC`, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()
	var items []entity.SaleItem
	for rows.Next() {
		var (
			it                    entity.SaleItem
			unitPrice, totalPrice string
			createdAt             string
		)
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &unitPrice, &totalPrice, &createdAt); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		it.UnitPrice = parseDecimal(unitPrice)
		it.TotalPrice = parseDecimal(totalPrice)
		it.CreatedAt = parseTime(createdAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanSale(row rowScanner) (*entity.Sale, error) {
	var (
		s                              entity.Sale
		subtotal, discount, tax, total string
		syncedAt                       sql.NullString
		createdAt, updatedAt           string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.CustomerID, &s.StoreID,
		&subtotal, &discount, &tax, &total,
		&s.PaymentMethod, &s.Status, &s.Origin, &syncedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Subtotal = parseDecimal(subtotal)
	s.Discount = parseDecimal(discount)
	s.Tax = parseDecimal(tax)
	s.Total = parseDecimal(total)
	s.SyncedAt = parseTimePtr(syncedAt)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}
