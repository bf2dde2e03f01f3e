package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
)

var _ repository.CustomerRepository = (*CustomerRepo)(nil)

// CustomerRepo implementación del puerto CustomerRepository sobre SQLite.
type CustomerRepo struct {
	q querier
}

// NewCustomerRepository construye el adaptador de persistencia para clientes.
func NewCustomerRepository(q querier) *CustomerRepo {
	return &CustomerRepo{q: q}
}

// UpsertBatch inserta o sobreescribe clientes por su ID remoto.
func (r *CustomerRepo) UpsertBatch(ctx context.Context, rows []*entity.Customer) (int, error) {
	query := `
		INSERT INTO customers (id, name, email, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			email      = excluded.email,
			phone      = excluded.phone,
			updated_at = excluded.updated_at`
	for _, c := range rows {
		_, err := r.q.ExecContext(ctx, query,
			c.ID, c.Name, c.Email, c.Phone, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("upsert customer %s: %w", c.ID, err)
		}
	}
	return len(rows), nil
}

// FindByID obtiene un cliente. Devuelve nil, nil si no existe.
func (r *CustomerRepo) FindByID(ctx context.Context, id string) (*entity.Customer, error) {
	var (
		c                    entity.Customer
		createdAt, updatedAt string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, email, phone, created_at, updated_at FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// Count devuelve el total de clientes espejados.
func (r *CustomerRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count customers: %w", err)
	}
	return n, nil
}
