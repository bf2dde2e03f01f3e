package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
)

var _ repository.CategoryRepository = (*CategoryRepo)(nil)

// CategoryRepo implementación del puerto CategoryRepository sobre SQLite.
type CategoryRepo struct {
	q querier
}

// NewCategoryRepository construye el adaptador de persistencia para categorías.
func NewCategoryRepository(q querier) *CategoryRepo {
	return &CategoryRepo{q: q}
}

// UpsertBatch inserta o sobreescribe categorías por su ID remoto.
func (r *CategoryRepo) UpsertBatch(ctx context.Context, rows []*entity.Category) (int, error) {
	query := `
		INSERT INTO categories (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			updated_at = excluded.updated_at`
	for _, c := range rows {
		if _, err := r.q.ExecContext(ctx, query, c.ID, c.Name, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt)); err != nil {
			return 0, fmt.Errorf("upsert category %s: %w", c.ID, err)
		}
	}
	return len(rows), nil
}

// FindByID obtiene una categoría. Devuelve nil, nil si no existe.
func (r *CategoryRepo) FindByID(ctx context.Context, id string) (*entity.Category, error) {
	var (
		c                    entity.Category
		createdAt, updatedAt string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// List devuelve todas las categorías ordenadas por nombre.
func (r *CategoryRepo) List(ctx context.Context) ([]*entity.Category, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var list []*entity.Category
	for rows.Next() {
		var (
			c                    entity.Category
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		list = append(list, &c)
	}
	return list, rows.Err()
}

// Count devuelve el total de categorías.
func (r *CategoryRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}
