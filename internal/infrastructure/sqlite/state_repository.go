package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo implementación del puerto StateRepository sobre la tabla app_state.
type StateRepo struct {
	q querier
}

// NewStateRepository construye el adaptador del estado durable de la aplicación.
func NewStateRepository(q querier) *StateRepo {
	return &StateRepo{q: q}
}

// Get lee una clave. ok=false cuando la clave no existe.
func (r *StateRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.q.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, true, nil
}

// Set escribe (o sobreescribe) una clave.
func (r *StateRepo) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO app_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at`
	if _, err := r.q.ExecContext(ctx, query, key, value, fmtTime(time.Now())); err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Delete elimina una clave (no-op si no existe).
func (r *StateRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM app_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}
