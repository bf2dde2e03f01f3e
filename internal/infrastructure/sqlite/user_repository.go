package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

// UserRepo implementación del puerto UserRepository sobre SQLite.
type UserRepo struct {
	q querier
}

// NewUserRepository construye el adaptador de persistencia para identidades.
// Acepta *sql.DB o *sql.Tx (repos atados a la transacción de sync).
func NewUserRepository(q querier) *UserRepo {
	return &UserRepo{q: q}
}

const userColumns = `id, company_id, store_id, email, password_hash, name, role, is_active, last_login_at, created_at, updated_at`

// Create persiste una nueva identidad (seed o registro local).
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		u.ID, u.CompanyID, u.StoreID, u.Email, u.PasswordHash, u.Name, string(u.Role),
		boolToInt(u.IsActive), fmtTimePtr(u.LastLoginAt), fmtTime(u.CreatedAt), fmtTime(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %s: %w", u.Email, err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByID obtiene una identidad por ID. Devuelve nil, nil si no existe.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByEmail obtiene una identidad por email (único). Devuelve nil, nil si no existe.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email)
}

func (r *UserRepo) findOne(ctx context.Context, query string, args ...any) (*entity.User, error) {
	row := r.q.QueryRowContext(ctx, query, args...)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpsertBatch inserta o sobreescribe identidades por su ID remoto.
// Cualquier violación de restricción aborta el lote completo.
func (r *UserRepo) UpsertBatch(ctx context.Context, rows []*entity.User) (int, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id    = excluded.company_id,
			store_id      = excluded.store_id,
			email         = excluded.email,
			password_hash = excluded.password_hash,
			name          = excluded.name,
			role          = excluded.role,
			is_active     = excluded.is_active,
			last_login_at = excluded.last_login_at,
			updated_at    = excluded.updated_at`
	for _, u := range rows {
		_, err := r.q.ExecContext(ctx, query,
			u.ID, u.CompanyID, u.StoreID, u.Email, u.PasswordHash, u.Name, string(u.Role),
			boolToInt(u.IsActive), fmtTimePtr(u.LastLoginAt), fmtTime(u.CreatedAt), fmtTime(u.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("upsert user %s: %w", u.ID, err)
		}
	}
	return len(rows), nil
}

// Count devuelve el total de identidades espejadas.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// TouchLastLogin actualiza la marca del último login.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		fmtTime(at), fmtTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// VerifyCredential compara la credencial contra el hash bcrypt espejado.
// Devuelve nil sin error cuando no hay coincidencia o la cuenta está inactiva:
// el verificador de credenciales decide el error visible al usuario.
func (r *UserRepo) VerifyCredential(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		u         entity.User
		role      string
		isActive  int
		lastLogin sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&u.ID, &u.CompanyID, &u.StoreID, &u.Email, &u.PasswordHash, &u.Name, &role,
		&isActive, &lastLogin, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = entity.Role(role)
	u.IsActive = isActive != 0
	u.LastLoginAt = parseTimePtr(lastLogin)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
