package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// Identidad sembrada en el primer arranque para que la aplicación sea usable
// antes del primer sync exitoso contra la autoridad.
const (
	seedAdminEmail    = "admin@techcorp.com"
	seedAdminPassword = "Admin123!"
)

// Store es el almacén local embebido (SQLite, driver puro Go).
// Posee la creación de esquema, el seed inicial y las primitivas de upsert;
// los repos concretos se construyen sobre él o sobre una transacción suya.
type Store struct {
	db *sql.DB
}

// Open abre (o crea) el archivo SQLite con WAL y foreign keys activas.
// Usar ":memory:" solo en tests de una conexión.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_pragma": []string{"foreign_keys(1)", "journal_mode(WAL)", "busy_timeout(5000)"},
	}.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("abrir sqlite: %w", err)
	}
	// SQLite serializa escrituras; una sola conexión evita SQLITE_BUSY en
	// los merges y mantiene válido ":memory:" en tests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// DB expone el handle para los constructores de repositorios.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close cierra la conexión.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema crea las tablas si no existen. Idempotente: seguro de llamar en
// cada arranque, nunca destruye datos existentes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		company_id    TEXT NOT NULL DEFAULT '',
		store_id      TEXT NOT NULL DEFAULT '',
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL,
		role          TEXT NOT NULL,
		is_active     INTEGER NOT NULL DEFAULT 1,
		last_login_at TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id             TEXT PRIMARY KEY,
		category_id    TEXT NOT NULL REFERENCES categories(id),
		company_id     TEXT NOT NULL DEFAULT '',
		store_id       TEXT NOT NULL DEFAULT '',
		sku            TEXT NOT NULL,
		name           TEXT NOT NULL,
		price          TEXT NOT NULL,
		cost           TEXT NOT NULL DEFAULT '0',
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		min_stock      INTEGER NOT NULL DEFAULT 0,
		is_active      INTEGER NOT NULL DEFAULT 1,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id);
	CREATE INDEX IF NOT EXISTS idx_products_low_stock ON products(stock_quantity, min_stock);

	CREATE TABLE IF NOT EXISTS customers (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES users(id),
		customer_id    TEXT NOT NULL DEFAULT '',
		store_id       TEXT NOT NULL DEFAULT '',
		subtotal       TEXT NOT NULL,
		discount       TEXT NOT NULL DEFAULT '0',
		tax            TEXT NOT NULL DEFAULT '0',
		total          TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT 'cash',
		status         TEXT NOT NULL DEFAULT 'completed',
		origin         TEXT NOT NULL DEFAULT 'remote',
		synced_at      TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sales_origin ON sales(origin, synced_at);

	CREATE TABLE IF NOT EXISTS sale_items (
		id          TEXT PRIMARY KEY,
		sale_id     TEXT NOT NULL REFERENCES sales(id),
		product_id  TEXT NOT NULL REFERENCES products(id),
		quantity    INTEGER NOT NULL,
		unit_price  TEXT NOT NULL,
		total_price TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id);

	CREATE TABLE IF NOT EXISTS stock_movements (
		id         TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		sale_id    TEXT NOT NULL DEFAULT '',
		type       TEXT NOT NULL,
		quantity   INTEGER NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements(product_id);

	CREATE TABLE IF NOT EXISTS app_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("crear esquema: %w", err)
	}
	return nil
}

// Seed siembra el bootstrap mínimo en el primer arranque (tabla users vacía):
// un super_admin local para poder iniciar sesión antes del primer sync.
// Idempotente: con datos presentes no hace nada.
func (s *Store) Seed(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return fmt.Errorf("contar usuarios: %w", err)
	}
	if n > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashear password seed: %w", err)
	}
	now := time.Now()
	admin := &entity.User{
		ID:           uuid.New().String(),
		Email:        seedAdminEmail,
		PasswordHash: string(hash),
		Name:         "Super Admin",
		Role:         entity.RoleSuperAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := NewUserRepository(s.db).Create(ctx, admin); err != nil {
		return fmt.Errorf("sembrar super admin: %w", err)
	}
	return nil
}
