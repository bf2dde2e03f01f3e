package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jhoicas/pos-sync-core/internal/application/sales"
	appsync "github.com/jhoicas/pos-sync-core/internal/application/sync"
	"github.com/jhoicas/pos-sync-core/internal/domain"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
)

// Ensure TxRunner implements appsync.TxRunner and sales.TxRunner.
var _ appsync.TxRunner = (*TxRunner)(nil)
var _ sales.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción SQLite.
// Es la única frontera de escritura multi-fila: todo merge de sync y toda
// venta offline pasan por aquí; o se confirma todo o no se ve nada.
type TxRunner struct {
	db *sql.DB
}

// NewTxRunner construye el runner sobre el handle del Store.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

// RunSync inicia una transacción con todos los repos de espejo atados a la tx,
// más el estado durable (para que last_sync_at avance atómicamente con el
// merge). Un error de restricción se traduce a ErrSyncConflict.
func (r *TxRunner) RunSync(ctx context.Context, fn func(
	users repository.UserRepository,
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	customers repository.CustomerRepository,
	saleRepo repository.SaleRepository,
	state repository.StateRepository,
) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = fn(
		NewUserRepository(tx),
		NewCategoryRepository(tx),
		NewProductRepository(tx),
		NewCustomerRepository(tx),
		NewSaleRepository(tx),
		NewStateRepository(tx),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrSyncConflict, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunSale inicia una transacción para registrar una venta de origen local:
// cabecera + líneas + movimientos de stock + deltas de stock, atómicos.
func (r *TxRunner) RunSale(ctx context.Context, fn func(
	saleRepo repository.SaleRepository,
	products repository.ProductRepository,
	movements repository.StockMovementRepository,
) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(NewSaleRepository(tx), NewProductRepository(tx), NewStockMovementRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
