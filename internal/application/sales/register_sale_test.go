package sales_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pos-sync-core/internal/application/sales"
	"github.com/jhoicas/pos-sync-core/internal/domain"
	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/sqlite"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	store   *sqlite.Store
	uc      *sales.RegisterSaleUseCase
	user    *entity.User
	product *entity.Product
}

// newFixture prepara un espejo con un usuario, una categoría y un producto
// con el stock indicado.
func newFixture(t *testing.T, stock int) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))

	now := time.Now()
	user := &entity.User{
		ID: uuid.NewString(), CompanyID: "comp-1", StoreID: "store-1",
		Email: "cajero@tienda.com", PasswordHash: "hash", Name: "Cajero",
		Role: entity.RoleCashier, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, sqlite.NewUserRepository(store.DB()).Create(ctx, user))

	cat := &entity.Category{ID: uuid.NewString(), Name: "Bebidas", CreatedAt: now, UpdatedAt: now}
	_, err = sqlite.NewCategoryRepository(store.DB()).UpsertBatch(ctx, []*entity.Category{cat})
	require.NoError(t, err)

	product := &entity.Product{
		ID: uuid.NewString(), CategoryID: cat.ID, CompanyID: "comp-1", StoreID: "store-1",
		SKU: "SKU-1", Name: "Agua", Price: decimal.NewFromInt(1500),
		Cost: decimal.NewFromInt(800), StockQuantity: stock, MinStock: 1,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	_, err = sqlite.NewProductRepository(store.DB()).UpsertBatch(ctx, []*entity.Product{product})
	require.NoError(t, err)

	return &fixture{
		store:   store,
		uc:      sales.NewRegisterSaleUseCase(sqlite.NewTxRunner(store.DB()), logger.Nop()),
		user:    user,
		product: product,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestExecute_VentaLocalCompleta(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	sale, err := f.uc.Execute(ctx, f.user, sales.Input{
		PaymentMethod: "cash",
		Discount:      decimal.NewFromInt(500),
		Tax:           decimal.NewFromInt(285),
		Items:         []sales.ItemInput{{ProductID: f.product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, entity.SaleOriginLocal, sale.Origin)
	assert.Nil(t, sale.SyncedAt, "una venta local nace sin reconciliar")
	assert.Equal(t, "3000", sale.Subtotal.String(), "subtotal = precio del espejo × cantidad")
	assert.Equal(t, "2785", sale.Total.String(), "total = subtotal - descuento + impuesto")
	assert.True(t, sale.ItemsTotal().Equal(sale.Subtotal), "las líneas suman el subtotal")

	// La venta quedó persistida con sus líneas.
	got, err := sqlite.NewSaleRepository(f.store.DB()).FindByID(ctx, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)

	// El stock bajó y el movimiento de salida existe, con la venta referenciada.
	p, err := sqlite.NewProductRepository(f.store.DB()).FindByID(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.StockQuantity)

	movs, err := sqlite.NewStockMovementRepository(f.store.DB()).ListByProduct(ctx, f.product.ID)
	require.NoError(t, err)
	require.Len(t, movs, 1)
	assert.Equal(t, entity.MovementTypeOut, movs[0].Type)
	assert.Equal(t, -2, movs[0].Quantity)
	assert.Equal(t, sale.ID, movs[0].SaleID)
}

func TestExecute_StockInsuficienteNoDejaRastro(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	_, err := f.uc.Execute(ctx, f.user, sales.Input{
		PaymentMethod: "cash",
		Items:         []sales.ItemInput{{ProductID: f.product.ID, Quantity: 5}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	n, err := sqlite.NewSaleRepository(f.store.DB()).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "la venta rechazada no persiste nada")

	p, err := sqlite.NewProductRepository(f.store.DB()).FindByID(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.StockQuantity, "el stock queda intacto")
}

func TestExecute_ValidacionDeEntrada(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	_, err := f.uc.Execute(ctx, f.user, sales.Input{PaymentMethod: "cash"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "una venta sin líneas es inválida")

	_, err = f.uc.Execute(ctx, f.user, sales.Input{
		PaymentMethod: "cash",
		Items:         []sales.ItemInput{{ProductID: f.product.ID, Quantity: 0}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "cantidad cero es inválida")
}

func TestExecute_ProductoInexistente(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	_, err := f.uc.Execute(ctx, f.user, sales.Input{
		PaymentMethod: "cash",
		Items:         []sales.ItemInput{{ProductID: "no-existe", Quantity: 1}},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecute_QuedaPendienteDeSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	sale, err := f.uc.Execute(ctx, f.user, sales.Input{
		PaymentMethod: "card",
		Items:         []sales.ItemInput{{ProductID: f.product.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	pending, err := sqlite.NewSaleRepository(f.store.DB()).ListPendingSync(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sale.ID, pending[0].ID, "la venta local aparece como pendiente de reconciliar")
}
