package sync_test

import (
	"context"
	"errors"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsync "github.com/jhoicas/pos-sync-core/internal/application/sync"
	"github.com/jhoicas/pos-sync-core/internal/domain"
	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/authority"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/sqlite"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type fakeTokens struct {
	token string
	ok    bool
}

func (f *fakeTokens) Token() (string, bool) { return f.token, f.ok }

type fakeHealth struct {
	mu        stdsync.Mutex
	reachable int
	degraded  int
}

func (f *fakeHealth) MarkReachable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reachable++
}

func (f *fakeHealth) MarkDegraded(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degraded++
}

type fakePuller struct {
	mu    stdsync.Mutex
	snap  *authority.Snapshot
	err   error
	calls int
	gate  chan struct{} // si no es nil, PullAll bloquea hasta que se cierre
}

func (f *fakePuller) PullAll(ctx context.Context, token string) (*authority.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakePuller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	store  *sqlite.Store
	engine *appsync.Engine
	puller *fakePuller
	health *fakeHealth
	state  repository.StateRepository
}

func newFixture(t *testing.T, puller *fakePuller, throttle time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))

	state := sqlite.NewStateRepository(store.DB())
	health := &fakeHealth{}
	engine := appsync.NewEngine(
		sqlite.NewTxRunner(store.DB()),
		puller,
		&fakeTokens{token: "tok", ok: true},
		health,
		state,
		throttle,
		logger.Nop(),
	)
	return &fixture{store: store, engine: engine, puller: puller, health: health, state: state}
}

// snapshotBase arma un snapshot mínimo consistente: una categoría, un
// producto, un usuario, un cliente y una venta que los referencia.
func snapshotBase() *authority.Snapshot {
	now := time.Now()
	userID := uuid.NewString()
	catID := uuid.NewString()
	prodID := uuid.NewString()
	saleID := uuid.NewString()
	return &authority.Snapshot{
		Users: []*entity.User{{
			ID: userID, Email: "ana@tienda.com", PasswordHash: "hash",
			Name: "Ana", Role: entity.RoleCashier, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}},
		Categories: []*entity.Category{{ID: catID, Name: "Bebidas", CreatedAt: now, UpdatedAt: now}},
		Products: []*entity.Product{{
			ID: prodID, CategoryID: catID, SKU: "SKU-1", Name: "Agua",
			Price: decimal.NewFromInt(1500), StockQuantity: 10, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}},
		Customers: []*entity.Customer{{ID: uuid.NewString(), Name: "Cliente", CreatedAt: now, UpdatedAt: now}},
		Sales: []*entity.Sale{{
			ID: saleID, UserID: userID, Subtotal: decimal.NewFromInt(1500),
			Total: decimal.NewFromInt(1500), Status: entity.SaleStatusCompleted,
			Origin: entity.SaleOriginRemote, CreatedAt: now, UpdatedAt: now,
			Items: []entity.SaleItem{{
				ID: uuid.NewString(), SaleID: saleID, ProductID: prodID,
				Quantity: 1, UnitPrice: decimal.NewFromInt(1500),
				TotalPrice: decimal.NewFromInt(1500), CreatedAt: now,
			}},
		}},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestSyncAll_MergeCompleto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakePuller{snap: snapshotBase()}, time.Hour)

	res, err := f.engine.SyncAll(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.Equal(t, 1, res.Counts["categories"])
	assert.Equal(t, 1, res.Counts["products"])
	assert.Equal(t, 1, res.Counts["users"])
	assert.Equal(t, 1, res.Counts["customers"])
	assert.Equal(t, 1, res.Counts["sales"])

	// El espejo quedó poblado y la marca de sync es durable.
	n, err := sqlite.NewProductRepository(f.store.DB()).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, ok, err := f.state.Get(ctx, repository.StateKeyLastSyncAt)
	require.NoError(t, err)
	require.True(t, ok, "last_sync_at debe persistir junto con el merge")
	_, err = time.Parse(time.RFC3339Nano, raw)
	require.NoError(t, err)

	assert.Equal(t, 1, f.health.reachable, "un pull exitoso es evidencia de salud")
}

func TestSyncAll_ThrottleDentroDeVentana(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakePuller{snap: snapshotBase()}, time.Hour)

	first, err := f.engine.SyncAll(ctx, false)
	require.NoError(t, err)
	require.True(t, first.Synced)

	second, err := f.engine.SyncAll(ctx, false)
	require.NoError(t, err)
	assert.False(t, second.Synced, "dentro de la ventana el sync no forzado es no-op")
	assert.Equal(t, 1, f.puller.callCount(), "solo hubo un pull")

	forced, err := f.engine.SyncAll(ctx, true)
	require.NoError(t, err)
	assert.True(t, forced.Synced, "force salta el throttle")
	assert.Equal(t, 2, f.puller.callCount())
}

func TestSyncAll_SinSesion(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	engine := appsync.NewEngine(
		sqlite.NewTxRunner(store.DB()),
		&fakePuller{snap: snapshotBase()},
		&fakeTokens{ok: false},
		&fakeHealth{},
		sqlite.NewStateRepository(store.DB()),
		time.Hour,
		logger.Nop(),
	)

	_, err = engine.SyncAll(ctx, true)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestSyncAll_FalloDeRedDegradaSalud(t *testing.T) {
	ctx := context.Background()
	netErr := &authority.RequestError{Op: "pull_all", Err: errors.New("connection refused")}
	f := newFixture(t, &fakePuller{err: netErr}, time.Hour)

	_, err := f.engine.SyncAll(ctx, true)
	require.Error(t, err)
	assert.Equal(t, 1, f.health.degraded)
	assert.Equal(t, 0, f.health.reachable)
}

func TestSyncAll_ViolacionDejaEspejoIntacto(t *testing.T) {
	ctx := context.Background()
	good := snapshotBase()
	f := newFixture(t, &fakePuller{snap: good}, time.Hour)

	_, err := f.engine.SyncAll(ctx, true)
	require.NoError(t, err)

	productsBefore, err := sqlite.NewProductRepository(f.store.DB()).Count(ctx)
	require.NoError(t, err)
	rawBefore, _, err := f.state.Get(ctx, repository.StateKeyLastSyncAt)
	require.NoError(t, err)

	// Segundo snapshot con una venta que referencia un usuario inexistente:
	// el FK aborta el merge completo.
	bad := snapshotBase()
	bad.Users[0].Email = "otra@tienda.com" // evitar el choque UNIQUE de email
	bad.Sales[0].UserID = "usuario-fantasma"
	f.puller.mu.Lock()
	f.puller.snap = bad
	f.puller.mu.Unlock()

	_, err = f.engine.SyncAll(ctx, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSyncConflict)

	productsAfter, err := sqlite.NewProductRepository(f.store.DB()).Count(ctx)
	require.NoError(t, err)
	// El segundo snapshot traía un producto nuevo que NO debe haber quedado.
	assert.Equal(t, productsBefore, productsAfter, "el merge abortado no deja filas parciales")

	rawAfter, _, err := f.state.Get(ctx, repository.StateKeyLastSyncAt)
	require.NoError(t, err)
	assert.Equal(t, rawBefore, rawAfter, "la marca de sync tampoco avanza en un merge abortado")
}

func TestSyncAll_ReconciliaVentaLocal(t *testing.T) {
	ctx := context.Background()
	snap := snapshotBase()
	f := newFixture(t, &fakePuller{snap: snap}, time.Hour)

	// Primer sync para poblar usuarios (FK de la venta local).
	_, err := f.engine.SyncAll(ctx, true)
	require.NoError(t, err)

	// Venta local pendiente con un ID que la autoridad ya conoce en el
	// siguiente snapshot: quedó reconciliada.
	saleRepo := sqlite.NewSaleRepository(f.store.DB())
	now := time.Now()
	localSale := &entity.Sale{
		ID:        uuid.NewString(),
		UserID:    snap.Users[0].ID,
		Subtotal:  decimal.NewFromInt(3000),
		Total:     decimal.NewFromInt(3000),
		Status:    entity.SaleStatusCompleted,
		Origin:    entity.SaleOriginLocal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, saleRepo.Create(ctx, localSale))

	next := snapshotBase()
	next.Users = snap.Users
	next.Sales[0].UserID = snap.Users[0].ID
	next.Sales = append(next.Sales, &entity.Sale{
		ID: localSale.ID, UserID: snap.Users[0].ID,
		Subtotal: localSale.Subtotal, Total: localSale.Total,
		Status: entity.SaleStatusCompleted, Origin: entity.SaleOriginRemote,
		CreatedAt: now, UpdatedAt: now,
	})
	f.puller.mu.Lock()
	f.puller.snap = next
	f.puller.mu.Unlock()

	res, err := f.engine.SyncAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts["sales_reconciled"])

	got, err := saleRepo.FindByID(ctx, localSale.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.SyncedAt, "la venta reconciliada queda marcada")
}

func TestSyncAll_InvocacionesConcurrentesColapsan(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	f := newFixture(t, &fakePuller{snap: snapshotBase(), gate: gate}, time.Hour)

	var wg stdsync.WaitGroup
	results := make([]*appsync.Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.SyncAll(ctx, true)
		}(i)
	}

	// Dar tiempo a que ambas invocaciones entren antes de soltar el pull.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, f.puller.callCount(), "dos SyncAll concurrentes comparten un solo pull")
	assert.Equal(t, results[0].At, results[1].At, "ambos callers reciben el mismo resultado")
}
