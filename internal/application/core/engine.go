package core

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jhoicas/pos-sync-core/internal/application/auth"
	"github.com/jhoicas/pos-sync-core/internal/application/health"
	"github.com/jhoicas/pos-sync-core/internal/application/sales"
	"github.com/jhoicas/pos-sync-core/internal/application/session"
	appsync "github.com/jhoicas/pos-sync-core/internal/application/sync"
	"github.com/jhoicas/pos-sync-core/internal/domain"
	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/authority"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/sqlite"
	"github.com/jhoicas/pos-sync-core/pkg/config"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// Engine es la fachada del núcleo offline-first: la app móvil embebe esta
// struct y habla solo con ella. Una instancia por proceso.
type Engine struct {
	cfg *config.Config
	log *logger.Logger

	store    *sqlite.Store
	client   *authority.Client
	monitor  *health.Monitor
	syncer   *appsync.Engine
	sessions *session.Manager
	verifier *auth.Verifier
	saleUC   *sales.RegisterSaleUseCase

	users    repository.UserRepository
	products repository.ProductRepository
}

// New arma el grafo completo de componentes sobre un almacén SQLite recién
// abierto. No toca la red: la primera evidencia de salud llega con Initialize
// o con el primer login.
func New(cfg *config.Config, log *logger.Logger) (*Engine, error) {
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("abrir almacén local: %w", err)
	}

	client := authority.NewClient(cfg.Authority.BaseURL, cfg.Authority.Timeout)
	monitor := health.NewMonitor(client, log, cfg.Health.MaxAttempts, cfg.Health.BaseDelay)

	users := sqlite.NewUserRepository(store.DB())
	products := sqlite.NewProductRepository(store.DB())
	state := sqlite.NewStateRepository(store.DB())
	runner := sqlite.NewTxRunner(store.DB())

	sessions := session.NewManager(state, users, log)
	syncer := appsync.NewEngine(runner, client, sessions, monitor, state, cfg.Sync.ThrottleWindow, log)
	verifier := auth.NewVerifier(client, users, sessions, syncer, monitor, cfg.Session, log)
	saleUC := sales.NewRegisterSaleUseCase(runner, log)

	// Un 401/403 en cualquier llamada autenticada invalida la sesión local.
	client.SetUnauthorizedHook(sessions.HandleUnauthorized)

	return &Engine{
		cfg:      cfg,
		log:      log.Component("core"),
		store:    store,
		client:   client,
		monitor:  monitor,
		syncer:   syncer,
		sessions: sessions,
		verifier: verifier,
		saleUC:   saleUC,
		users:    users,
		products: products,
	}, nil
}

// Initialize prepara el núcleo para operar: esquema idempotente, seed de
// arranque, sesión y marca de sync restauradas, y el sondeo periódico de
// salud en segundo plano (el backoff ante cold start no debe bloquear el
// arranque, y la recuperación de la autoridad debe detectarse aunque la app
// esté ociosa).
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := e.store.Seed(ctx); err != nil {
		return err
	}
	if err := e.sessions.Restore(ctx); err != nil {
		return err
	}
	if err := e.syncer.Restore(ctx); err != nil {
		return err
	}

	e.monitor.Start(context.Background(), e.cfg.Health.ProbeInterval)

	e.log.Info().Str("store", e.cfg.Store.Path).Msg("núcleo inicializado")
	return nil
}

// Login autentica remoto-primero con fallback al espejo local.
func (e *Engine) Login(ctx context.Context, email, password string) (*entity.Session, error) {
	return e.verifier.Login(ctx, email, password)
}

// Register registra una identidad NUEVA contra la autoridad. No hay registro
// offline: sin autoridad no hay identidad. Un 409 se devuelve textual como
// ErrDuplicateIdentity, sin reintento.
func (e *Engine) Register(ctx context.Context, p authority.RegisterPayload) (*entity.User, error) {
	user, err := e.client.Register(ctx, p)
	if err != nil {
		if authority.StatusCode(err) == http.StatusConflict {
			return nil, fmt.Errorf("%w: %v", domain.ErrDuplicateIdentity, err)
		}
		if authority.IsNetwork(err) {
			e.monitor.MarkDegraded(err)
		}
		return nil, err
	}
	e.monitor.MarkReachable()
	return user, nil
}

// Logout cierra la sesión. El lado local se limpia SIEMPRE; el aviso a la
// autoridad es best-effort y sus fallos solo se registran.
func (e *Engine) Logout(ctx context.Context) error {
	token, ok := e.sessions.Token()
	if !ok {
		return domain.ErrNoSession
	}
	if err := e.sessions.Clear(ctx); err != nil {
		return err
	}
	if err := e.client.Logout(ctx, token); err != nil {
		e.log.Warn().Err(err).Msg("logout remoto fallido, sesión local ya eliminada")
	}
	return nil
}

// Session devuelve una copia de la sesión activa, o nil si no hay.
func (e *Engine) Session() *entity.Session {
	return e.sessions.Current()
}

// SwitchTo delega la sesión a otra identidad (act-as).
func (e *Engine) SwitchTo(ctx context.Context, delegateEmail, proof string) error {
	return e.sessions.SwitchTo(ctx, delegateEmail, proof)
}

// SwitchBack restaura la identidad previa a la delegación.
func (e *Engine) SwitchBack() error {
	return e.sessions.SwitchBack(context.Background())
}

// ForceSync dispara un ciclo de sincronización saltando el throttle.
func (e *Engine) ForceSync(ctx context.Context) (*appsync.Result, error) {
	return e.syncer.SyncAll(ctx, true)
}

// SyncStatus devuelve la vista actual del motor de sincronización.
func (e *Engine) SyncStatus() appsync.Status {
	return e.syncer.Status()
}

// HealthStatus devuelve el último veredicto del monitor, sin sondear.
func (e *Engine) HealthStatus() health.Status {
	return e.monitor.Status()
}

// CheckHealth sondea la autoridad ahora y devuelve el veredicto resultante.
func (e *Engine) CheckHealth(ctx context.Context) health.Status {
	return e.monitor.Probe(ctx)
}

// RegisterSale registra una venta local en nombre de la identidad activa
// (la delegada, si hay delegación en curso).
func (e *Engine) RegisterSale(ctx context.Context, in sales.Input) (*entity.Sale, error) {
	sess := e.sessions.Current()
	if sess == nil {
		return nil, domain.ErrNoSession
	}
	return e.saleUC.Execute(ctx, &sess.User, in)
}

// LowStock lista los productos en o bajo su mínimo, dentro del alcance de la
// identidad activa (cashier su tienda, manager su company, super_admin todo).
func (e *Engine) LowStock(ctx context.Context) ([]*entity.Product, error) {
	sess := e.sessions.Current()
	if sess == nil {
		return nil, domain.ErrNoSession
	}
	return e.products.FindLowStock(ctx, entity.ScopeFor(&sess.User))
}

// Close detiene el sondeo de salud y libera el almacén local.
func (e *Engine) Close() error {
	e.monitor.Stop()
	return e.store.Close()
}
