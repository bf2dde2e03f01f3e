package sync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/pos-sync-core/internal/domain"
	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/authority"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// TxRunner abre la transacción de merge con los repos de espejo atados a ella.
// Lo implementa sqlite.TxRunner.
type TxRunner interface {
	RunSync(ctx context.Context, fn func(
		users repository.UserRepository,
		categories repository.CategoryRepository,
		products repository.ProductRepository,
		customers repository.CustomerRepository,
		saleRepo repository.SaleRepository,
		state repository.StateRepository,
	) error) error
}

// Puller descarga el dataset completo de la autoridad. Lo implementa el cliente HTTP.
type Puller interface {
	PullAll(ctx context.Context, token string) (*authority.Snapshot, error)
}

// TokenSource entrega el token de la sesión activa. Lo implementa el session.Manager.
type TokenSource interface {
	Token() (string, bool)
}

// HealthSink recibe la evidencia de salud que produce cada pull.
// Lo implementa el health.Monitor.
type HealthSink interface {
	MarkReachable()
	MarkDegraded(err error)
}

// Result resume un ciclo de sincronización.
// Synced=false significa que el throttle devolvió el resultado anterior sin pull.
type Result struct {
	Synced bool
	Counts map[string]int
	At     time.Time
}

// Status es la vista externa del motor.
type Status struct {
	LastSyncAt time.Time
	LastResult *Result
}

// Engine descarga el dataset completo de la autoridad y lo fusiona en el
// espejo local dentro de UNA transacción: o el espejo completo avanza o queda
// byte a byte como estaba.
//
// Invocaciones concurrentes colapsan en un solo pull en vuelo (singleflight);
// las no forzadas dentro de la ventana de throttle son no-op. lastSyncAt
// persiste en app_state dentro de la misma transacción del merge, así el
// throttle sobrevive reinicios del proceso.
type Engine struct {
	runner   TxRunner
	puller   Puller
	tokens   TokenSource
	health   HealthSink
	state    repository.StateRepository
	throttle time.Duration
	log      *logger.Logger

	group singleflight.Group

	mu         sync.Mutex
	lastSyncAt time.Time
	lastResult *Result
}

// NewEngine construye el motor de sincronización.
func NewEngine(runner TxRunner, puller Puller, tokens TokenSource, health HealthSink, state repository.StateRepository, throttle time.Duration, log *logger.Logger) *Engine {
	return &Engine{
		runner:   runner,
		puller:   puller,
		tokens:   tokens,
		health:   health,
		state:    state,
		throttle: throttle,
		log:      log.Component("sync"),
	}
}

// Restore recarga lastSyncAt del estado durable. Se llama en Initialize.
func (e *Engine) Restore(ctx context.Context) error {
	raw, ok, err := e.state.Get(ctx, repository.StateKeyLastSyncAt)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// Marca corrupta: se ignora y el siguiente sync la reescribe.
		e.log.Warn().Str("value", raw).Msg("marca last_sync_at no parseable, ignorada")
		return nil
	}
	e.mu.Lock()
	e.lastSyncAt = at
	e.mu.Unlock()
	return nil
}

// SyncAll ejecuta (o colapsa sobre) un ciclo de sincronización.
// force salta el throttle; nunca salta el singleflight.
func (e *Engine) SyncAll(ctx context.Context, force bool) (*Result, error) {
	v, err, _ := e.group.Do("sync_all", func() (any, error) {
		return e.syncAll(ctx, force)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (e *Engine) syncAll(ctx context.Context, force bool) (*Result, error) {
	token, ok := e.tokens.Token()
	if !ok {
		return nil, domain.ErrNoSession
	}

	e.mu.Lock()
	last := e.lastSyncAt
	prev := e.lastResult
	e.mu.Unlock()

	if !force && !last.IsZero() && time.Since(last) < e.throttle {
		e.log.Debug().Time("last_sync_at", last).Msg("sync dentro de la ventana de throttle, no-op")
		r := &Result{Synced: false, At: last}
		if prev != nil {
			r.Counts = prev.Counts
		}
		return r, nil
	}

	snap, err := e.puller.PullAll(ctx, token)
	if err != nil {
		if authority.IsNetwork(err) {
			e.health.MarkDegraded(err)
		}
		e.log.Warn().Err(err).Msg("pull de sincronización fallido")
		return nil, err
	}
	e.health.MarkReachable()

	now := time.Now()
	counts := make(map[string]int, 5)
	err = e.runner.RunSync(ctx, func(
		users repository.UserRepository,
		categories repository.CategoryRepository,
		products repository.ProductRepository,
		customers repository.CustomerRepository,
		saleRepo repository.SaleRepository,
		state repository.StateRepository,
	) error {
		// Las categorías van antes que los productos y las cabeceras antes
		// que las líneas: las referencias deben ser satisfacibles dentro del
		// mismo lote.
		n, err := categories.UpsertBatch(ctx, snap.Categories)
		if err != nil {
			return err
		}
		counts["categories"] = n

		if n, err = products.UpsertBatch(ctx, snap.Products); err != nil {
			return err
		}
		counts["products"] = n

		if n, err = users.UpsertBatch(ctx, snap.Users); err != nil {
			return err
		}
		counts["users"] = n

		if n, err = customers.UpsertBatch(ctx, snap.Customers); err != nil {
			return err
		}
		counts["customers"] = n

		// Antes de espejar ventas remotas, capturar qué ventas locales
		// siguen pendientes: si la autoridad ya devuelve una de ellas en el
		// snapshot, quedó reconciliada y se marca.
		pending, err := saleRepo.ListPendingSync(ctx)
		if err != nil {
			return err
		}

		if n, err = saleRepo.UpsertBatch(ctx, snap.Sales); err != nil {
			return err
		}
		counts["sales"] = n

		if ids := reconciledIDs(pending, snap); len(ids) > 0 {
			if err := saleRepo.MarkSynced(ctx, ids, now); err != nil {
				return err
			}
			counts["sales_reconciled"] = len(ids)
		}

		return state.Set(ctx, repository.StateKeyLastSyncAt, now.Format(time.RFC3339Nano))
	})
	if err != nil {
		e.log.Error().Err(err).Msg("merge de sincronización abortado, espejo intacto")
		return nil, err
	}

	result := &Result{Synced: true, Counts: counts, At: now}
	e.mu.Lock()
	e.lastSyncAt = now
	e.lastResult = result
	e.mu.Unlock()

	e.log.Info().
		Int("categories", counts["categories"]).
		Int("products", counts["products"]).
		Int("users", counts["users"]).
		Int("customers", counts["customers"]).
		Int("sales", counts["sales"]).
		Time("at", now).
		Msg("sincronización completa")
	return result, nil
}

// Status devuelve la vista actual del motor.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{LastSyncAt: e.lastSyncAt, LastResult: e.lastResult}
}

func reconciledIDs(pending []*entity.Sale, snap *authority.Snapshot) []string {
	if len(pending) == 0 {
		return nil
	}
	inSnap := make(map[string]struct{}, len(snap.Sales))
	for _, s := range snap.Sales {
		inSnap[s.ID] = struct{}{}
	}
	var ids []string
	for _, p := range pending {
		if _, ok := inSnap[p.ID]; ok {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
