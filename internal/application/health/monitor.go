package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/authority"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// Prober es la sonda contra la autoridad remota. La implementa el cliente HTTP.
type Prober interface {
	Health(ctx context.Context) (*authority.HealthStatus, error)
}

// Status es la vista externa del monitor en un instante.
type Status struct {
	Healthy             bool
	ActiveSource        entity.Source
	LastCheck           time.Time
	LastError           string
	ConsecutiveFailures int
}

// Monitor mantiene el veredicto salud/no-salud de la autoridad remota.
//
// Es el ÚNICO componente con reintento silencioso: ante un 503 (cold start del
// hosting) reintenta con backoff exponencial hasta maxAttempts. Cualquier otro
// fallo (red, 5xx distinto) degrada de inmediato sin reintentar. El veredicto
// decide qué fuente de autenticación está activa: remota cuando hay salud,
// espejo local cuando no.
type Monitor struct {
	prober      Prober
	log         *logger.Logger
	maxAttempts int
	baseDelay   time.Duration

	// sleep es inyectable para que los tests midan el backoff sin esperar.
	sleep func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	healthy      bool
	activeSource entity.Source
	lastCheck    time.Time
	lastErr      error
	failures     int
	stop         chan struct{} // no-nil mientras el sondeo periódico corre
}

// NewMonitor construye el monitor. Arranca degradado (fuente local) hasta el
// primer probe exitoso: asumir salud sin evidencia rompería el arranque offline.
func NewMonitor(prober Prober, log *logger.Logger, maxAttempts int, baseDelay time.Duration) *Monitor {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Monitor{
		prober:       prober,
		log:          log.Component("health"),
		maxAttempts:  maxAttempts,
		baseDelay:    baseDelay,
		sleep:        sleepCtx,
		activeSource: entity.SourceLocal,
	}
}

// Start lanza el sondeo periódico en segundo plano: un probe inmediato y
// luego uno por intervalo. Sin esto la recuperación de la autoridad solo se
// observaría cuando alguna llamada del usuario tocara la red. Idempotente
// mientras el loop siga vivo; se detiene con Stop o cancelando ctx.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	m.log.Info().Dur("interval", interval).Msg("sondeo periódico de salud activo")
	go func() {
		m.Probe(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				m.Probe(ctx)
			}
		}
	}()
}

// Stop detiene el sondeo periódico. Seguro de llamar sin Start previo.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// Probe sondea la autoridad y actualiza el veredicto. Nunca devuelve error al
// caller: el resultado se absorbe en el estado observable vía Status.
//
// Secuencia ante cold start: probe -> 503 -> espera baseDelay -> probe -> 503
// -> espera 2×baseDelay... hasta éxito o maxAttempts agotados.
func (m *Monitor) Probe(ctx context.Context) Status {
	var lastErr error
	delay := m.baseDelay

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		report, err := m.prober.Health(ctx)
		if err == nil {
			m.log.Debug().
				Int("attempt", attempt).
				Str("database", report.Database).
				Msg("autoridad saludable")
			m.MarkReachable()
			return m.Status()
		}
		lastErr = err

		// Solo el 503 indica cold start; todo lo demás es terminal para
		// este probe.
		if authority.StatusCode(err) != http.StatusServiceUnavailable {
			break
		}
		if attempt == m.maxAttempts {
			break
		}
		m.log.Debug().
			Int("attempt", attempt).
			Dur("next_delay", delay).
			Msg("autoridad en arranque frío, reintentando")
		if serr := m.sleep(ctx, delay); serr != nil {
			lastErr = serr
			break
		}
		delay *= 2
	}

	m.MarkDegraded(lastErr)
	return m.Status()
}

// MarkReachable registra evidencia directa de salud (p.ej. un login remoto
// exitoso) sin esperar al siguiente probe.
func (m *Monitor) MarkReachable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	transition := !m.healthy
	m.healthy = true
	m.activeSource = entity.SourceRemote
	m.lastCheck = time.Now()
	m.lastErr = nil
	m.failures = 0
	if transition {
		m.log.Info().Str("source", string(entity.SourceRemote)).Msg("autoridad alcanzable, fuente remota activa")
	}
}

// MarkDegraded registra evidencia directa de no-salud (fallo de red en
// cualquier operación remota).
func (m *Monitor) MarkDegraded(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transition := m.healthy
	m.healthy = false
	m.activeSource = entity.SourceLocal
	m.lastCheck = time.Now()
	m.lastErr = err
	m.failures++
	if transition {
		m.log.Warn().Err(err).Str("source", string(entity.SourceLocal)).Msg("autoridad inalcanzable, fuente local activa")
	}
}

// Status devuelve una copia del veredicto actual.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{
		Healthy:             m.healthy,
		ActiveSource:        m.activeSource,
		LastCheck:           m.lastCheck,
		ConsecutiveFailures: m.failures,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Healthy es un atajo de Status().Healthy.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
