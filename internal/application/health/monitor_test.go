package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/authority"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// scriptedProber devuelve respuestas predefinidas en orden.
type scriptedProber struct {
	responses []error
	calls     int
}

func (p *scriptedProber) Health(ctx context.Context) (*authority.HealthStatus, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		return nil, errors.New("probe inesperado")
	}
	if err := p.responses[idx]; err != nil {
		return nil, err
	}
	return &authority.HealthStatus{Status: "ok", Database: "connected", Timestamp: time.Now()}, nil
}

func err503() error {
	return &authority.RequestError{Op: "health", StatusCode: http.StatusServiceUnavailable, Message: "warming up"}
}

func errNetwork() error {
	return &authority.RequestError{Op: "health", Err: errors.New("connection refused")}
}

// newTestMonitor cablea un monitor con sleep instrumentado: registra los
// delays solicitados sin esperar de verdad.
func newTestMonitor(prober Prober, maxAttempts int) (*Monitor, *[]time.Duration) {
	m := NewMonitor(prober, logger.Nop(), maxAttempts, 500*time.Millisecond)
	var slept []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return m, &slept
}

func TestProbe_ColdStartReintentaConBackoff(t *testing.T) {
	// Escenario: 3×503 y luego 200 → 4 probes con delays crecientes.
	p := &scriptedProber{responses: []error{err503(), err503(), err503(), nil}}
	m, slept := newTestMonitor(p, 5)

	s := m.Probe(context.Background())

	assert.True(t, s.Healthy)
	assert.Equal(t, entity.SourceRemote, s.ActiveSource)
	assert.Equal(t, 4, p.calls, "tres 503 y un 200 son cuatro probes")
	require.Len(t, *slept, 3)
	assert.Equal(t, 500*time.Millisecond, (*slept)[0])
	assert.Equal(t, 1*time.Second, (*slept)[1])
	assert.Equal(t, 2*time.Second, (*slept)[2], "cada espera duplica la anterior")
}

func TestProbe_FalloDeRedNoReintenta(t *testing.T) {
	p := &scriptedProber{responses: []error{errNetwork()}}
	m, slept := newTestMonitor(p, 5)

	s := m.Probe(context.Background())

	assert.False(t, s.Healthy)
	assert.Equal(t, entity.SourceLocal, s.ActiveSource)
	assert.Equal(t, 1, p.calls, "solo el 503 merece reintento; la red caída no")
	assert.Empty(t, *slept)
	assert.Contains(t, s.LastError, "connection refused")
}

func TestProbe_ColdStartAgotaIntentos(t *testing.T) {
	p := &scriptedProber{responses: []error{err503(), err503(), err503()}}
	m, slept := newTestMonitor(p, 3)

	s := m.Probe(context.Background())

	assert.False(t, s.Healthy)
	assert.Equal(t, 3, p.calls)
	assert.Len(t, *slept, 2, "tras el último intento no se duerme")
	assert.Equal(t, 1, s.ConsecutiveFailures)
}

// flakyProber responde según un estado conmutable, seguro para el loop en
// segundo plano.
type flakyProber struct {
	mu      sync.Mutex
	calls   int
	healthy bool
}

func (p *flakyProber) Health(ctx context.Context) (*authority.HealthStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if !p.healthy {
		return nil, &authority.RequestError{Op: "health", Err: errors.New("connection refused")}
	}
	return &authority.HealthStatus{Status: "ok", Database: "connected", Timestamp: time.Now()}, nil
}

func (p *flakyProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *flakyProber) setHealthy(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = v
}

func TestStart_SondeoPeriodicoDetectaRecuperacion(t *testing.T) {
	p := &flakyProber{}
	m := NewMonitor(p, logger.Nop(), 1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx, 5*time.Millisecond)
	defer m.Stop()

	require.Eventually(t, func() bool { return p.callCount() >= 2 }, 2*time.Second, time.Millisecond,
		"el monitor sondea por sí mismo, no solo en el arranque")
	assert.False(t, m.Healthy())

	// La autoridad vuelve: el siguiente tick debe detectarlo sin que ninguna
	// operación de usuario toque la red.
	p.setHealthy(true)
	require.Eventually(t, func() bool { return m.Healthy() }, 2*time.Second, time.Millisecond,
		"la recuperación se observa con la app ociosa")
	assert.Equal(t, entity.SourceRemote, m.Status().ActiveSource)
}

func TestStop_DetieneElSondeo(t *testing.T) {
	p := &flakyProber{}
	p.setHealthy(true)
	m := NewMonitor(p, logger.Nop(), 1, time.Millisecond)

	m.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.callCount() >= 1 }, 2*time.Second, time.Millisecond)

	m.Stop()
	time.Sleep(20 * time.Millisecond) // drenar un probe posiblemente en vuelo
	before := p.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, p.callCount(), "tras Stop no llegan más probes")

	m.Stop() // repetir Stop es inocuo
}

func TestMonitor_ArrancaDegradado(t *testing.T) {
	m := NewMonitor(&scriptedProber{}, logger.Nop(), 5, time.Millisecond)
	s := m.Status()
	assert.False(t, s.Healthy, "sin evidencia no se asume salud")
	assert.Equal(t, entity.SourceLocal, s.ActiveSource)
}

func TestMonitor_MarcasDirectas(t *testing.T) {
	m := NewMonitor(&scriptedProber{}, logger.Nop(), 5, time.Millisecond)

	m.MarkReachable()
	assert.True(t, m.Healthy())
	assert.Equal(t, entity.SourceRemote, m.Status().ActiveSource)

	m.MarkDegraded(errors.New("pull fallido"))
	assert.False(t, m.Healthy())
	assert.Equal(t, entity.SourceLocal, m.Status().ActiveSource)
	assert.Equal(t, 1, m.Status().ConsecutiveFailures)

	m.MarkDegraded(errors.New("otro fallo"))
	assert.Equal(t, 2, m.Status().ConsecutiveFailures, "los fallos consecutivos se acumulan")
}
