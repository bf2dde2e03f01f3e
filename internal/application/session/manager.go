package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/pos-sync-core/internal/domain"
	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// CredentialVerifier verifica la credencial del delegado contra el espejo
// local. Lo implementa sqlite.UserRepo.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, email, password string) (*entity.User, error)
}

// persistedSession es la forma durable de la sesión en app_state.
// El token va en una clave aparte (StateKeyAuthToken).
type persistedSession struct {
	User        entity.User   `json:"user"`
	Source      entity.Source `json:"source"`
	CreatedAt   time.Time     `json:"created_at"`
	ActingStack []entity.User `json:"acting_stack,omitempty"`
}

// Manager mantiene la única sesión autenticada del proceso.
//
// Toda mutación persiste en el estado durable antes de ser visible, de modo
// que un reinicio restaura la sesión exacta, incluida una delegación en curso.
// La delegación (act-as) está limitada a profundidad 1: una identidad delegada
// no puede delegar a su vez.
type Manager struct {
	state    repository.StateRepository
	verifier CredentialVerifier
	log      *logger.Logger

	mu      sync.RWMutex
	current *entity.Session
}

// NewManager construye el gestor de sesión.
func NewManager(state repository.StateRepository, verifier CredentialVerifier, log *logger.Logger) *Manager {
	return &Manager{
		state:    state,
		verifier: verifier,
		log:      log.Component("session"),
	}
}

// Set instala una sesión nueva (login exitoso), reemplazando la anterior.
func (m *Manager) Set(ctx context.Context, s *entity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.persistLocked(ctx, s); err != nil {
		return err
	}
	m.current = s
	m.log.Info().
		Str("user_id", s.User.ID).
		Str("role", string(s.User.Role)).
		Str("source", string(s.Source)).
		Msg("sesión establecida")
	return nil
}

// Current devuelve una copia de la sesión activa, o nil si no hay.
func (m *Manager) Current() *entity.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	cp.ActingStack = append([]entity.User(nil), m.current.ActingStack...)
	return &cp
}

// Token devuelve el token de la sesión activa. ok=false sin sesión.
func (m *Manager) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", false
	}
	return m.current.Token, true
}

// Clear elimina la sesión de memoria y del estado durable.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.state.Delete(ctx, repository.StateKeyAuthToken); err != nil {
		return err
	}
	if err := m.state.Delete(ctx, repository.StateKeyAuthUser); err != nil {
		return err
	}
	m.current = nil
	m.log.Info().Msg("sesión eliminada")
	return nil
}

// Restore recarga la sesión persistida (si la hay). Se llama en Initialize.
// Un estado corrupto se descarta: mejor pedir login que arrancar con una
// sesión a medias.
func (m *Manager) Restore(ctx context.Context) error {
	token, okToken, err := m.state.Get(ctx, repository.StateKeyAuthToken)
	if err != nil {
		return err
	}
	raw, okUser, err := m.state.Get(ctx, repository.StateKeyAuthUser)
	if err != nil {
		return err
	}
	if !okToken || !okUser {
		return nil
	}

	var p persistedSession
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		m.log.Warn().Err(err).Msg("sesión persistida no parseable, descartada")
		_ = m.state.Delete(ctx, repository.StateKeyAuthToken)
		_ = m.state.Delete(ctx, repository.StateKeyAuthUser)
		return nil
	}

	m.mu.Lock()
	m.current = &entity.Session{
		User:        p.User,
		Token:       token,
		Source:      p.Source,
		CreatedAt:   p.CreatedAt,
		ActingStack: p.ActingStack,
	}
	m.mu.Unlock()
	m.log.Info().
		Str("user_id", p.User.ID).
		Str("source", string(p.Source)).
		Bool("acting", len(p.ActingStack) > 0).
		Msg("sesión restaurada")
	return nil
}

// SwitchTo delega la sesión a otra identidad (act-as).
//
// Reglas: requiere sesión activa; el rol ACTUAL debe poder delegar (manager o
// super_admin); la profundidad máxima es 1; la credencial del delegado se
// verifica contra el espejo local. El token y la fuente originales se
// conservan.
func (m *Manager) SwitchTo(ctx context.Context, delegateEmail, proof string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domain.ErrNoSession
	}
	if m.current.Acting() {
		return fmt.Errorf("%w: ya hay una identidad delegada activa", domain.ErrImpersonationDenied)
	}
	if !m.current.User.Role.CanImpersonate() {
		return fmt.Errorf("%w: el rol %s no puede delegar", domain.ErrImpersonationDenied, m.current.User.Role)
	}

	delegate, err := m.verifier.VerifyCredential(ctx, delegateEmail, proof)
	if err != nil {
		return err
	}
	if delegate == nil {
		return fmt.Errorf("%w: credencial del delegado no verificable", domain.ErrImpersonationDenied)
	}
	if delegate.ID == m.current.User.ID {
		return fmt.Errorf("%w: el delegado es la identidad actual", domain.ErrImpersonationDenied)
	}

	next := *m.current
	next.ActingStack = append(append([]entity.User(nil), m.current.ActingStack...), m.current.User)
	next.User = *delegate
	if err := m.persistLocked(ctx, &next); err != nil {
		return err
	}
	m.current = &next
	m.log.Info().
		Str("from", next.ActingStack[len(next.ActingStack)-1].Email).
		Str("to", delegate.Email).
		Msg("delegación de identidad activa")
	return nil
}

// SwitchBack restaura la identidad previa a la delegación.
func (m *Manager) SwitchBack(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domain.ErrNoSession
	}
	if !m.current.Acting() {
		return domain.ErrNotActing
	}

	next := *m.current
	top := len(next.ActingStack) - 1
	restored := next.ActingStack[top]
	next.ActingStack = append([]entity.User(nil), next.ActingStack[:top]...)
	next.User = restored
	if err := m.persistLocked(ctx, &next); err != nil {
		return err
	}
	m.current = &next
	m.log.Info().Str("restored", restored.Email).Msg("delegación finalizada")
	return nil
}

// HandleUnauthorized es el destino del hook 401/403 del cliente de autoridad:
// el token dejó de ser confiable y la sesión local se invalida.
func (m *Manager) HandleUnauthorized() {
	m.log.Warn().Msg("la autoridad invalidó el token, eliminando sesión local")
	if err := m.Clear(context.Background()); err != nil {
		m.log.Error().Err(err).Msg("no se pudo eliminar la sesión invalidada")
	}
}

func (m *Manager) persistLocked(ctx context.Context, s *entity.Session) error {
	payload, err := json.Marshal(persistedSession{
		User:        s.User,
		Source:      s.Source,
		CreatedAt:   s.CreatedAt,
		ActingStack: s.ActingStack,
	})
	if err != nil {
		return fmt.Errorf("serializar sesión: %w", err)
	}
	if err := m.state.Set(ctx, repository.StateKeyAuthToken, s.Token); err != nil {
		return err
	}
	return m.state.Set(ctx, repository.StateKeyAuthUser, string(payload))
}
