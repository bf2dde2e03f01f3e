package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	appsync "github.com/jhoicas/pos-sync-core/internal/application/sync"
	"github.com/jhoicas/pos-sync-core/internal/domain"
	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/authority"
	"github.com/jhoicas/pos-sync-core/pkg/config"
	"github.com/jhoicas/pos-sync-core/pkg/localtoken"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// RemoteAuthenticator autentica contra la autoridad. Lo implementa el cliente HTTP.
type RemoteAuthenticator interface {
	Login(ctx context.Context, email, password string) (*entity.User, string, error)
}

// SessionSink instala la sesión resultante. Lo implementa session.Manager.
type SessionSink interface {
	Set(ctx context.Context, s *entity.Session) error
}

// Syncer dispara la sincronización post-login. Lo implementa sync.Engine.
type Syncer interface {
	SyncAll(ctx context.Context, force bool) (*appsync.Result, error)
}

// HealthSink recibe la evidencia de salud del intento remoto.
type HealthSink interface {
	MarkReachable()
	MarkDegraded(err error)
}

// Verifier es la máquina de estados de autenticación.
//
// Siempre intenta primero contra la autoridad remota. Un rechazo limpio
// (401/403) es TERMINAL: jamás cae al espejo local, porque la autoridad ya
// dictaminó sobre esas credenciales. Solo la inalcanzabilidad (fallo de red o
// 5xx) habilita la verificación local contra el hash bcrypt espejado.
type Verifier struct {
	remote   RemoteAuthenticator
	users    repository.UserRepository
	sessions SessionSink
	syncer   Syncer
	health   HealthSink
	tokens   config.SessionConfig
	log      *logger.Logger
}

// NewVerifier construye el verificador de credenciales.
func NewVerifier(remote RemoteAuthenticator, users repository.UserRepository, sessions SessionSink, syncer Syncer, health HealthSink, tokens config.SessionConfig, log *logger.Logger) *Verifier {
	return &Verifier{
		remote:   remote,
		users:    users,
		sessions: sessions,
		syncer:   syncer,
		health:   health,
		tokens:   tokens,
		log:      log.Component("auth"),
	}
}

// Login resuelve credenciales contra la autoridad y, si esta es inalcanzable,
// contra el espejo local. La sesión devuelta indica en Source qué fuente la
// autenticó.
func (v *Verifier) Login(ctx context.Context, email, password string) (*entity.Session, error) {
	user, token, err := v.remote.Login(ctx, email, password)
	if err == nil {
		return v.remoteSuccess(ctx, user, token)
	}

	sc := authority.StatusCode(err)
	switch {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		// Rechazo limpio: la autoridad respondió y dijo que no.
		v.health.MarkReachable()
		v.log.Info().Str("email", email).Msg("credenciales rechazadas por la autoridad")
		return nil, fmt.Errorf("%w (HTTP %d)", domain.ErrAuthorityRejected, sc)
	case authority.IsNetwork(err) || sc >= http.StatusInternalServerError:
		v.health.MarkDegraded(err)
		v.log.Warn().Err(err).Msg("autoridad inalcanzable, verificando contra el espejo local")
		return v.localFallback(ctx, email, password)
	default:
		// 4xx inesperado (400, 429...): ni rechazo limpio ni inalcanzable.
		return nil, err
	}
}

func (v *Verifier) remoteSuccess(ctx context.Context, user *entity.User, token string) (*entity.Session, error) {
	v.health.MarkReachable()

	sess := &entity.Session{
		User:      *user,
		Token:     token,
		Source:    entity.SourceRemote,
		CreatedAt: time.Now(),
	}
	if err := v.sessions.Set(ctx, sess); err != nil {
		return nil, err
	}

	// Espejar la identidad para que el fallback local la conozca. Solo si la
	// autoridad entregó el hash: un upsert sin hash borraría el espejado.
	if user.PasswordHash != "" {
		if _, err := v.users.UpsertBatch(ctx, []*entity.User{user}); err != nil {
			v.log.Warn().Err(err).Msg("no se pudo espejar la identidad tras el login")
		}
	}
	if err := v.users.TouchLastLogin(ctx, user.ID, sess.CreatedAt); err != nil {
		v.log.Warn().Err(err).Msg("no se pudo actualizar last_login_at")
	}

	// Sync forzado ANTES de devolver el login, pero su fallo nunca tumba una
	// autenticación ya aceptada.
	if _, err := v.syncer.SyncAll(ctx, true); err != nil {
		v.log.Warn().Err(err).Msg("sincronización post-login fallida, login válido igualmente")
	}

	v.log.Info().Str("user_id", user.ID).Str("source", string(entity.SourceRemote)).Msg("login remoto exitoso")
	return sess, nil
}

func (v *Verifier) localFallback(ctx context.Context, email, password string) (*entity.Session, error) {
	user, err := v.users.VerifyCredential(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrLocalRejected
	}

	token, err := localtoken.Mint(
		v.tokens.LocalTokenSecret,
		user.ID, user.CompanyID, user.StoreID, string(user.Role),
		v.tokens.Issuer, v.tokens.LocalTokenMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("emitir token local: %w", err)
	}

	sess := &entity.Session{
		User:      *user,
		Token:     token,
		Source:    entity.SourceLocal,
		CreatedAt: time.Now(),
	}
	if err := v.sessions.Set(ctx, sess); err != nil {
		return nil, err
	}
	if err := v.users.TouchLastLogin(ctx, user.ID, sess.CreatedAt); err != nil {
		v.log.Warn().Err(err).Msg("no se pudo actualizar last_login_at")
	}

	v.log.Info().Str("user_id", user.ID).Str("source", string(entity.SourceLocal)).Msg("login resuelto contra el espejo local")
	return sess, nil
}
