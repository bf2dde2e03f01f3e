package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// Rutas del API de la autoridad.
const (
	pathLogin    = "/auth/login"
	pathRegister = "/auth/register"
	pathLogout   = "/auth/logout"
	pathProfile  = "/auth/profile"
	pathHealth   = "/health"
	pathSyncAll  = "/sync/all"
)

// Client es el cliente HTTP tipado hacia la autoridad remota.
//
// No reintenta por su cuenta: el backoff ante cold start vive en el monitor de
// salud, que es el único con reintento silencioso acotado. Cada llamada lleva
// el timeout del http.Client además del contexto del caller.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// onUnauthorized se invoca cuando la autoridad responde 401/403 a una
	// llamada autenticada: el token del caller ya no es confiable y la sesión
	// local debe invalidarse. Logout lo suprime para evitar invalidación
	// recursiva.
	onUnauthorized func()
}

// NewClient construye el cliente con un timeout de red acotado.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetUnauthorizedHook registra el callback de invalidación de sesión.
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.onUnauthorized = fn
}

// Login autentica contra POST /auth/login y devuelve la identidad y su token.
// Un 401 llega como RequestError{StatusCode: 401}: rechazo limpio de la
// autoridad, que el verificador NO debe degradar a fallback local.
func (c *Client) Login(ctx context.Context, email, password string) (*entity.User, string, error) {
	var out loginResponse
	err := c.do(ctx, http.MethodPost, pathLogin, "", loginRequest{Email: email, Password: password}, &out, doOpts{op: "login", suppressUnauthorized: true})
	if err != nil {
		return nil, "", err
	}
	return out.User.toEntity(), out.Token, nil
}

// Register registra una identidad vía POST /auth/register.
// Un 409 (identidad duplicada) se devuelve textual, sin reintento.
func (c *Client) Register(ctx context.Context, p RegisterPayload) (*entity.User, error) {
	var out registerResponse
	err := c.do(ctx, http.MethodPost, pathRegister, "", p, &out, doOpts{op: "register", suppressUnauthorized: true})
	if err != nil {
		return nil, err
	}
	return out.User.toEntity(), nil
}

// Logout cierra la sesión remota (best-effort). Por diseño nunca dispara el
// hook de invalidación: un 401 aquí solo significa que el token ya murió.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, pathLogout, token, nil, nil, doOpts{op: "logout", suppressUnauthorized: true})
}

// Profile obtiene la identidad del token vía GET /auth/profile.
func (c *Client) Profile(ctx context.Context, token string) (*entity.User, error) {
	var out profileResponse
	err := c.do(ctx, http.MethodGet, pathProfile, token, nil, &out, doOpts{op: "profile"})
	if err != nil {
		return nil, err
	}
	return out.User.toEntity(), nil
}

// Health consulta GET /health. Un 503 llega como RequestError{StatusCode: 503}
// para que el monitor distinga cold start de inalcanzable.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	err := c.do(ctx, http.MethodGet, pathHealth, "", nil, &out, doOpts{op: "health", suppressUnauthorized: true})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PullAll descarga el dataset completo vía GET /sync/all.
func (c *Client) PullAll(ctx context.Context, token string) (*Snapshot, error) {
	var out wireSnapshot
	err := c.do(ctx, http.MethodGet, pathSyncAll, token, nil, &out, doOpts{op: "pull_all"})
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

type doOpts struct {
	op string
	// suppressUnauthorized evita el hook de invalidación en llamadas donde un
	// 401 no implica token comprometido (login, register, logout, health).
	suppressUnauthorized bool
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any, opts doOpts) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authority %s: serializar request: %w", opts.op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("authority %s: crear request: %w", opts.op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Conexión rechazada, timeout, DNS: fallo de capa de red.
		return &RequestError{Op: opts.op, Err: err}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20)) // max 8 MB
	if err != nil {
		return &RequestError{Op: opts.op, Err: fmt.Errorf("leer respuesta: %w", err)}
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		_ = json.Unmarshal(rawBody, &apiErr)
		if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) &&
			!opts.suppressUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return &RequestError{Op: opts.op, StatusCode: resp.StatusCode, Message: apiErr.text()}
	}

	if out != nil {
		if err := json.Unmarshal(rawBody, out); err != nil {
			return &RequestError{Op: opts.op, StatusCode: resp.StatusCode, Message: "respuesta no parseable", Err: err}
		}
	}
	return nil
}

func asRequestError(err error, target **RequestError) bool {
	return errors.As(err, target)
}
