package authority_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/infrastructure/authority"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const testTimeout = 2 * time.Second

func newClient(t *testing.T, handler http.Handler) *authority.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return authority.NewClient(srv.URL, testTimeout)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

// ──────────────────────────────────────────────────────────────────────────────
// Login
// ──────────────────────────────────────────────────────────────────────────────

func TestLogin_Exitoso(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ana@tienda.com", req["email"])

		writeJSON(t, w, http.StatusOK, map[string]any{
			"token": "token-remoto",
			"user": map[string]any{
				"id":    "u-1",
				"email": "ana@tienda.com",
				"name":  "Ana",
				"role":  "manager",
			},
		})
	}))

	user, token, err := client.Login(context.Background(), "ana@tienda.com", "secreta")
	require.NoError(t, err)
	assert.Equal(t, "token-remoto", token)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, entity.RoleManager, user.Role)
}

func TestLogin_RechazoLimpio401(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"error": "credenciales inválidas"})
	}))

	_, _, err := client.Login(context.Background(), "ana@tienda.com", "mala")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, authority.StatusCode(err))
	assert.False(t, authority.IsNetwork(err), "un 401 es respuesta de la autoridad, no fallo de red")
	assert.Contains(t, err.Error(), "credenciales inválidas", "el mensaje de la autoridad se conserva")
}

func TestLogin_FalloDeRed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // servidor muerto: conexión rechazada
	client := authority.NewClient(srv.URL, testTimeout)

	_, _, err := client.Login(context.Background(), "ana@tienda.com", "secreta")
	require.Error(t, err)
	assert.True(t, authority.IsNetwork(err), "conexión rechazada debe clasificarse como capa de red")
	assert.Equal(t, 0, authority.StatusCode(err))
}

// ──────────────────────────────────────────────────────────────────────────────
// Register
// ──────────────────────────────────────────────────────────────────────────────

func TestRegister_ConflictoTextual(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusConflict, map[string]string{"error": "el email ya está registrado"})
	}))

	_, err := client.Register(context.Background(), authority.RegisterPayload{
		Name: "Ana", Email: "ana@tienda.com", Password: "secreta",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, authority.StatusCode(err))
	assert.Contains(t, err.Error(), "el email ya está registrado")
}

// ──────────────────────────────────────────────────────────────────────────────
// Hook de invalidación 401/403
// ──────────────────────────────────────────────────────────────────────────────

func TestProfile_401DisparaHook(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"error": "token expirado"})
	}))

	fired := false
	client.SetUnauthorizedHook(func() { fired = true })

	_, err := client.Profile(context.Background(), "token-viejo")
	require.Error(t, err)
	assert.True(t, fired, "un 401 en una llamada autenticada debe invalidar la sesión")
}

func TestLogout_401NoDisparaHook(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"error": "token expirado"})
	}))

	fired := false
	client.SetUnauthorizedHook(func() { fired = true })

	err := client.Logout(context.Background(), "token-viejo")
	require.Error(t, err)
	assert.False(t, fired, "logout nunca dispara la invalidación: el token ya estaba muerto")
}

// ──────────────────────────────────────────────────────────────────────────────
// Health y sync
// ──────────────────────────────────────────────────────────────────────────────

func TestHealth_ColdStart503(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusServiceUnavailable, map[string]string{"error": "warming up"})
	}))

	_, err := client.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, authority.StatusCode(err))
	assert.False(t, authority.IsNetwork(err))
}

func TestPullAll_ParseaSnapshot(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/all", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"categories": []map[string]any{{"id": "c-1", "name": "Bebidas"}},
			"products": []map[string]any{{
				"id": "p-1", "category_id": "c-1", "sku": "SKU-1", "name": "Agua",
				"price": "1500", "stock_quantity": 10, "is_active": true,
			}},
			"users":     []map[string]any{{"id": "u-1", "email": "ana@tienda.com", "role": "cashier"}},
			"customers": []map[string]any{{"id": "cl-1", "name": "Cliente"}},
			"sales": []map[string]any{{
				"id": "s-1", "user_id": "u-1", "subtotal": "1500", "total": "1500",
				"items": []map[string]any{{"id": "i-1", "product_id": "p-1", "quantity": 1, "unit_price": "1500", "total_price": "1500"}},
			}},
		})
	}))

	snap, err := client.PullAll(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, snap.Categories, 1)
	require.Len(t, snap.Products, 1)
	require.Len(t, snap.Users, 1)
	require.Len(t, snap.Customers, 1)
	require.Len(t, snap.Sales, 1)

	assert.Equal(t, "1500", snap.Products[0].Price.String())
	assert.Equal(t, entity.SaleOriginRemote, snap.Sales[0].Origin, "toda venta espejada llega con origen remoto")
	require.Len(t, snap.Sales[0].Items, 1)
	assert.Equal(t, "s-1", snap.Sales[0].Items[0].SaleID)
}
