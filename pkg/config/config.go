package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración del núcleo offline-first (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App       AppConfig
	Authority AuthorityConfig
	Store     StoreConfig
	Sync      SyncConfig
	Health    HealthConfig
	Session   SessionConfig
	Diag      DiagConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// AuthorityConfig configuración del servicio remoto de autoridad (identidades y catálogo).
type AuthorityConfig struct {
	BaseURL string // ej. https://api.techcorp.com
	Timeout time.Duration
}

// StoreConfig configuración del almacén local embebido (SQLite).
type StoreConfig struct {
	Path string // ruta al archivo .db; el directorio debe existir
}

// SyncConfig configuración del motor de sincronización.
type SyncConfig struct {
	ThrottleWindow time.Duration // intervalo mínimo entre syncs no forzados
}

// HealthConfig configuración del monitor de salud de la autoridad.
type HealthConfig struct {
	MaxAttempts   int           // probes ante 503 (cold start) antes de declarar inalcanzable
	BaseDelay     time.Duration // delay inicial del backoff exponencial
	Timeout       time.Duration // timeout por probe individual
	ProbeInterval time.Duration // cadencia del sondeo periódico en segundo plano
}

// SessionConfig configuración de la sesión local.
// LocalTokenSecret firma los tokens emitidos cuando la autenticación resuelve contra
// el espejo local y la autoridad no pudo emitir uno.
type SessionConfig struct {
	LocalTokenSecret  string
	LocalTokenMinutes int
	Issuer            string
}

// DiagConfig listener de diagnóstico local (vacío = deshabilitado).
type DiagConfig struct {
	Addr string // ej. 127.0.0.1:9180
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: AUTHORITY_BASE_URL, SQLITE_PATH, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	// También intenta config.env
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "pos-sync-core"),
		},
		Authority: AuthorityConfig{
			BaseURL: getString(v, "AUTHORITY_BASE_URL", "http://localhost:3000"),
			Timeout: time.Duration(getInt(v, "AUTHORITY_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Store: StoreConfig{
			Path: getString(v, "SQLITE_PATH", "./data/pos.db"),
		},
		Sync: SyncConfig{
			ThrottleWindow: time.Duration(getInt(v, "SYNC_THROTTLE_SECONDS", 300)) * time.Second,
		},
		Health: HealthConfig{
			MaxAttempts:   getInt(v, "HEALTH_MAX_ATTEMPTS", 5),
			BaseDelay:     time.Duration(getInt(v, "HEALTH_BASE_DELAY_MS", 500)) * time.Millisecond,
			Timeout:       time.Duration(getInt(v, "HEALTH_TIMEOUT_SECONDS", 5)) * time.Second,
			ProbeInterval: time.Duration(getInt(v, "HEALTH_PROBE_INTERVAL_SECONDS", 60)) * time.Second,
		},
		Session: SessionConfig{
			LocalTokenSecret:  getString(v, "LOCAL_TOKEN_SECRET", ""),
			LocalTokenMinutes: getInt(v, "LOCAL_TOKEN_MINUTES", 720),
			Issuer:            getString(v, "LOCAL_TOKEN_ISSUER", "pos-sync-core"),
		},
		Diag: DiagConfig{
			Addr: getString(v, "DIAG_ADDR", ""),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
