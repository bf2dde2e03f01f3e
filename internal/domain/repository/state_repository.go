package repository

import "context"

// Claves conocidas del estado durable de la aplicación.
const (
	StateKeyAuthToken  = "auth_token"
	StateKeyAuthUser   = "auth_user"
	StateKeyLastSyncAt = "last_sync_at"
)

// StateRepository puerto clave/valor durable para el estado del núcleo:
// token y sesión serializada, marca del último sync (el throttle sobrevive
// reinicios del proceso).
type StateRepository interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
