package repository

import (
	"context"
	"time"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// UserRepository puerto de persistencia para identidades espejadas.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	// UpsertBatch inserta o sobreescribe por ID remoto. Una violación de
	// restricción aborta el lote completo, no solo la fila ofensora.
	UpsertBatch(ctx context.Context, rows []*entity.User) (int, error)
	Count(ctx context.Context) (int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// VerifyCredential compara la credencial contra el hash espejado localmente.
	// Devuelve nil sin error cuando no hay coincidencia o la cuenta está inactiva.
	// Es la ruta de autenticación de respaldo cuando la autoridad es inalcanzable.
	VerifyCredential(ctx context.Context, email, password string) (*entity.User, error)
}
