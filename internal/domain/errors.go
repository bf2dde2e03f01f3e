package domain

import "errors"

// Errores de dominio (sin dependencias externas).
//
// La distinción AuthorityRejected / LocalRejected importa: un 401 limpio de la
// autoridad es terminal y nunca cae al verificador local; LocalRejected solo
// aparece cuando ya se intentó el fallback y ninguna fuente aceptó.
var (
	ErrAuthorityRejected   = errors.New("credenciales rechazadas por la autoridad")
	ErrLocalRejected       = errors.New("ninguna fuente aceptó las credenciales (autoridad inalcanzable y sin coincidencia local)")
	ErrSyncConflict        = errors.New("conflicto de restricción durante la sincronización")
	ErrImpersonationDenied = errors.New("cambio de identidad denegado")
	ErrDuplicateIdentity   = errors.New("la identidad ya está registrada")
	ErrNoSession           = errors.New("no hay sesión activa")
	ErrNotActing           = errors.New("no hay identidad delegada activa")
	ErrUserNotFound        = errors.New("usuario no encontrado")
	ErrNotFound            = errors.New("recurso no encontrado")
	ErrInvalidInput        = errors.New("entrada inválida")
	ErrInsufficientStock   = errors.New("stock insuficiente")
)
