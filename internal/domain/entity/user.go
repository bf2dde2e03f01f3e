package entity

import "time"

// Role es el rol de un usuario. Tipo cerrado: todo branch sobre Role debe ser
// exhaustivo para que agregar un rol sea un cambio verificado en compilación.
type Role string

// Roles válidos para User.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleManager    Role = "manager"
	RoleCashier    Role = "cashier"
	RoleSupervisor Role = "supervisor"
	RoleStaff      Role = "staff"
)

// Valid reporta si el rol es uno de los valores cerrados.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleManager, RoleCashier, RoleSupervisor, RoleStaff:
		return true
	}
	return false
}

// CanImpersonate reporta si el rol puede operar como otra identidad (act-as).
func (r Role) CanImpersonate() bool {
	switch r {
	case RoleManager, RoleSuperAdmin:
		return true
	case RoleCashier, RoleSupervisor, RoleStaff:
		return false
	}
	return false
}

// User representa una identidad del sistema, espejo de la autoridad remota.
// CompanyID/StoreID delimitan visibilidad: cashier -> su tienda, manager ->
// todas las tiendas de su company, super_admin -> sin restricción.
type User struct {
	ID           string
	CompanyID    string
	StoreID      string
	Email        string
	PasswordHash string // bcrypt hash espejado desde la autoridad; nunca texto plano
	Name         string
	Role         Role
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StoreScope delimita las filas visibles para una identidad.
// Campos vacíos significan "sin restricción" en esa dimensión.
type StoreScope struct {
	CompanyID string
	StoreID   string
}

// ScopeFor deriva el alcance de datos de un usuario según su rol.
func ScopeFor(u *User) StoreScope {
	switch u.Role {
	case RoleSuperAdmin:
		return StoreScope{}
	case RoleManager:
		return StoreScope{CompanyID: u.CompanyID}
	case RoleCashier, RoleSupervisor, RoleStaff:
		return StoreScope{CompanyID: u.CompanyID, StoreID: u.StoreID}
	}
	// Rol desconocido: el alcance más restrictivo posible.
	return StoreScope{CompanyID: u.CompanyID, StoreID: u.StoreID}
}
