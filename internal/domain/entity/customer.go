package entity

import "time"

// Customer representa un cliente (contraparte de ventas), espejo de la autoridad.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
