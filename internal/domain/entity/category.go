package entity

import "time"

// Category representa una categoría del catálogo, espejo de la autoridad.
type Category struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
