package entity

import "time"

// Tipos de movimiento de stock.
const (
	MovementTypeIn     = "in"     // entrada
	MovementTypeOut    = "out"    // salida (venta)
	MovementTypeAdjust = "adjust" // ajuste
)

// StockMovement representa un movimiento de stock. Referencia siempre un
// producto válido y es el único escritor de deltas sobre Product.StockQuantity.
type StockMovement struct {
	ID        string
	ProductID string
	SaleID    string // vacío si el movimiento no proviene de una venta
	Type      string // in, out, adjust
	Quantity  int    // positivo para in/adjust+, negativo para out
	Reason    string
	CreatedBy string // UserID
	CreatedAt time.Time
}
