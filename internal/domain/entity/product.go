package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un producto del catálogo, espejo de la autoridad.
// StockQuantity solo lo mutan los StockMovement (ver stock_movement.go) o el
// merge de sincronización; nadie más escribe deltas de stock.
type Product struct {
	ID            string
	CategoryID    string
	CompanyID     string
	StoreID       string
	SKU           string
	Name          string
	Price         decimal.Decimal // precio de venta
	Cost          decimal.Decimal
	StockQuantity int
	MinStock      int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LowStock reporta si el producto está en o bajo su mínimo.
func (p *Product) LowStock() bool {
	return p.StockQuantity <= p.MinStock
}
