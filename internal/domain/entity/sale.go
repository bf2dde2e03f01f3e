package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Origen de una venta: espejada desde la autoridad o registrada localmente
// mientras la autoridad era inalcanzable (pendiente de reconciliar).
const (
	SaleOriginRemote = "remote"
	SaleOriginLocal  = "local"
)

// Estados de venta.
const (
	SaleStatusCompleted = "completed"
	SaleStatusVoided    = "voided"
)

// Sale representa la cabecera de una venta.
// Invariante: la suma de TotalPrice de sus Items es igual a Subtotal.
type Sale struct {
	ID            string
	UserID        string
	CustomerID    string
	StoreID       string
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod string // cash, card, transfer
	Status        string
	Origin        string // remote | local
	SyncedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Items         []SaleItem
}

// SaleItem representa una línea de venta.
type SaleItem struct {
	ID         string
	SaleID     string
	ProductID  string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
}

// ItemsTotal suma los TotalPrice de las líneas (debe coincidir con Subtotal).
func (s *Sale) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range s.Items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}
