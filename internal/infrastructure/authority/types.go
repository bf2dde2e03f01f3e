package authority

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
)

// ── Errores tipados ───────────────────────────────────────────────────────────

// RequestError clasifica los fallos del cliente de autoridad.
// StatusCode == 0 significa fallo de capa de red (conexión rechazada, timeout,
// DNS); cualquier otro valor es una respuesta de la autoridad con ese status.
// La distinción alimenta el fallback del verificador de credenciales y del
// monitor de salud.
type RequestError struct {
	Op         string // operación que falló: login, pull_all, health...
	StatusCode int
	Message    string // cuerpo de error de la autoridad, si lo hubo
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("authority %s: fallo de red: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("authority %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// NetworkLevel reporta si el fallo fue de capa de red (sin respuesta de la autoridad).
func (e *RequestError) NetworkLevel() bool { return e.StatusCode == 0 }

// IsNetwork reporta si err es un fallo de capa de red del cliente de autoridad.
func IsNetwork(err error) bool {
	var re *RequestError
	return asRequestError(err, &re) && re.NetworkLevel()
}

// StatusCode extrae el status HTTP de un error del cliente (0 si no aplica).
func StatusCode(err error) int {
	var re *RequestError
	if asRequestError(err, &re) {
		return re.StatusCode
	}
	return 0
}

// ── DTOs de transporte ────────────────────────────────────────────────────────

// HealthStatus respuesta de GET /health.
type HealthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// DatabaseOK reporta si la autoridad declara su base de datos operativa.
func (h *HealthStatus) DatabaseOK() bool {
	return h.Database == "ok" || h.Database == "connected"
}

// RegisterPayload datos de registro contra la autoridad.
type RegisterPayload struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	StoreID   string `json:"store_id,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User  wireUser `json:"user"`
	Token string   `json:"token"`
}

type registerResponse struct {
	User  wireUser `json:"user"`
	Token string   `json:"token"`
}

type profileResponse struct {
	User wireUser `json:"user"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e errorResponse) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// ── Espejo: snapshot de sincronización ────────────────────────────────────────

// Snapshot es el dataset completo devuelto por GET /sync/all, ya convertido
// a entidades de dominio.
type Snapshot struct {
	Users      []*entity.User
	Categories []*entity.Category
	Products   []*entity.Product
	Customers  []*entity.Customer
	Sales      []*entity.Sale
}

type wireSnapshot struct {
	Users      []wireUser     `json:"users"`
	Products   []wireProduct  `json:"products"`
	Categories []wireCategory `json:"categories"`
	Customers  []wireCustomer `json:"customers"`
	Sales      []wireSale     `json:"sales"`
}

func (w *wireSnapshot) toDomain() *Snapshot {
	snap := &Snapshot{}
	for _, u := range w.Users {
		snap.Users = append(snap.Users, u.toEntity())
	}
	for _, c := range w.Categories {
		snap.Categories = append(snap.Categories, c.toEntity())
	}
	for _, p := range w.Products {
		snap.Products = append(snap.Products, p.toEntity())
	}
	for _, c := range w.Customers {
		snap.Customers = append(snap.Customers, c.toEntity())
	}
	for _, s := range w.Sales {
		snap.Sales = append(snap.Sales, s.toEntity())
	}
	return snap
}

type wireUser struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	StoreID      string     `json:"store_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash,omitempty"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (w wireUser) toEntity() *entity.User {
	return &entity.User{
		ID:           w.ID,
		CompanyID:    w.CompanyID,
		StoreID:      w.StoreID,
		Email:        w.Email,
		PasswordHash: w.PasswordHash,
		Name:         w.Name,
		Role:         entity.Role(w.Role),
		IsActive:     w.IsActive,
		LastLoginAt:  w.LastLoginAt,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

type wireCategory struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w wireCategory) toEntity() *entity.Category {
	return &entity.Category{ID: w.ID, Name: w.Name, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt}
}

type wireProduct struct {
	ID            string          `json:"id"`
	CategoryID    string          `json:"category_id"`
	CompanyID     string          `json:"company_id"`
	StoreID       string          `json:"store_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Cost          decimal.Decimal `json:"cost"`
	StockQuantity int             `json:"stock_quantity"`
	MinStock      int             `json:"min_stock"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (w wireProduct) toEntity() *entity.Product {
	return &entity.Product{
		ID:            w.ID,
		CategoryID:    w.CategoryID,
		CompanyID:     w.CompanyID,
		StoreID:       w.StoreID,
		SKU:           w.SKU,
		Name:          w.Name,
		Price:         w.Price,
		Cost:          w.Cost,
		StockQuantity: w.StockQuantity,
		MinStock:      w.MinStock,
		IsActive:      w.IsActive,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

type wireCustomer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w wireCustomer) toEntity() *entity.Customer {
	return &entity.Customer{ID: w.ID, Name: w.Name, Email: w.Email, Phone: w.Phone, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt}
}

type wireSale struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	CustomerID    string          `json:"customer_id"`
	StoreID       string          `json:"store_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []wireSaleItem  `json:"items"`
}

type wireSaleItem struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (w wireSale) toEntity() *entity.Sale {
	s := &entity.Sale{
		ID:            w.ID,
		UserID:        w.UserID,
		CustomerID:    w.CustomerID,
		StoreID:       w.StoreID,
		Subtotal:      w.Subtotal,
		Discount:      w.Discount,
		Tax:           w.Tax,
		Total:         w.Total,
		PaymentMethod: w.PaymentMethod,
		Status:        w.Status,
		Origin:        entity.SaleOriginRemote,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
	for _, it := range w.Items {
		s.Items = append(s.Items, entity.SaleItem{
			ID:         it.ID,
			SaleID:     w.ID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice,
			CreatedAt:  it.CreatedAt,
		})
	}
	return s
}
