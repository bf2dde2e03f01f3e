package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/pos-sync-core/internal/domain"
	"github.com/jhoicas/pos-sync-core/internal/domain/entity"
	"github.com/jhoicas/pos-sync-core/internal/domain/repository"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

// TxRunner abre la transacción de venta con los repos atados a ella.
// Lo implementa sqlite.TxRunner.
type TxRunner interface {
	RunSale(ctx context.Context, fn func(
		saleRepo repository.SaleRepository,
		products repository.ProductRepository,
		movements repository.StockMovementRepository,
	) error) error
}

// Input de una venta a registrar localmente.
type Input struct {
	CustomerID    string
	PaymentMethod string
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	Items         []ItemInput
}

// ItemInput es una línea solicitada: producto y cantidad.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// RegisterSaleUseCase registra una venta de origen local: cabecera, líneas,
// movimientos de stock de salida y deltas de stock, todo en UNA transacción.
// Es la ruta de escritura offline legítima sobre el espejo; la reconciliación
// con la autoridad ocurre en el siguiente ciclo de sincronización.
type RegisterSaleUseCase struct {
	runner TxRunner
	log    *logger.Logger
}

// NewRegisterSaleUseCase construye el caso de uso.
func NewRegisterSaleUseCase(runner TxRunner, log *logger.Logger) *RegisterSaleUseCase {
	return &RegisterSaleUseCase{runner: runner, log: log.Component("sales")}
}

// Execute registra la venta en nombre del usuario de la sesión activa.
// Los precios se toman del espejo (no del caller) y el stock se valida dentro
// de la transacción: dos ventas concurrentes no pueden vender la misma unidad.
func (uc *RegisterSaleUseCase) Execute(ctx context.Context, user *entity.User, in Input) (*entity.Sale, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: la venta no tiene líneas", domain.ErrInvalidInput)
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: cantidad inválida para producto %s", domain.ErrInvalidInput, it.ProductID)
		}
	}

	now := time.Now()
	sale := &entity.Sale{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		CustomerID:    in.CustomerID,
		StoreID:       user.StoreID,
		Discount:      in.Discount,
		Tax:           in.Tax,
		PaymentMethod: in.PaymentMethod,
		Status:        entity.SaleStatusCompleted,
		Origin:        entity.SaleOriginLocal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := uc.runner.RunSale(ctx, func(
		saleRepo repository.SaleRepository,
		products repository.ProductRepository,
		movements repository.StockMovementRepository,
	) error {
		subtotal := decimal.Zero
		for _, it := range in.Items {
			p, err := products.FindByID(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if p == nil || !p.IsActive {
				return fmt.Errorf("%w: producto %s", domain.ErrNotFound, it.ProductID)
			}
			if p.StockQuantity < it.Quantity {
				return fmt.Errorf("%w: producto %s (disponible %d, pedido %d)",
					domain.ErrInsufficientStock, p.SKU, p.StockQuantity, it.Quantity)
			}

			lineTotal := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
			sale.Items = append(sale.Items, entity.SaleItem{
				ID:         uuid.NewString(),
				SaleID:     sale.ID,
				ProductID:  p.ID,
				Quantity:   it.Quantity,
				UnitPrice:  p.Price,
				TotalPrice: lineTotal,
				CreatedAt:  now,
			})
			subtotal = subtotal.Add(lineTotal)
		}

		sale.Subtotal = subtotal
		sale.Total = subtotal.Sub(sale.Discount).Add(sale.Tax)

		if err := saleRepo.Create(ctx, sale); err != nil {
			return err
		}
		for _, it := range sale.Items {
			mov := &entity.StockMovement{
				ID:        uuid.NewString(),
				ProductID: it.ProductID,
				SaleID:    sale.ID,
				Type:      entity.MovementTypeOut,
				Quantity:  -it.Quantity,
				Reason:    "venta local",
				CreatedBy: user.ID,
				CreatedAt: now,
			}
			if err := movements.Create(ctx, mov); err != nil {
				return err
			}
			if err := products.AdjustStock(ctx, it.ProductID, -it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("sale_id", sale.ID).
		Str("user_id", user.ID).
		Str("total", sale.Total.String()).
		Int("items", len(sale.Items)).
		Msg("venta local registrada")
	return sale, nil
}
