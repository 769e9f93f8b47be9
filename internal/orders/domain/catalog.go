package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is the catalog view of a sellable item.
type Product struct {
	ID           string          `json:"id"`
	VendorID     string          `json:"vendor_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	StockOnHand  int             `json:"stock_on_hand"`
	VendorActive bool            `json:"vendor_active"`
}

// Catalog resolves products. Unknown products return an error wrapping
// kernel.ErrNotFound.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
}
