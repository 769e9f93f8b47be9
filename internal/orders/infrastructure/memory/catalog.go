package memory

import (
	"context"
	"fmt"
	"sync"

	"marketplace-settlement/internal/kernel"
	orders "marketplace-settlement/internal/orders/domain"
)

// Catalog is a static product catalog for tests and local runs.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]orders.Product
}

// NewCatalog constructs a catalog seeded with products.
func NewCatalog(products ...orders.Product) *Catalog {
	c := &Catalog{products: make(map[string]orders.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Put adds or replaces a product.
func (c *Catalog) Put(product orders.Product) {
	c.mu.Lock()
	c.products[product.ID] = product
	c.mu.Unlock()
}

// GetProduct returns a product or ErrNotFound.
func (c *Catalog) GetProduct(ctx context.Context, productID string) (orders.Product, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, ok := c.products[productID]
	if !ok {
		return orders.Product{}, fmt.Errorf("catalog: product %s: %w", productID, kernel.ErrNotFound)
	}
	return product, nil
}
