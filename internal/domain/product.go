package domain

import (
	"github.com/google/uuid"
)

// Product is the catalog view the order core needs: price, stock and the
// descriptive fields frozen into order lines. Stock is mutated only through
// the inventory repository's atomic operations.
type Product struct {
	ID       uuid.UUID
	SellerID string
	Name     string
	SKU      string
	ImageURL string
	Price    Money
	Stock    int
	Active   bool
}
