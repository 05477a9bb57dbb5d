package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the buyer's working set of products before checkout. Quantities
// live here; prices do not — the order builder prices lines from the catalog
// at commit time, never from client or cart state.
type Cart struct {
	OwnerID string
	Items   []CartItem
}

type CartItem struct {
	ProductID uuid.UUID
	Quantity  int

	CreatedAt time.Time
}

// CartLine is a requested order line: what CreateOrder consumes.
type CartLine struct {
	ProductID uuid.UUID
	Quantity  int
}

func (c Cart) Lines() []CartLine {
	lines := make([]CartLine, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
