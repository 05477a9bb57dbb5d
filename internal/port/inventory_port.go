package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/grennMind/herbal-orders/internal/domain"
)

// InventoryRepository is the only writer of stock counts. Reserve is atomic
// with respect to concurrent callers: the storage layer's conditional update
// is the single serialization point per product.
type InventoryRepository interface {
	// Reserve decrements stock by qty only if at least qty units remain.
	Reserve(ctx context.Context, productID uuid.UUID, qty int) error

	// Release is the compensating inverse of Reserve, used to undo a partial
	// reservation when a multi-line order aborts.
	Release(ctx context.Context, productID uuid.UUID, qty int) error

	Stock(ctx context.Context, productID uuid.UUID) (int, error)
}

type CatalogRepository interface {
	GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error)
}
