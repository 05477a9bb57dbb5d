package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/grennMind/herbal-orders/internal/domain"
)

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (domain.Order, error)

	SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	InsertOrder(ctx context.Context, order domain.Order) (uuid.UUID, error)

	// SetProviderSession records the checkout session reference exactly once.
	SetProviderSession(ctx context.Context, orderID uuid.UUID, sessionID string) error

	// UpdateTransition persists the state-machine output conditionally:
	// the write succeeds only if the stored status still equals from.
	// A lost race surfaces as ErrStatusConflict.
	UpdateTransition(ctx context.Context, order domain.Order, from domain.OrderStatus) error

	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
}
