package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/grennMind/herbal-orders/internal/domain"
)

type CheckoutParams struct {
	OrderID    uuid.UUID
	BuyerID    string
	Amount     domain.Money
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// CheckoutGateway creates hosted checkout sessions at the payment provider.
type CheckoutGateway interface {
	CreateSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error)
}
