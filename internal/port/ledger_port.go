package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/grennMind/herbal-orders/internal/domain"
)

// LedgerEntry records a provider event that was applied to an order.
// Entries are created once and never updated.
type LedgerEntry struct {
	ProviderEventID string
	OrderID         uuid.UUID
	EventType       string
	ResultingStatus domain.OrderStatus
	AppliedAt       time.Time
}

// LedgerRepository is the idempotency ledger keyed by provider event id.
// The uniqueness guarantee lives in the storage layer, so concurrent
// deliveries of the same event collapse to exactly one application.
type LedgerRepository interface {
	// Record inserts the entry and reports whether it was newly applied.
	// applied == false means the event id was seen before.
	Record(ctx context.Context, entry LedgerEntry) (applied bool, err error)

	GetEntry(ctx context.Context, providerEventID string) (LedgerEntry, error)
}
