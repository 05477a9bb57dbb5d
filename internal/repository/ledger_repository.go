package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
)

var ErrEntryNotFound = errors.New("ledger entry not found")

type ledgerRepository struct {
	db DB
}

func NewLedger(db DB) port.LedgerRepository {
	return &ledgerRepository{db: db}
}

// Record relies on the payment_events primary key for exactly-once semantics:
// concurrent inserts of the same provider event id race on the constraint and
// all but one observe applied == false.
func (r *ledgerRepository) Record(ctx context.Context, entry port.LedgerEntry) (bool, error) {
	if entry.ProviderEventID == "" {
		return false, fmt.Errorf("providerEventID is empty")
	}

	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO payment_events (provider_event_id, order_id, event_type, resulting_status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (provider_event_id) DO NOTHING`,
		entry.ProviderEventID, entry.OrderID, entry.EventType, string(entry.ResultingStatus))
	if err != nil {
		return false, fmt.Errorf("insert payment event: %w", err)
	}

	return cmdTag.RowsAffected() > 0, nil
}

func (r *ledgerRepository) GetEntry(ctx context.Context, providerEventID string) (port.LedgerEntry, error) {
	var entry port.LedgerEntry

	if providerEventID == "" {
		return entry, fmt.Errorf("providerEventID is empty")
	}

	var resultingStatus string

	err := r.db.QueryRow(ctx,
		`SELECT provider_event_id, order_id, event_type, resulting_status, applied_at
		 FROM payment_events WHERE provider_event_id = $1`,
		providerEventID).Scan(&entry.ProviderEventID, &entry.OrderID, &entry.EventType, &resultingStatus, &entry.AppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entry, ErrEntryNotFound
		}
		return entry, fmt.Errorf("select payment event: %w", err)
	}

	entry.ResultingStatus, err = domain.ToOrderStatus(resultingStatus)
	if err != nil {
		return entry, fmt.Errorf("domain.ToOrderStatus[%s]: %w", resultingStatus, err)
	}

	return entry, nil
}
