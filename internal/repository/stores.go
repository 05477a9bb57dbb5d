package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grennMind/herbal-orders/internal/port"
)

type txStores struct {
	pool *pgxpool.Pool
}

// NewTxStores returns a port.TxStores that binds order and ledger
// repositories to one transaction, so a status transition and its
// idempotency record commit together or not at all.
func NewTxStores(pool *pgxpool.Pool) port.TxStores {
	return &txStores{pool: pool}
}

func (s *txStores) InTx(ctx context.Context, fn func(orders port.OrderRepository, ledger port.LedgerRepository) error) error {
	if _, err := withTx(ctx, s.pool, func(tx pgx.Tx) (struct{}, error) {
		return struct{}{}, fn(NewOrder(tx), NewLedger(tx))
	}); err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}
