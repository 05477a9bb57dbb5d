package port

import "context"

// TxStores runs fn against repositories bound to a single transaction.
// The reconciler uses it to commit an order transition and its idempotency
// ledger record in one durable write.
type TxStores interface {
	InTx(ctx context.Context, fn func(orders OrderRepository, ledger LedgerRepository) error) error
}
