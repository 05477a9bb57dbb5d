package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/grennMind/herbal-orders/internal/port"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type inventoryRepository struct {
	db DB
}

func NewInventory(db DB) port.InventoryRepository {
	return &inventoryRepository{db: db}
}

// Reserve performs the conditional decrement "subtract qty only if current
// stock >= qty" as a single UPDATE, the serialization point for all
// concurrent reservations of the same product.
func (r *inventoryRepository) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	if productID == uuid.Nil {
		return fmt.Errorf("productID is empty")
	}
	if qty < 1 {
		return fmt.Errorf("qty[%d] must be at least 1", qty)
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now()
		 WHERE id = $1 AND active AND stock >= $2`,
		productID, qty)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		// Disambiguate: missing/inactive product vs. not enough stock.
		if _, err := r.Stock(ctx, productID); err != nil {
			return fmt.Errorf("r.Stock: %w", err)
		}
		return ErrInsufficientStock
	}

	return nil
}

func (r *inventoryRepository) Release(ctx context.Context, productID uuid.UUID, qty int) error {
	if productID == uuid.Nil {
		return fmt.Errorf("productID is empty")
	}
	if qty < 1 {
		return fmt.Errorf("qty[%d] must be at least 1", qty)
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`,
		productID, qty)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *inventoryRepository) Stock(ctx context.Context, productID uuid.UUID) (int, error) {
	var stock int

	err := r.db.QueryRow(ctx,
		`SELECT stock FROM products WHERE id = $1 AND active`,
		productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("select stock: %w", err)
	}

	return stock, nil
}
