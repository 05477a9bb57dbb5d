package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
)

type cartRepository struct {
	db DB
}

func NewCart(db DB) port.CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	var c domain.Cart

	if ownerID == "" {
		return c, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.db.Query(ctx,
		`SELECT product_id, quantity, created_at FROM cart_items
		 WHERE owner_id = $1 ORDER BY created_at`,
		ownerID)
	if err != nil {
		return c, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.CreatedAt); err != nil {
			return c, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("rows.Err: %w", err)
	}

	return domain.Cart{
		OwnerID: ownerID,
		Items:   items,
	}, nil
}

func (r *cartRepository) AddItem(ctx context.Context, ownerID string, item domain.CartItem) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}
	if item.Quantity < 1 {
		return fmt.Errorf("quantity[%d] must be at least 1", item.Quantity)
	}

	// adding the same product again accumulates quantity
	_, err := r.db.Exec(ctx,
		`INSERT INTO cart_items (owner_id, product_id, quantity)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (owner_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		ownerID, item.ProductID, item.Quantity)
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}

	return nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, ownerID string, productID uuid.UUID) (bool, error) {
	if ownerID == "" {
		return false, fmt.Errorf("ownerID is empty")
	}

	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM cart_items WHERE owner_id = $1 AND product_id = $2`,
		ownerID, productID)
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", err)
	}

	return cmdTag.RowsAffected() > 0, nil
}

func (r *cartRepository) ClearCart(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}

	return nil
}
