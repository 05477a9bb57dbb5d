package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrStatusConflict means the conditional status write lost a race:
	// the stored status no longer matches the one the transition read.
	ErrStatusConflict = errors.New("order status conflict")

	ErrSessionAlreadySet = errors.New("checkout session already set")
)

type orderRepository struct {
	db DB
}

func NewOrder(db DB) port.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, buyer_id, status, payment_status, provider_session_id, provider_payment_ref,
	subtotal, tax_amount, shipping_amount, discount_amount, total_amount, currency,
	shipping_address, tracking_number, paid_at, shipped_at, delivered_at, cancelled_at,
	created_at, updated_at`

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) (uuid.UUID, error) {
	if len(order.Items) == 0 {
		return uuid.Nil, errors.New("no items in order")
	}

	if !order.TotalsConsistent() {
		return uuid.Nil, errors.New("order totals are inconsistent")
	}

	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return uuid.Nil, fmt.Errorf("json.Marshal address: %w", err)
	}

	orderID, err := withTx(ctx, r.db, func(tx pgx.Tx) (uuid.UUID, error) {
		var orderID uuid.UUID

		err := tx.QueryRow(ctx,
			`INSERT INTO orders (buyer_id, status, payment_status, provider_session_id,
				subtotal, tax_amount, shipping_amount, discount_amount, total_amount,
				currency, shipping_address)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id`,
			order.BuyerID,
			string(domain.OrderStatusPending),
			string(domain.PaymentStatusPending),
			nilIfEmpty(order.ProviderSessionID),
			order.Subtotal.Amount,
			order.TaxAmount.Amount,
			order.ShippingAmount.Amount,
			order.DiscountAmount.Amount,
			order.TotalAmount.Amount,
			order.TotalAmount.Currency.String(),
			addressJSON,
		).Scan(&orderID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert order: %w", err)
		}

		for _, item := range order.Items {
			_, err := tx.Exec(ctx,
				`INSERT INTO order_items (order_id, product_id, seller_id, quantity,
					unit_price, line_total, product_name, product_sku, product_image)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				orderID, item.ProductID, item.SellerID, item.Quantity,
				item.UnitPrice.Amount, item.LineTotal.Amount,
				item.ProductName, item.ProductSKU, nilIfEmpty(item.ProductImage))
			if err != nil {
				return uuid.Nil, fmt.Errorf("insert order item: %w", err)
			}
		}

		return orderID, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("withTx: %w", err)
	}

	return orderID, nil
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	if orderID == uuid.Nil {
		return domain.Order{}, fmt.Errorf("orderID is empty")
	}

	return r.getOrderWhere(ctx, "id = $1", orderID)
}

func (r *orderRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	if sessionID == "" {
		return domain.Order{}, fmt.Errorf("sessionID is empty")
	}

	return r.getOrderWhere(ctx, "provider_session_id = $1", sessionID)
}

func (r *orderRepository) FindByPaymentRef(ctx context.Context, paymentRef string) (domain.Order, error) {
	if paymentRef == "" {
		return domain.Order{}, fmt.Errorf("paymentRef is empty")
	}

	return r.getOrderWhere(ctx, "provider_payment_ref = $1", paymentRef)
}

func (r *orderRepository) getOrderWhere(ctx context.Context, where string, arg any) (domain.Order, error) {
	var o domain.Order

	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return o, ErrNotFound
		}
		return o, fmt.Errorf("scanOrder: %w", err)
	}

	items, err := r.getOrderItems(ctx, order.ID)
	if err != nil {
		return o, fmt.Errorf("r.getOrderItems: %w", err)
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) getOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	// line money columns share the order's currency
	var currencyCode string
	if err := r.db.QueryRow(ctx, `SELECT currency FROM orders WHERE id = $1`, orderID).Scan(&currencyCode); err != nil {
		return nil, fmt.Errorf("select order currency: %w", err)
	}

	parsedCurrency, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT product_id, seller_id, quantity, unit_price, line_total,
			product_name, product_sku, product_image, created_at
		 FROM order_items WHERE order_id = $1 ORDER BY product_id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderLine
	for rows.Next() {
		var (
			item      domain.OrderLine
			unitPrice decimal.Decimal
			lineTotal decimal.Decimal
			imageURL  *string
		)

		err := rows.Scan(&item.ProductID, &item.SellerID, &item.Quantity, &unitPrice, &lineTotal,
			&item.ProductName, &item.ProductSKU, &imageURL, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		item.UnitPrice = domain.Money{Amount: unitPrice, Currency: parsedCurrency}
		item.LineTotal = domain.Money{Amount: lineTotal, Currency: parsedCurrency}
		item.ProductImage = lo.FromPtr(imageURL)

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return items, nil
}

func (r *orderRepository) SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	var statuses []string
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}

	var createdAfter, createdBefore *time.Time
	if filter.CreatedAt != nil {
		createdAfter = filter.CreatedAt.After
		createdBefore = filter.CreatedAt.Before
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders o
		 WHERE ($1::uuid[] IS NULL OR o.id = ANY($1))
		   AND ($2::text[] IS NULL OR o.buyer_id = ANY($2))
		   AND ($3::text[] IS NULL OR EXISTS (
				SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.seller_id = ANY($3)))
		   AND ($4::text[] IS NULL OR o.status = ANY($4))
		   AND ($5::timestamptz IS NULL OR o.created_at >= $5)
		   AND ($6::timestamptz IS NULL OR o.created_at <= $6)
		 ORDER BY o.created_at DESC`,
		nilSliceIfEmpty(filter.IDs),
		nilSliceIfEmpty(filter.BuyerIDs),
		nilSliceIfEmpty(filter.SellerIDs),
		nilSliceIfEmpty(statuses),
		createdAfter,
		createdBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanOrder: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	for i := range orders {
		items, err := r.getOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, fmt.Errorf("r.getOrderItems: %w", err)
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *orderRepository) SetProviderSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}
	if sessionID == "" {
		return fmt.Errorf("sessionID is empty")
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE orders SET provider_session_id = $2, updated_at = now()
		 WHERE id = $1 AND provider_session_id IS NULL`,
		orderID, sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, orderID); err != nil {
			return fmt.Errorf("r.GetOrder: %w", err)
		}
		return ErrSessionAlreadySet
	}

	return nil
}

// UpdateTransition writes the state-machine output with an optimistic guard on
// the previous status. Totals are deliberately absent from the SET list: they
// are frozen at commit time.
func (r *orderRepository) UpdateTransition(ctx context.Context, order domain.Order, from domain.OrderStatus) error {
	if order.ID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}
	if from == "" {
		return fmt.Errorf("previous status is empty")
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE orders SET
			status = $3,
			payment_status = $4,
			provider_payment_ref = COALESCE($5, provider_payment_ref),
			provider_session_id = COALESCE(provider_session_id, $6),
			tracking_number = COALESCE($7, tracking_number),
			paid_at = $8,
			shipped_at = $9,
			delivered_at = $10,
			cancelled_at = $11,
			updated_at = now()
		 WHERE id = $1 AND status = $2`,
		order.ID,
		string(from),
		string(order.Status),
		string(order.PaymentStatus),
		nilIfEmpty(order.ProviderPaymentRef),
		nilIfEmpty(order.ProviderSessionID),
		nilIfEmpty(order.TrackingNumber),
		order.PaidAt,
		order.ShippedAt,
		order.DeliveredAt,
		order.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("r.GetOrder: %w", err)
		}
		return ErrStatusConflict
	}

	return nil
}

func (r *orderRepository) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	if _, err := withTx(ctx, r.db, func(tx pgx.Tx) (struct{}, error) {
		// order lines are owned by the order and go with it
		cmdTag, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
		if err != nil {
			return struct{}{}, fmt.Errorf("delete order items: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			return struct{}{}, fmt.Errorf("delete order items: %w", ErrNotFound)
		}

		cmdTag, err = tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
		if err != nil {
			return struct{}{}, fmt.Errorf("delete order: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			return struct{}{}, fmt.Errorf("delete order: %w", ErrNotFound)
		}

		return struct{}{}, nil
	}); err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o domain.Order

		status        string
		paymentStatus string
		sessionID     *string
		paymentRef    *string
		tracking      *string
		currencyCode  string
		addressJSON   []byte

		subtotal, tax, shipping, discount, total decimal.Decimal
	)

	err := row.Scan(&o.ID, &o.BuyerID, &status, &paymentStatus, &sessionID, &paymentRef,
		&subtotal, &tax, &shipping, &discount, &total, &currencyCode,
		&addressJSON, &tracking, &o.PaidAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}

	o.Status, err = domain.ToOrderStatus(status)
	if err != nil {
		return o, fmt.Errorf("domain.ToOrderStatus[%s]: %w", status, err)
	}

	o.PaymentStatus, err = domain.ToPaymentStatus(paymentStatus)
	if err != nil {
		return o, fmt.Errorf("domain.ToPaymentStatus[%s]: %w", paymentStatus, err)
	}

	parsedCurrency, err := currency.ParseISO(currencyCode)
	if err != nil {
		return o, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
	}

	o.ProviderSessionID = lo.FromPtr(sessionID)
	o.ProviderPaymentRef = lo.FromPtr(paymentRef)
	o.TrackingNumber = lo.FromPtr(tracking)

	o.Subtotal = domain.Money{Amount: subtotal, Currency: parsedCurrency}
	o.TaxAmount = domain.Money{Amount: tax, Currency: parsedCurrency}
	o.ShippingAmount = domain.Money{Amount: shipping, Currency: parsedCurrency}
	o.DiscountAmount = domain.Money{Amount: discount, Currency: parsedCurrency}
	o.TotalAmount = domain.Money{Amount: total, Currency: parsedCurrency}

	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("json.Unmarshal address: %w", err)
	}

	return o, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return lo.ToPtr(s)
}

func nilSliceIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}
