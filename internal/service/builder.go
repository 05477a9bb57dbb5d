package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
	"github.com/grennMind/herbal-orders/internal/repository"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrMissingAddress  = errors.New("shipping address is required")
	ErrInvalidItem     = errors.New("invalid cart item")
	ErrForbidden       = errors.New("requester has no access to this order")
	ErrNotPending      = errors.New("order is not pending")
	ErrCheckoutStarted = errors.New("checkout already started for this order")

	// ErrPersistFailed means reservations were compensated and the caller
	// may simply re-attempt the whole order.
	ErrPersistFailed = errors.New("order could not be persisted, retry")
)

// PricingPolicy holds the tax and shipping rules applied at order-commit time.
type PricingPolicy struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	Currency              currency.Unit
}

// Builder turns a validated cart into a committed order, or into nothing at
// all: reservations taken for a failed order are always released.
type Builder struct {
	orders    port.OrderRepository
	inventory port.InventoryRepository
	catalog   port.CatalogRepository
	carts     port.CartRepository
	gateway   port.CheckoutGateway
	pricing   PricingPolicy

	successURL string
	cancelURL  string
}

func NewBuilder(
	orders port.OrderRepository,
	inventory port.InventoryRepository,
	catalog port.CatalogRepository,
	carts port.CartRepository,
	gateway port.CheckoutGateway,
	pricing PricingPolicy,
	successURL, cancelURL string,
) *Builder {
	return &Builder{
		orders:     orders,
		inventory:  inventory,
		catalog:    catalog,
		carts:      carts,
		gateway:    gateway,
		pricing:    pricing,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateOrder validates the requested lines, reserves stock for each of them
// in ascending product-id order, prices the lines from the catalog at this
// instant, and persists the order with its line snapshots. Any failure after
// the first successful reservation releases everything already reserved.
func (b *Builder) CreateOrder(ctx context.Context, buyerID string, lines []domain.CartLine, addr domain.Address) (domain.Order, error) {
	var o domain.Order

	if buyerID == "" {
		return o, fmt.Errorf("buyerID is empty")
	}
	if len(lines) == 0 {
		return o, ErrEmptyCart
	}
	if addr.Empty() {
		return o, ErrMissingAddress
	}

	lines = mergeLines(lines)
	for _, line := range lines {
		if line.Quantity < 1 {
			return o, fmt.Errorf("product %s quantity[%d]: %w", line.ProductID, line.Quantity, ErrInvalidItem)
		}
	}

	// A fixed reservation order across concurrent orders touching
	// overlapping product sets avoids reservation-order livelock.
	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].ProductID[:], lines[j].ProductID[:]) < 0
	})

	items, err := b.priceLines(ctx, lines)
	if err != nil {
		return o, err
	}

	reserved, err := b.reserveAll(ctx, lines)
	if err != nil {
		return o, err
	}

	order := b.assembleOrder(buyerID, items, addr)

	orderID, err := b.orders.InsertOrder(ctx, order)
	if err != nil {
		// Inventory correctness takes precedence over order durability:
		// compensate even though the write, not the reservation, failed.
		b.releaseAll(ctx, reserved)
		return o, fmt.Errorf("orders.InsertOrder: %v: %w", err, ErrPersistFailed)
	}
	order.ID = orderID

	return order, nil
}

// CreateOrderFromCart drains the buyer's stored cart into CreateOrder and
// clears it once the order commits.
func (b *Builder) CreateOrderFromCart(ctx context.Context, buyerID string, addr domain.Address) (domain.Order, error) {
	cart, err := b.carts.GetCart(ctx, buyerID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("carts.GetCart: %w", err)
	}

	order, err := b.CreateOrder(ctx, buyerID, cart.Lines(), addr)
	if err != nil {
		return domain.Order{}, err
	}

	if err := b.carts.ClearCart(ctx, buyerID); err != nil {
		// the order is committed; a stale cart is an inconvenience, not a loss
		slog.Error("failed to clear cart after order commit", "buyer_id", buyerID, "order_id", order.ID, "error", err)
	}

	return order, nil
}

// InitiateCheckout creates a hosted checkout session for a pending order and
// records the session reference exactly once.
func (b *Builder) InitiateCheckout(ctx context.Context, orderID uuid.UUID, buyerID string) (string, error) {
	order, err := b.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("orders.GetOrder: %w", err)
	}

	if order.BuyerID != buyerID {
		return "", ErrForbidden
	}
	if order.Status != domain.OrderStatusPending {
		return "", ErrNotPending
	}
	if order.ProviderSessionID != "" {
		return "", ErrCheckoutStarted
	}

	session, err := b.gateway.CreateSession(ctx, port.CheckoutParams{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		Amount:     order.TotalAmount,
		SuccessURL: b.successURL,
		CancelURL:  b.cancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("gateway.CreateSession: %w", err)
	}

	if err := b.orders.SetProviderSession(ctx, order.ID, session.SessionID); err != nil {
		if errors.Is(err, repository.ErrSessionAlreadySet) {
			return "", ErrCheckoutStarted
		}
		return "", fmt.Errorf("orders.SetProviderSession: %w", err)
	}

	return session.RedirectURL, nil
}

func (b *Builder) priceLines(ctx context.Context, lines []domain.CartLine) ([]domain.OrderLine, error) {
	items := make([]domain.OrderLine, 0, len(lines))

	for _, line := range lines {
		product, err := b.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, ErrInvalidItem)
			}
			return nil, fmt.Errorf("catalog.GetProduct: %w", err)
		}

		if !product.Active {
			return nil, fmt.Errorf("product %s is not active: %w", line.ProductID, ErrInvalidItem)
		}

		// catalog-sourced price at this instant, never the client's
		items = append(items, domain.OrderLine{
			ProductID:    product.ID,
			SellerID:     product.SellerID,
			Quantity:     line.Quantity,
			UnitPrice:    product.Price,
			LineTotal:    product.Price.Mul(line.Quantity),
			ProductName:  product.Name,
			ProductSKU:   product.SKU,
			ProductImage: product.ImageURL,
		})
	}

	return items, nil
}

func (b *Builder) reserveAll(ctx context.Context, lines []domain.CartLine) ([]domain.CartLine, error) {
	var reserved []domain.CartLine

	for _, line := range lines {
		if err := b.inventory.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			b.releaseAll(ctx, reserved)

			if errors.Is(err, repository.ErrInsufficientStock) {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, repository.ErrInsufficientStock)
			}
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, ErrInvalidItem)
			}
			return nil, fmt.Errorf("inventory.Reserve: %w", err)
		}
		reserved = append(reserved, line)
	}

	return reserved, nil
}

// releaseAll compensates reservations in reverse order. Failures are logged
// and swallowed: the compensating path is best-effort, the reservation path
// is authoritative.
func (b *Builder) releaseAll(ctx context.Context, reserved []domain.CartLine) {
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if err := b.inventory.Release(ctx, line.ProductID, line.Quantity); err != nil {
			slog.Error("failed to release reservation",
				"product_id", line.ProductID, "quantity", line.Quantity, "error", err)
		}
	}
}

func (b *Builder) assembleOrder(buyerID string, items []domain.OrderLine, addr domain.Address) domain.Order {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal.Amount)
	}

	tax := subtotal.Mul(b.pricing.TaxRate).Round(2)

	shipping := b.pricing.FlatShippingFee
	if subtotal.GreaterThanOrEqual(b.pricing.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	discount := decimal.Zero
	total := subtotal.Add(tax).Add(shipping).Sub(discount)

	unit := b.pricing.Currency

	return domain.Order{
		BuyerID:         buyerID,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Subtotal:        domain.NewMoney(subtotal, unit),
		TaxAmount:       domain.NewMoney(tax, unit),
		ShippingAmount:  domain.NewMoney(shipping, unit),
		DiscountAmount:  domain.NewMoney(discount, unit),
		TotalAmount:     domain.NewMoney(total, unit),
		Items:           items,
		ShippingAddress: addr,
	}
}

// mergeLines collapses duplicate product references into one line each.
func mergeLines(lines []domain.CartLine) []domain.CartLine {
	byProduct := make(map[uuid.UUID]int, len(lines))
	var order []uuid.UUID

	for _, line := range lines {
		if _, ok := byProduct[line.ProductID]; !ok {
			order = append(order, line.ProductID)
		}
		byProduct[line.ProductID] += line.Quantity
	}

	result := make([]domain.CartLine, 0, len(order))
	for _, id := range order {
		result = append(result, domain.CartLine{ProductID: id, Quantity: byProduct[id]})
	}
	return result
}
