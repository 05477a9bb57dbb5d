package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID      uuid.UUID
	BuyerID string
	Status  OrderStatus
	// PaymentStatus is derived: only state machine transitions change it.
	PaymentStatus PaymentStatus

	// External payment provider references. The session id is set once when
	// checkout is initiated, the payment ref once payment succeeds.
	ProviderSessionID  string
	ProviderPaymentRef string

	Subtotal       Money
	TaxAmount      Money
	ShippingAmount Money
	DiscountAmount Money
	TotalAmount    Money

	Items           []OrderLine
	ShippingAddress Address
	TrackingNumber  string

	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderLine is an immutable snapshot of a product at order-commit time.
// Prices and descriptions are copied, not referenced, so the order renders
// correctly even after the catalog entry changes.
type OrderLine struct {
	ProductID uuid.UUID
	SellerID  string
	Quantity  int
	UnitPrice Money
	LineTotal Money

	ProductName  string
	ProductSKU   string
	ProductImage string

	CreatedAt time.Time
}

type Address struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a Address) Empty() bool {
	return a.Line1 == "" && a.City == "" && a.PostalCode == "" && a.Country == ""
}

// TotalsConsistent reports whether the frozen totals still satisfy
// total = subtotal + tax + shipping - discount.
func (o Order) TotalsConsistent() bool {
	want := o.Subtotal.Amount.
		Add(o.TaxAmount.Amount).
		Add(o.ShippingAmount.Amount).
		Sub(o.DiscountAmount.Amount)

	return o.TotalAmount.Amount.Equal(want)
}

// Terminal reports whether no further transitions are permitted.
func (o Order) Terminal() bool {
	switch o.Status {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// HasSeller reports whether the given seller owns at least one line of the order.
func (o Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// LinesSubtotal sums the line totals, used to cross-check frozen totals in tests.
func (o Order) LinesSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.LineTotal.Amount)
	}
	return sum
}
