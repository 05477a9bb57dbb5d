package httpx

import (
	"time"

	"github.com/grennMind/herbal-orders/internal/domain"
)

type AddCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CartResponse struct {
	OwnerID string             `json:"owner_id"`
	Items   []CartItemResponse `json:"items"`
}

type CartItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	FromCart        bool              `json:"from_cart,omitempty"`
	Lines           []OrderLineDTO    `json:"lines,omitempty"`
	ShippingAddress domain.Address    `json:"shipping_address"`
}

type OrderLineDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ShipOrderRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

type CheckoutResponse struct {
	RedirectURL string `json:"redirect_url"`
}

type OrderResponse struct {
	ID                 string              `json:"id"`
	BuyerID            string              `json:"buyer_id"`
	Status             string              `json:"status"`
	PaymentStatus      string              `json:"payment_status"`
	ProviderSessionID  string              `json:"provider_session_id,omitempty"`
	ProviderPaymentRef string              `json:"provider_payment_ref,omitempty"`
	Subtotal           string              `json:"subtotal"`
	TaxAmount          string              `json:"tax_amount"`
	ShippingAmount     string              `json:"shipping_amount"`
	DiscountAmount     string              `json:"discount_amount"`
	TotalAmount        string              `json:"total_amount"`
	Currency           string              `json:"currency"`
	Items              []OrderItemResponse `json:"items"`
	ShippingAddress    domain.Address      `json:"shipping_address"`
	TrackingNumber     string              `json:"tracking_number,omitempty"`
	PaidAt             *time.Time          `json:"paid_at,omitempty"`
	ShippedAt          *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

type OrderItemResponse struct {
	ProductID    string `json:"product_id"`
	SellerID     string `json:"seller_id"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	LineTotal    string `json:"line_total"`
	ProductName  string `json:"product_name"`
	ProductSKU   string `json:"product_sku"`
	ProductImage string `json:"product_image,omitempty"`
}

type WebhookResponse struct {
	Outcome string `json:"outcome"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapOrderToResponse(order domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ProductID:    item.ProductID.String(),
			SellerID:     item.SellerID,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice.Amount.StringFixed(2),
			LineTotal:    item.LineTotal.Amount.StringFixed(2),
			ProductName:  item.ProductName,
			ProductSKU:   item.ProductSKU,
			ProductImage: item.ProductImage,
		})
	}

	return OrderResponse{
		ID:                 order.ID.String(),
		BuyerID:            order.BuyerID,
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		ProviderSessionID:  order.ProviderSessionID,
		ProviderPaymentRef: order.ProviderPaymentRef,
		Subtotal:           order.Subtotal.Amount.StringFixed(2),
		TaxAmount:          order.TaxAmount.Amount.StringFixed(2),
		ShippingAmount:     order.ShippingAmount.Amount.StringFixed(2),
		DiscountAmount:     order.DiscountAmount.Amount.StringFixed(2),
		TotalAmount:        order.TotalAmount.Amount.StringFixed(2),
		Currency:           order.TotalAmount.Currency.String(),
		Items:              items,
		ShippingAddress:    order.ShippingAddress,
		TrackingNumber:     order.TrackingNumber,
		PaidAt:             order.PaidAt,
		ShippedAt:          order.ShippedAt,
		DeliveredAt:        order.DeliveredAt,
		CancelledAt:        order.CancelledAt,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}
