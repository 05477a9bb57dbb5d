package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
	"github.com/grennMind/herbal-orders/internal/provider"
	"github.com/grennMind/herbal-orders/internal/repository"
	"github.com/grennMind/herbal-orders/internal/service"
)

// identityHeader carries the authenticated user id. The identity service
// terminates authentication upstream; this core trusts the header it injects.
const identityHeader = "X-User-ID"

const maxWebhookBody = 1 << 20

// Handler handles incoming HTTP requests for the order lifecycle core.
type Handler struct {
	builder    *service.Builder
	orders     *service.Orders
	reconciler *service.Reconciler
	carts      port.CartRepository
}

func NewHandler(builder *service.Builder, orders *service.Orders, reconciler *service.Reconciler, carts port.CartRepository) *Handler {
	return &Handler{
		builder:    builder,
		orders:     orders,
		reconciler: reconciler,
		carts:      carts,
	}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cart_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, mapCartToResponse(cart))
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req AddCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_product_id", err.Error())
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	}

	if err := h.carts.AddItem(r.Context(), userID, domain.CartItem{ProductID: productID, Quantity: req.Quantity}); err != nil {
		writeError(w, http.StatusInternalServerError, "cart_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_product_id", err.Error())
		return
	}

	found, err := h.carts.DeleteItem(r.Context(), userID, productID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cart_error", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "item_not_found", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	var (
		order domain.Order
		err   error
	)

	if req.FromCart {
		order, err = h.builder.CreateOrderFromCart(r.Context(), userID, req.ShippingAddress)
	} else {
		lines := make([]domain.CartLine, 0, len(req.Lines))
		for _, dto := range req.Lines {
			productID, parseErr := uuid.Parse(dto.ProductID)
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_product_id", parseErr.Error())
				return
			}
			lines = append(lines, domain.CartLine{ProductID: productID, Quantity: dto.Quantity})
		}
		order, err = h.builder.CreateOrder(r.Context(), userID, lines, req.ShippingAddress)
	}
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

func (h *Handler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}

	redirectURL, err := h.builder.InitiateCheckout(r.Context(), orderID, userID)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{RedirectURL: redirectURL})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	asSeller := r.URL.Query().Get("role") == "seller"

	orders, err := h.orders.ListOrders(r.Context(), userID, asSeller)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search_error", err.Error())
		return
	}

	result := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, mapOrderToResponse(order))
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}

	var req ShipOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.orders.MarkShipped(r.Context(), orderID, userID, req.TrackingNumber)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}

	order, err := h.orders.ConfirmDelivery(r.Context(), orderID, userID)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// HandleWebhook receives provider notifications. The body is read raw and
// unmodified before anything else: signature verification operates over the
// exact bytes the provider sent.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "body_read_error", err.Error())
		return
	}

	outcome, err := h.reconciler.HandleEvent(r.Context(), rawBody, r.Header.Get("Provider-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrBadSignature), errors.Is(err, provider.ErrStaleTimestamp):
			writeError(w, http.StatusBadRequest, "bad_signature", "")
		case errors.Is(err, service.ErrMalformedEvent):
			writeError(w, http.StatusBadRequest, "malformed_event", "")
		case errors.Is(err, service.ErrUnknownOrder):
			writeError(w, http.StatusNotFound, "unknown_order", "")
		case errors.Is(err, service.ErrTransient):
			// non-2xx makes the provider redeliver later
			writeError(w, http.StatusServiceUnavailable, "retry_later", "")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition", "")
		default:
			slog.Error("webhook handling failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{Outcome: string(outcome)})
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrMissingAddress),
		errors.Is(err, service.ErrInvalidItem),
		errors.Is(err, domain.ErrMissingTracking):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, repository.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", "")
	case errors.Is(err, service.ErrNotPending), errors.Is(err, service.ErrCheckoutStarted),
		errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, repository.ErrStatusConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrPersistFailed):
		writeError(w, http.StatusServiceUnavailable, "retry_later", err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(identityHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_identity", "")
		return "", false
	}
	return userID, true
}

func mapCartToResponse(cart domain.Cart) CartResponse {
	items := make([]CartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, CartItemResponse{
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
		})
	}
	return CartResponse{OwnerID: cart.OwnerID, Items: items}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
