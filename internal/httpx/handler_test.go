package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/httpx"
	"github.com/grennMind/herbal-orders/internal/provider"
	"github.com/grennMind/herbal-orders/internal/service"
)

type memCarts struct {
	carts map[string]domain.Cart
	err   error
}

func newMemCarts() *memCarts {
	return &memCarts{carts: make(map[string]domain.Cart)}
}

func (m *memCarts) GetCart(_ context.Context, ownerID string) (domain.Cart, error) {
	if m.err != nil {
		return domain.Cart{}, m.err
	}
	cart := m.carts[ownerID]
	cart.OwnerID = ownerID
	return cart, nil
}

func (m *memCarts) AddItem(_ context.Context, ownerID string, item domain.CartItem) error {
	if m.err != nil {
		return m.err
	}
	cart := m.carts[ownerID]
	cart.OwnerID = ownerID
	cart.Items = append(cart.Items, item)
	m.carts[ownerID] = cart
	return nil
}

func (m *memCarts) DeleteItem(_ context.Context, ownerID string, productID uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	cart := m.carts[ownerID]
	for i, item := range cart.Items {
		if item.ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			m.carts[ownerID] = cart
			return true, nil
		}
	}
	return false, nil
}

func (m *memCarts) ClearCart(_ context.Context, ownerID string) error {
	delete(m.carts, ownerID)
	return nil
}

func newCartServer(carts *memCarts) http.Handler {
	return httpx.NewRouter(httpx.NewHandler(nil, nil, nil, carts))
}

func doRequest(t *testing.T, server http.Handler, method, target, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestCartEndpoints(t *testing.T) {
	userID := gofakeit.UUID()

	t.Run("empty cart", func(t *testing.T) {
		server := newCartServer(newMemCarts())

		rec := doRequest(t, server, http.MethodGet, "/cart", userID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var cart httpx.CartResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
		assert.Equal(t, userID, cart.OwnerID)
		assert.Empty(t, cart.Items)
	})

	t.Run("add then get then delete", func(t *testing.T) {
		server := newCartServer(newMemCarts())
		productID := uuid.New()

		rec := doRequest(t, server, http.MethodPost, "/cart/items", userID,
			httpx.AddCartItemRequest{ProductID: productID.String(), Quantity: 2})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, server, http.MethodGet, "/cart", userID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var cart httpx.CartResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
		require.Len(t, cart.Items, 1)
		assert.Equal(t, productID.String(), cart.Items[0].ProductID)
		assert.Equal(t, 2, cart.Items[0].Quantity)

		rec = doRequest(t, server, http.MethodDelete, "/cart/items/"+productID.String(), userID, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, server, http.MethodDelete, "/cart/items/"+productID.String(), userID, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing identity header", func(t *testing.T) {
		server := newCartServer(newMemCarts())

		rec := doRequest(t, server, http.MethodGet, "/cart", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var errResp httpx.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.Equal(t, "missing_identity", errResp.Error)
	})

	t.Run("invalid payloads", func(t *testing.T) {
		server := newCartServer(newMemCarts())

		rec := doRequest(t, server, http.MethodPost, "/cart/items", userID,
			httpx.AddCartItemRequest{ProductID: "not-a-uuid", Quantity: 1})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, server, http.MethodPost, "/cart/items", userID,
			httpx.AddCartItemRequest{ProductID: uuid.NewString(), Quantity: 0})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, server, http.MethodDelete, "/cart/items/not-a-uuid", userID, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("storage failure", func(t *testing.T) {
		carts := newMemCarts()
		carts.err = assert.AnError
		server := newCartServer(carts)

		rec := doRequest(t, server, http.MethodGet, "/cart", userID, nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestOrderEndpointValidation(t *testing.T) {
	server := newCartServer(newMemCarts())
	userID := gofakeit.UUID()

	t.Run("order id must be a uuid", func(t *testing.T) {
		for _, target := range []string{
			"/orders/nope",
			"/orders/nope/checkout",
			"/orders/nope/ship",
			"/orders/nope/deliver",
		} {
			method := http.MethodPost
			if target == "/orders/nope" {
				method = http.MethodGet
			}
			rec := doRequest(t, server, method, target, userID, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}
	})

	t.Run("create order rejects invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte("{")))
		req.Header.Set("X-User-ID", userID)

		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("all order endpoints require identity", func(t *testing.T) {
		for _, target := range []string{"/orders", "/orders/" + uuid.NewString()} {
			rec := doRequest(t, server, http.MethodGet, target, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		}
	})
}

// The webhook route never requires the identity header; authenticity comes
// from the signature over the raw body.
func TestWebhookSignatureRejection(t *testing.T) {
	signer := provider.NewSigner("whsec_handler_test")
	reconciler := service.NewReconciler(nil, nil, nil, nil, signer)
	server := httpx.NewRouter(httpx.NewHandler(nil, nil, reconciler, newMemCarts()))

	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{}}`)

	t.Run("missing signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var errResp httpx.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.Equal(t, "bad_signature", errResp.Error)
	})

	t.Run("forged signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("Provider-Signature", provider.NewSigner("whsec_other").Sign(body, time.Now()))

		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stale signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("Provider-Signature", signer.Sign(body, time.Now().Add(-time.Hour)))

		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
