package provider_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
	"github.com/grennMind/herbal-orders/internal/provider"
)

func checkoutParams() port.CheckoutParams {
	return port.CheckoutParams{
		OrderID:    uuid.New(),
		BuyerID:    "buyer-1",
		Amount:     domain.NewMoney(decimal.RequireFromString("31.59"), currency.USD),
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
	}
}

func TestClient_CreateSession(t *testing.T) {
	ctx := t.Context()

	t.Run("creates a session with metadata", func(t *testing.T) {
		params := checkoutParams()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
			assert.Equal(t, "Bearer sk_test_key", r.Header.Get("Authorization"))

			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "31.59", req["amount"])
			assert.Equal(t, "USD", req["currency"])

			metadata, ok := req["metadata"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, params.OrderID.String(), metadata["order_id"])
			assert.Equal(t, "buyer-1", metadata["buyer_id"])

			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":  "cs_test_1",
				"url": "https://checkout.example.com/cs_test_1",
			})
		}))
		defer srv.Close()

		client := provider.NewClient(srv.URL, "sk_test_key")

		session, err := client.CreateSession(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", session.SessionID)
		assert.Equal(t, "https://checkout.example.com/cs_test_1", session.RedirectURL)
	})

	t.Run("provider error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		client := provider.NewClient(srv.URL, "sk_test_key")

		_, err := client.CreateSession(ctx, checkoutParams())
		require.ErrorContains(t, err, "provider returned 400")
	})

	t.Run("incomplete response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "cs_1"})
		}))
		defer srv.Close()

		client := provider.NewClient(srv.URL, "sk_test_key")

		_, err := client.CreateSession(ctx, checkoutParams())
		require.ErrorContains(t, err, "missing id or url")
	})

	t.Run("negative amount never leaves the process", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))
		defer srv.Close()

		client := provider.NewClient(srv.URL, "sk_test_key")

		params := checkoutParams()
		params.Amount = domain.NewMoney(decimal.RequireFromString("-1"), currency.USD)

		_, err := client.CreateSession(ctx, params)
		require.Error(t, err)
		assert.False(t, called)
	})
}
