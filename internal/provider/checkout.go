package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grennMind/herbal-orders/internal/port"
)

// Client talks to the payment provider's REST API to create hosted checkout
// sessions. Webhooks come back through the reconciler, not through here.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type createSessionRequest struct {
	Amount     string            `json:"amount"`
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata"`
}

type createSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *Client) CreateSession(ctx context.Context, params port.CheckoutParams) (port.CheckoutSession, error) {
	var session port.CheckoutSession

	if params.Amount.IsNegative() {
		return session, fmt.Errorf("amount is negative")
	}

	reqBody := createSessionRequest{
		Amount:     params.Amount.Amount.StringFixed(2),
		Currency:   params.Amount.Currency.String(),
		SuccessURL: params.SuccessURL,
		CancelURL:  params.CancelURL,
		Metadata: map[string]string{
			"order_id": params.OrderID.String(),
			"buyer_id": params.BuyerID,
		},
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return session, fmt.Errorf("json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/checkout/sessions", bytes.NewReader(raw))
	if err != nil {
		return session, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return session, fmt.Errorf("c.HTTP.Do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return session, fmt.Errorf("io.ReadAll: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return session, fmt.Errorf("provider returned %d: %s", resp.StatusCode, body)
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return session, fmt.Errorf("json.Unmarshal: %w", err)
	}

	if out.ID == "" || out.URL == "" {
		return session, fmt.Errorf("provider response missing id or url")
	}

	return port.CheckoutSession{
		SessionID:   out.ID,
		RedirectURL: out.URL,
	}, nil
}
