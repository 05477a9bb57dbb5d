package provider

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Event types this system acts on. The provider's taxonomy is a superset;
// anything else is acknowledged and ignored.
const (
	TypeCheckoutCompleted = "checkout.session.completed"
	TypeCheckoutExpired   = "checkout.session.expired"
	TypePaymentFailed     = "payment_intent.payment_failed"
	TypeChargeRefunded    = "charge.refunded"
)

// Envelope is the outer shape of every provider notification.
type Envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data EventData       `json:"data"`
	Raw  json.RawMessage `json:"-"`
}

// EventData carries the object the event describes. Session fields are set
// for checkout.* events, PaymentIntent for payment/charge events.
type EventData struct {
	SessionID     string          `json:"session_id"`
	PaymentIntent string          `json:"payment_intent"`
	AmountTotal   decimal.Decimal `json:"amount_total"`
	Currency      string          `json:"currency"`
	Metadata      Metadata        `json:"metadata"`
}

// Metadata is attached by us at session creation and echoed back by the
// provider. Items is present only when the session was created outside the
// order builder, and enables order materialization from payment data.
type Metadata struct {
	OrderID string         `json:"order_id"`
	BuyerID string         `json:"buyer_id"`
	Items   []MetadataItem `json:"items,omitempty"`
}

type MetadataItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("json.Unmarshal: %w", err)
	}

	if env.ID == "" {
		return env, fmt.Errorf("event id is empty")
	}
	if env.Type == "" {
		return env, fmt.Errorf("event type is empty")
	}

	env.Raw = raw
	return env, nil
}
