package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
	"github.com/grennMind/herbal-orders/internal/provider"
	"github.com/grennMind/herbal-orders/internal/repository"
)

var (
	ErrUnknownOrder = errors.New("no order matches the provider event")

	// ErrMalformedEvent rejects a payload whose signature verified but whose
	// body cannot be interpreted.
	ErrMalformedEvent = errors.New("malformed provider event")

	// ErrTransient asks the provider to redeliver: the event arrived before
	// the one that would make it valid, or lost a concurrent-write race.
	ErrTransient = errors.New("event cannot be applied yet, redeliver")
)

// Outcome is the reconciler's verdict on an accepted notification.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeIgnored        Outcome = "ignored"
)

// Reconciler consumes signed provider notifications and applies each logical
// event to the order store exactly once, tolerating redelivery and
// out-of-order arrival.
type Reconciler struct {
	stores  port.TxStores
	orders  port.OrderRepository
	ledger  port.LedgerRepository
	builder *Builder
	signer  *provider.Signer

	now func() time.Time
}

func NewReconciler(
	stores port.TxStores,
	orders port.OrderRepository,
	ledger port.LedgerRepository,
	builder *Builder,
	signer *provider.Signer,
) *Reconciler {
	return &Reconciler{
		stores:  stores,
		orders:  orders,
		ledger:  ledger,
		builder: builder,
		signer:  signer,
		now:     time.Now,
	}
}

// eventKinds maps provider event types to state machine events. Types absent
// from the map are acknowledged and ignored: the provider's taxonomy is a
// superset of what this system acts on.
var eventKinds = map[string]domain.EventKind{
	provider.TypeCheckoutCompleted: domain.EventCheckoutCompleted,
	provider.TypeCheckoutExpired:   domain.EventCheckoutCancelled,
	provider.TypePaymentFailed:     domain.EventPaymentFailed,
	provider.TypeChargeRefunded:    domain.EventRefundIssued,
}

// HandleEvent verifies rawBody against sigHeader, deduplicates by provider
// event id, and applies the mapped transition in one durable write together
// with the idempotency ledger record.
func (r *Reconciler) HandleEvent(ctx context.Context, rawBody []byte, sigHeader string) (Outcome, error) {
	now := r.now().UTC()

	// authenticity first: nothing is interpreted, let alone written,
	// before the exact received bytes verify
	if err := r.signer.Verify(rawBody, sigHeader, now); err != nil {
		slog.Warn("webhook signature rejected", "error", err)
		return "", fmt.Errorf("signer.Verify: %w", err)
	}

	env, err := provider.ParseEnvelope(rawBody)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrMalformedEvent)
	}

	// fast path: replayed event ids never touch the order store
	if _, err := r.ledger.GetEntry(ctx, env.ID); err == nil {
		slog.Info("provider event replayed", "event_id", env.ID, "type", env.Type)
		return OutcomeAlreadyApplied, nil
	} else if !errors.Is(err, repository.ErrEntryNotFound) {
		return "", fmt.Errorf("ledger.GetEntry: %v: %w", err, ErrTransient)
	}

	kind, ok := eventKinds[env.Type]
	if !ok {
		slog.Info("ignoring provider event type", "event_id", env.ID, "type", env.Type)
		return OutcomeIgnored, nil
	}

	order, err := r.resolveOrder(ctx, env, kind)
	if err != nil {
		return "", err
	}

	ev := domain.Event{
		Kind:       kind,
		SessionID:  env.Data.SessionID,
		PaymentRef: env.Data.PaymentIntent,
	}

	from := order.Status
	next, err := domain.Apply(order, ev, now)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyInState):
			// a distinct provider event for a state we already hold:
			// ledger it so the redelivery fast path kicks in next time
			if _, err := r.ledger.Record(ctx, port.LedgerEntry{
				ProviderEventID: env.ID,
				OrderID:         order.ID,
				EventType:       env.Type,
				ResultingStatus: order.Status,
			}); err != nil {
				return "", fmt.Errorf("ledger.Record: %v: %w", err, ErrTransient)
			}
			return OutcomeAlreadyApplied, nil

		case errors.Is(err, domain.ErrInvalidTransition) && domain.EventuallyValid(order.Status, kind):
			// out-of-order delivery: the provider's retry policy will bring
			// this event back after its predecessor lands
			slog.Info("deferring out-of-order provider event",
				"event_id", env.ID, "type", env.Type, "order_id", order.ID, "status", order.Status)
			return "", fmt.Errorf("event %s from status %s: %w", kind, order.Status, ErrTransient)

		default:
			slog.Warn("provider event rejected by state machine",
				"event_id", env.ID, "type", env.Type, "order_id", order.ID, "status", order.Status, "error", err)
			return "", err
		}
	}

	var outcome Outcome

	err = r.stores.InTx(ctx, func(orders port.OrderRepository, ledger port.LedgerRepository) error {
		applied, err := ledger.Record(ctx, port.LedgerEntry{
			ProviderEventID: env.ID,
			OrderID:         next.ID,
			EventType:       env.Type,
			ResultingStatus: next.Status,
		})
		if err != nil {
			return fmt.Errorf("ledger.Record: %w", err)
		}

		if !applied {
			// a concurrent delivery won the ledger race
			outcome = OutcomeAlreadyApplied
			return nil
		}

		if err := orders.UpdateTransition(ctx, next, from); err != nil {
			return fmt.Errorf("orders.UpdateTransition: %w", err)
		}

		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// another event moved the order first; redelivery will re-read
			return "", fmt.Errorf("%v: %w", err, ErrTransient)
		}
		return "", fmt.Errorf("stores.InTx: %v: %w", err, ErrTransient)
	}

	if outcome == OutcomeApplied {
		slog.Info("provider event applied",
			"event_id", env.ID, "type", env.Type, "order_id", next.ID,
			"from", from, "to", next.Status)
	}

	return outcome, nil
}

// resolveOrder finds the event's target order by payment ref, session id, or
// the order id echoed back in session metadata. Checkout completion may
// additionally materialize an order from session metadata — the single
// legitimate case of order creation from payment data.
func (r *Reconciler) resolveOrder(ctx context.Context, env provider.Envelope, kind domain.EventKind) (domain.Order, error) {
	if env.Data.PaymentIntent != "" {
		order, err := r.orders.FindByPaymentRef(ctx, env.Data.PaymentIntent)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("orders.FindByPaymentRef: %w", err)
		}
	}

	if env.Data.SessionID != "" {
		order, err := r.orders.FindBySessionID(ctx, env.Data.SessionID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("orders.FindBySessionID: %w", err)
		}
	}

	// the session may have been created before SetProviderSession committed;
	// the order id in metadata recovers it
	if env.Data.Metadata.OrderID != "" {
		orderID, err := uuid.Parse(env.Data.Metadata.OrderID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("metadata order_id[%s]: %w", env.Data.Metadata.OrderID, ErrMalformedEvent)
		}

		order, err := r.orders.GetOrder(ctx, orderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("orders.GetOrder: %w", err)
		}
	}

	if kind == domain.EventCheckoutCompleted {
		return r.materializeFromSession(ctx, env)
	}

	return domain.Order{}, ErrUnknownOrder
}

func (r *Reconciler) materializeFromSession(ctx context.Context, env provider.Envelope) (domain.Order, error) {
	meta := env.Data.Metadata
	if meta.BuyerID == "" || len(meta.Items) == 0 {
		return domain.Order{}, ErrUnknownOrder
	}

	lines := make([]domain.CartLine, 0, len(meta.Items))
	for _, item := range meta.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("metadata product_id[%s]: %w", item.ProductID, ErrMalformedEvent)
		}
		lines = append(lines, domain.CartLine{ProductID: productID, Quantity: item.Quantity})
	}

	slog.Warn("materializing order from checkout session metadata",
		"event_id", env.ID, "session_id", env.Data.SessionID, "buyer_id", meta.BuyerID)

	// the builder path was bypassed; the session carries an address-less
	// digital checkout, so a placeholder address marks it
	order, err := r.builder.CreateOrder(ctx, meta.BuyerID, lines, domain.Address{Line1: "n/a", City: "n/a", PostalCode: "n/a", Country: "n/a"})
	if err != nil {
		return domain.Order{}, fmt.Errorf("builder.CreateOrder: %v: %w", err, ErrTransient)
	}

	if err := r.orders.SetProviderSession(ctx, order.ID, env.Data.SessionID); err != nil {
		return domain.Order{}, fmt.Errorf("orders.SetProviderSession: %v: %w", err, ErrTransient)
	}
	order.ProviderSessionID = env.Data.SessionID

	return order, nil
}
