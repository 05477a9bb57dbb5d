package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTransition signals an event that no edge from the current
	// status permits. It is a hard error: it means a reconciliation bug or
	// a corrupted event, not a routine outcome.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyInState signals a re-applied event whose target status the
	// order already holds. Callers treat it as success-as-noop.
	ErrAlreadyInState = errors.New("order already in target status")

	// ErrMissingTracking rejects a shipment event without a tracking number.
	ErrMissingTracking = errors.New("tracking number is required")
)

type EventKind string

const (
	EventCheckoutCompleted EventKind = "checkout_completed"
	EventCheckoutCancelled EventKind = "checkout_cancelled"
	EventPaymentFailed     EventKind = "payment_failed"
	EventSellerShipped     EventKind = "seller_shipped"
	EventDeliveryConfirmed EventKind = "delivery_confirmed"
	EventRefundIssued      EventKind = "refund_issued"
)

// Event is a single input to the order status state machine.
type Event struct {
	Kind EventKind

	// SessionID and PaymentRef accompany EventCheckoutCompleted.
	SessionID  string
	PaymentRef string

	// TrackingNumber accompanies EventSellerShipped.
	TrackingNumber string
}

// eventSources lists the statuses an event may legally fire from.
var eventSources = map[EventKind][]OrderStatus{
	EventCheckoutCompleted: {OrderStatusPending},
	EventCheckoutCancelled: {OrderStatusPending},
	EventPaymentFailed:     {OrderStatusPending, OrderStatusPaid},
	EventSellerShipped:     {OrderStatusPaid},
	EventDeliveryConfirmed: {OrderStatusShipped},
	EventRefundIssued:      {OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped},
}

// eventTargets maps each event to the status it produces.
var eventTargets = map[EventKind]OrderStatus{
	EventCheckoutCompleted: OrderStatusPaid,
	EventCheckoutCancelled: OrderStatusCancelled,
	EventPaymentFailed:     OrderStatusCancelled,
	EventSellerShipped:     OrderStatusShipped,
	EventDeliveryConfirmed: OrderStatusDelivered,
	EventRefundIssued:      OrderStatusRefunded,
}

// Apply is the pure transition function of the order status state machine.
// No I/O, deterministic: timestamps come from the now argument. Both the
// checkout path and the webhook reconciler go through it, so a single edge
// table governs every status change.
func Apply(o Order, ev Event, now time.Time) (Order, error) {
	target, ok := eventTargets[ev.Kind]
	if !ok {
		return o, fmt.Errorf("unknown event kind %q: %w", ev.Kind, ErrInvalidTransition)
	}

	if o.Status == target {
		return o, ErrAlreadyInState
	}

	if !statusIn(o.Status, eventSources[ev.Kind]) {
		return o, fmt.Errorf("event %s from status %s: %w", ev.Kind, o.Status, ErrInvalidTransition)
	}

	if ev.Kind == EventSellerShipped && ev.TrackingNumber == "" {
		return o, ErrMissingTracking
	}

	from := o.Status
	o.Status = target
	o.UpdatedAt = now

	switch target {
	case OrderStatusPaid:
		o.PaymentStatus = PaymentStatusCompleted
		o.PaidAt = &now
		if ev.PaymentRef != "" {
			o.ProviderPaymentRef = ev.PaymentRef
		}
		if ev.SessionID != "" && o.ProviderSessionID == "" {
			o.ProviderSessionID = ev.SessionID
		}

	case OrderStatusCancelled:
		o.CancelledAt = &now
		switch {
		case from == OrderStatusPaid:
			// money already moved, cancellation implies it comes back
			o.PaymentStatus = PaymentStatusRefunded
		case ev.Kind == EventPaymentFailed:
			o.PaymentStatus = PaymentStatusFailed
		}
		// checkout cancellation from pending leaves payment status untouched:
		// no payment ever occurred

	case OrderStatusShipped:
		o.TrackingNumber = ev.TrackingNumber
		o.ShippedAt = &now

	case OrderStatusDelivered:
		o.DeliveredAt = &now

	case OrderStatusRefunded:
		o.PaymentStatus = PaymentStatusRefunded
	}

	return o, nil
}

// EventuallyValid reports whether ev, invalid from the current status, could
// become valid after other events fire first. The reconciler uses it to tell
// out-of-order provider deliveries (ask the provider to retry later) from
// genuinely impossible transitions (terminal rejection).
func EventuallyValid(current OrderStatus, kind EventKind) bool {
	sources, ok := eventSources[kind]
	if !ok {
		return false
	}

	for _, s := range reachableFrom(current) {
		if statusIn(s, sources) {
			return true
		}
	}
	return false
}

func reachableFrom(start OrderStatus) []OrderStatus {
	seen := map[OrderStatus]struct{}{start: {}}
	frontier := []OrderStatus{start}

	var result []OrderStatus
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for kind, sources := range eventSources {
			if !statusIn(current, sources) {
				continue
			}
			next := eventTargets[kind]
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			frontier = append(frontier, next)
			result = append(result, next)
		}
	}

	return result
}

func statusIn(s OrderStatus, list []OrderStatus) bool {
	for _, candidate := range list {
		if s == candidate {
			return true
		}
	}
	return false
}
