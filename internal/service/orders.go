package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
	"github.com/grennMind/herbal-orders/internal/repository"
)

// Orders serves order reads and the fulfillment transitions that originate
// inside the store (shipping, delivery) rather than at the payment provider.
// Both paths go through the same state machine the reconciler uses.
type Orders struct {
	orders port.OrderRepository

	now func() time.Time
}

func NewOrders(orders port.OrderRepository) *Orders {
	return &Orders{
		orders: orders,
		now:    time.Now,
	}
}

// GetOrder returns the order if the requester is its buyer or a seller with
// at least one line in it.
func (s *Orders) GetOrder(ctx context.Context, orderID uuid.UUID, requesterID string) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	if order.BuyerID != requesterID && !order.HasSeller(requesterID) {
		return domain.Order{}, ErrForbidden
	}

	return order, nil
}

// ListOrders returns the requester's orders: purchases by default, sales when
// asSeller is set.
func (s *Orders) ListOrders(ctx context.Context, requesterID string, asSeller bool) ([]domain.Order, error) {
	filter := domain.OrderFilter{BuyerIDs: []string{requesterID}}
	if asSeller {
		filter = domain.OrderFilter{SellerIDs: []string{requesterID}}
	}

	orders, err := s.orders.SearchOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("orders.SearchOrders: %w", err)
	}

	return orders, nil
}

// MarkShipped applies SellerShipped on behalf of a seller with a line in the
// order.
func (s *Orders) MarkShipped(ctx context.Context, orderID uuid.UUID, sellerID, trackingNumber string) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	if !order.HasSeller(sellerID) {
		return domain.Order{}, ErrForbidden
	}

	return s.apply(ctx, order, domain.Event{
		Kind:           domain.EventSellerShipped,
		TrackingNumber: trackingNumber,
	})
}

// ConfirmDelivery applies DeliveryConfirmed on behalf of the buyer.
func (s *Orders) ConfirmDelivery(ctx context.Context, orderID uuid.UUID, buyerID string) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	if order.BuyerID != buyerID {
		return domain.Order{}, ErrForbidden
	}

	return s.apply(ctx, order, domain.Event{Kind: domain.EventDeliveryConfirmed})
}

func (s *Orders) apply(ctx context.Context, order domain.Order, ev domain.Event) (domain.Order, error) {
	from := order.Status

	next, err := domain.Apply(order, ev, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyInState) {
			return order, nil
		}
		return domain.Order{}, err
	}

	if err := s.orders.UpdateTransition(ctx, next, from); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return domain.Order{}, fmt.Errorf("concurrent update, re-read and retry: %w", err)
		}
		return domain.Order{}, fmt.Errorf("orders.UpdateTransition: %w", err)
	}

	return next, nil
}
