package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
	"github.com/grennMind/herbal-orders/internal/repository"
)

// In-memory fakes for the service tests. Each fake guards its state with a
// mutex so the concurrency tests exercise the same atomicity contract the
// postgres repositories provide.

type fakeOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.Order

	insertErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[uuid.UUID]domain.Order)}
}

func (f *fakeOrders) GetOrder(_ context.Context, orderID uuid.UUID) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, repository.ErrNotFound
	}
	return order, nil
}

func (f *fakeOrders) FindBySessionID(_ context.Context, sessionID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, order := range f.orders {
		if order.ProviderSessionID == sessionID {
			return order, nil
		}
	}
	return domain.Order{}, repository.ErrNotFound
}

func (f *fakeOrders) FindByPaymentRef(_ context.Context, paymentRef string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, order := range f.orders {
		if order.ProviderPaymentRef == paymentRef {
			return order, nil
		}
	}
	return domain.Order{}, repository.ErrNotFound
}

func (f *fakeOrders) SearchOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var result []domain.Order
	for _, order := range f.orders {
		if len(filter.IDs) > 0 && !lo.Contains(filter.IDs, order.ID) {
			continue
		}
		if len(filter.BuyerIDs) > 0 && !lo.Contains(filter.BuyerIDs, order.BuyerID) {
			continue
		}
		if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, order.Status) {
			continue
		}
		if len(filter.SellerIDs) > 0 {
			hasSeller := lo.SomeBy(filter.SellerIDs, order.HasSeller)
			if !hasSeller {
				continue
			}
		}
		result = append(result, order)
	}
	return result, nil
}

func (f *fakeOrders) InsertOrder(_ context.Context, order domain.Order) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return uuid.Nil, f.insertErr
	}

	order.ID = uuid.New()
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	f.orders[order.ID] = order
	return order.ID, nil
}

func (f *fakeOrders) SetProviderSession(_ context.Context, orderID uuid.UUID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	if order.ProviderSessionID != "" {
		return repository.ErrSessionAlreadySet
	}

	order.ProviderSessionID = sessionID
	f.orders[orderID] = order
	return nil
}

func (f *fakeOrders) UpdateTransition(_ context.Context, order domain.Order, from domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.orders[order.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != from {
		return repository.ErrStatusConflict
	}

	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrders) DeleteOrder(_ context.Context, orderID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.orders[orderID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.orders, orderID)
	return nil
}

// fakeStore backs both the inventory and catalog ports from one product map,
// the way the postgres repositories share the products table.
type fakeStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]domain.Product

	reserveCalls []uuid.UUID
	releaseCalls []uuid.UUID
}

func newFakeStore(products ...domain.Product) *fakeStore {
	m := make(map[uuid.UUID]domain.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &fakeStore{products: m}
}

func (f *fakeStore) Reserve(_ context.Context, productID uuid.UUID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	product, ok := f.products[productID]
	if !ok || !product.Active {
		return repository.ErrProductNotFound
	}
	if product.Stock < qty {
		return repository.ErrInsufficientStock
	}

	product.Stock -= qty
	f.products[productID] = product
	f.reserveCalls = append(f.reserveCalls, productID)
	return nil
}

func (f *fakeStore) Release(_ context.Context, productID uuid.UUID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	product, ok := f.products[productID]
	if !ok {
		return repository.ErrProductNotFound
	}

	product.Stock += qty
	f.products[productID] = product
	f.releaseCalls = append(f.releaseCalls, productID)
	return nil
}

func (f *fakeStore) Stock(_ context.Context, productID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	product, ok := f.products[productID]
	if !ok {
		return 0, repository.ErrProductNotFound
	}
	return product.Stock, nil
}

func (f *fakeStore) GetProduct(_ context.Context, productID uuid.UUID) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	product, ok := f.products[productID]
	if !ok {
		return domain.Product{}, repository.ErrProductNotFound
	}
	return product, nil
}

type fakeCarts struct {
	mu    sync.Mutex
	carts map[string]domain.Cart

	clearErr error
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[string]domain.Cart)}
}

func (f *fakeCarts) GetCart(_ context.Context, ownerID string) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cart, ok := f.carts[ownerID]
	if !ok {
		return domain.Cart{OwnerID: ownerID}, nil
	}
	return cart, nil
}

func (f *fakeCarts) AddItem(_ context.Context, ownerID string, item domain.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cart := f.carts[ownerID]
	cart.OwnerID = ownerID
	cart.Items = append(cart.Items, item)
	f.carts[ownerID] = cart
	return nil
}

func (f *fakeCarts) DeleteItem(_ context.Context, ownerID string, productID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cart := f.carts[ownerID]
	before := len(cart.Items)
	cart.Items = lo.Reject(cart.Items, func(item domain.CartItem, _ int) bool {
		return item.ProductID == productID
	})
	f.carts[ownerID] = cart
	return len(cart.Items) < before, nil
}

func (f *fakeCarts) ClearCart(_ context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.carts, ownerID)
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	sessions []port.CheckoutParams

	err error
}

func (f *fakeGateway) CreateSession(_ context.Context, params port.CheckoutParams) (port.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return port.CheckoutSession{}, f.err
	}

	f.sessions = append(f.sessions, params)
	sessionID := fmt.Sprintf("cs_test_%d", len(f.sessions))
	return port.CheckoutSession{
		SessionID:   sessionID,
		RedirectURL: "https://checkout.example.com/" + sessionID,
	}, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]port.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]port.LedgerEntry)}
}

func (f *fakeLedger) Record(_ context.Context, entry port.LedgerEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entries[entry.ProviderEventID]; ok {
		return false, nil
	}

	entry.AppliedAt = time.Now().UTC()
	f.entries[entry.ProviderEventID] = entry
	return true, nil
}

func (f *fakeLedger) GetEntry(_ context.Context, providerEventID string) (port.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[providerEventID]
	if !ok {
		return port.LedgerEntry{}, repository.ErrEntryNotFound
	}
	return entry, nil
}

// fakeTxStores hands the reconciler the same fakes it already holds. The
// fakes are individually atomic, which is enough for these tests: the joint
// rollback path is covered by the repository suite against real postgres.
type fakeTxStores struct {
	orders *fakeOrders
	ledger *fakeLedger
}

func (f *fakeTxStores) InTx(ctx context.Context, fn func(orders port.OrderRepository, ledger port.LedgerRepository) error) error {
	return fn(f.orders, f.ledger)
}
