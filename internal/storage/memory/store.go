package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/orderpipeline/internal/domain/errors"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/domain/repository"
)

// Store keeps orders and stock in process memory. Every write is a single
// conditional step under the store lock, mirroring a database row update.
type Store struct {
	mu     sync.Mutex
	orders map[string]model.Order
	stock  map[string]int
}

type orderRepository struct {
	store *Store
}

type inventoryRepository struct {
	store *Store
}

// New creates an empty store.
func New() *Store {
	return &Store{
		orders: make(map[string]model.Order),
		stock:  make(map[string]int),
	}
}

// SeedStock sets available stock of products.
func (s *Store) SeedStock(items ...model.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.stock[item.ProductID] = item.Stock
	}
}

// OrderCount reports how many orders are stored.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) Orders() repository.OrderRepository {
	return &orderRepository{store: s}
}

func (s *Store) Inventory() repository.InventoryRepository {
	return &inventoryRepository{store: s}
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

func (r *orderRepository) Insert(ctx context.Context, order *model.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return domainErrors.ErrConditionFailed
	}
	s.orders[order.ID] = *order
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (*model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return &order, nil
}

func (r *orderRepository) TransitionStatus(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("transition %s -> %s not allowed", from, to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok || order.Status != from {
		return domainErrors.ErrConditionFailed
	}
	order.Status = to
	order.UpdatedAt = at.UTC()
	s.orders[id] = order
	return nil
}

func (r *inventoryRepository) Stock(ctx context.Context, productID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stock, ok := s.stock[productID]
	if !ok {
		return 0, domainErrors.ErrNotFound
	}
	return stock, nil
}

func (r *inventoryRepository) Decrement(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("decrement quantity must be positive, got %d", quantity)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stock, ok := s.stock[productID]
	if !ok || stock < quantity {
		return domainErrors.ErrConditionFailed
	}
	s.stock[productID] = stock - quantity
	return nil
}
