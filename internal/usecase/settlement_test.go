package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/orderpipeline/internal/domain/errors"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/storage/memory"
	testhelpers "github.com/polkiloo/orderpipeline/internal/test"
)

func newSettlement(orders *testhelpers.OrderRepositoryStub, inventory *testhelpers.InventoryRepositoryStub) *SettlementUseCase {
	return NewSettlementUseCase(orders, inventory, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func seedOrder(t *testing.T, store *memory.Store, id, productID string, quantity int) model.OrderEvent {
	t.Helper()
	order := model.NewOrder(id, model.OrderIntent{
		CustomerID:  "CUST-1",
		ProductID:   productID,
		Quantity:    quantity,
		TotalAmount: decimal.NewFromInt(int64(quantity) * 50),
	}, time.Now())
	if err := store.Orders().Insert(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return model.NewOrderCreatedEvent(order)
}

func memoryStubs(store *memory.Store) (*testhelpers.OrderRepositoryStub, *testhelpers.InventoryRepositoryStub) {
	return &testhelpers.OrderRepositoryStub{Base: store.Orders()}, &testhelpers.InventoryRepositoryStub{Base: store.Inventory()}
}

func assertOrder(t *testing.T, store *memory.Store, id string, want model.OrderStatus) {
	t.Helper()
	order, err := store.Orders().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	if order.Status != want {
		t.Fatalf("order %s: expected %s, got %s", id, want, order.Status)
	}
}

func assertStock(t *testing.T, store *memory.Store, productID string, want int) {
	t.Helper()
	stock, err := store.Inventory().Stock(context.Background(), productID)
	if err != nil {
		t.Fatalf("get stock %s: %v", productID, err)
	}
	if stock != want {
		t.Fatalf("stock %s: expected %d, got %d", productID, want, stock)
	}
}

func TestSettlementConfirmsWhenStockSuffices(t *testing.T) {
	store := memory.New()
	store.SeedStock(model.InventoryItem{ProductID: "P-1", Stock: 10})
	event := seedOrder(t, store, "o-1", "P-1", 2)

	status, err := newSettlement(memoryStubs(store)).Settle(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != model.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", status)
	}
	assertOrder(t, store, "o-1", model.OrderStatusConfirmed)
	assertStock(t, store, "P-1", 8)
}

func TestSettlementInsufficientStockLeavesInventory(t *testing.T) {
	store := memory.New()
	store.SeedStock(model.InventoryItem{ProductID: "P-3", Stock: 5})
	event := seedOrder(t, store, "o-3", "P-3", 10)

	orders, inventory := memoryStubs(store)
	inventory.DecrementFn = func(context.Context, string, int) error {
		t.Fatal("decrement must not run when stock is short")
		return nil
	}

	status, err := newSettlement(orders, inventory).Settle(context.Background(), event)
	if err != nil {
		t.Fatalf("insufficient stock must not be a failure: %v", err)
	}
	if status != model.OrderStatusFailedInsufficientStock {
		t.Fatalf("unexpected status %s", status)
	}
	assertOrder(t, store, "o-3", model.OrderStatusFailedInsufficientStock)
	assertStock(t, store, "P-3", 5)
}

func TestSettlementUnknownProductCountsAsEmpty(t *testing.T) {
	store := memory.New()
	event := seedOrder(t, store, "o-4", "P-404", 1)

	status, err := newSettlement(memoryStubs(store)).Settle(context.Background(), event)
	if err != nil || status != model.OrderStatusFailedInsufficientStock {
		t.Fatalf("expected insufficient stock, got %s err=%v", status, err)
	}
}

func TestSettlementLostDecrementRace(t *testing.T) {
	store := memory.New()
	store.SeedStock(model.InventoryItem{ProductID: "P-2", Stock: 1})
	event := seedOrder(t, store, "o-5", "P-2", 1)

	orders, inventory := memoryStubs(store)
	inventory.StockFn = func(context.Context, string) (int, error) {
		// Another settlement takes the last unit between read and write.
		if err := store.Inventory().Decrement(context.Background(), "P-2", 1); err != nil {
			t.Fatalf("concurrent decrement: %v", err)
		}
		return 1, nil
	}

	status, err := newSettlement(orders, inventory).Settle(context.Background(), event)
	if err != nil || status != model.OrderStatusFailedInsufficientStock {
		t.Fatalf("expected insufficient stock after lost race, got %s err=%v", status, err)
	}
	assertStock(t, store, "P-2", 0)
}

func TestSettlementRedeliveryIsNoop(t *testing.T) {
	store := memory.New()
	store.SeedStock(model.InventoryItem{ProductID: "P-1", Stock: 10})
	event := seedOrder(t, store, "o-6", "P-1", 3)
	uc := newSettlement(memoryStubs(store))

	for i := 0; i < 3; i++ {
		status, err := uc.Settle(context.Background(), event)
		if err != nil || status != model.OrderStatusConfirmed {
			t.Fatalf("delivery %d: got %s err=%v", i+1, status, err)
		}
	}
	assertStock(t, store, "P-1", 7)
}

func TestSettlementConcurrentTransition(t *testing.T) {
	store := memory.New()
	store.SeedStock(model.InventoryItem{ProductID: "P-1", Stock: 10})
	event := seedOrder(t, store, "o-7", "P-1", 1)

	orders, inventory := memoryStubs(store)
	orders.TransitionStatusFn = func(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error {
		if err := store.Orders().TransitionStatus(ctx, id, from, model.OrderStatusConfirmed, at); err != nil {
			t.Fatalf("concurrent transition: %v", err)
		}
		return store.Orders().TransitionStatus(ctx, id, from, to, at)
	}

	status, err := newSettlement(orders, inventory).Settle(context.Background(), event)
	if err != nil || status != model.OrderStatusConfirmed {
		t.Fatalf("expected winner status, got %s err=%v", status, err)
	}
}

func TestSettlementPropagatesInfraFailures(t *testing.T) {
	boom := errors.New("store unreachable")
	cases := []struct {
		name string
		edit func(*testhelpers.OrderRepositoryStub, *testhelpers.InventoryRepositoryStub)
	}{
		{"get order", func(o *testhelpers.OrderRepositoryStub, _ *testhelpers.InventoryRepositoryStub) {
			o.GetFn = func(context.Context, string) (*model.Order, error) { return nil, boom }
		}},
		{"read stock", func(_ *testhelpers.OrderRepositoryStub, i *testhelpers.InventoryRepositoryStub) {
			i.StockFn = func(context.Context, string) (int, error) { return 0, boom }
		}},
		{"decrement", func(_ *testhelpers.OrderRepositoryStub, i *testhelpers.InventoryRepositoryStub) {
			i.DecrementFn = func(context.Context, string, int) error { return boom }
		}},
		{"transition", func(o *testhelpers.OrderRepositoryStub, _ *testhelpers.InventoryRepositoryStub) {
			o.TransitionStatusFn = func(context.Context, string, model.OrderStatus, model.OrderStatus, time.Time) error { return boom }
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.New()
			store.SeedStock(model.InventoryItem{ProductID: "P-1", Stock: 10})
			event := seedOrder(t, store, "o-err", "P-1", 1)
			orders, inventory := memoryStubs(store)
			tc.edit(orders, inventory)

			if _, err := newSettlement(orders, inventory).Settle(context.Background(), event); !errors.Is(err, boom) {
				t.Fatalf("expected infra error to propagate, got %v", err)
			}
		})
	}
}

func TestSettlementMissingOrderIsRetried(t *testing.T) {
	store := memory.New()
	_, err := newSettlement(memoryStubs(store)).Settle(context.Background(), model.OrderEvent{OrderID: "ghost", ProductID: "P-1", Quantity: 1})
	if !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found to propagate, got %v", err)
	}
}

func TestSettlementConcurrentRaceForLastUnit(t *testing.T) {
	store := memory.New()
	store.SeedStock(model.InventoryItem{ProductID: "P-2", Stock: 1})
	events := []model.OrderEvent{
		seedOrder(t, store, "race-a", "P-2", 1),
		seedOrder(t, store, "race-b", "P-2", 1),
	}
	uc := newSettlement(memoryStubs(store))

	statuses := make([]model.OrderStatus, len(events))
	var wg sync.WaitGroup
	for i, ev := range events {
		wg.Add(1)
		go func(i int, ev model.OrderEvent) {
			defer wg.Done()
			status, err := uc.Settle(context.Background(), ev)
			if err != nil {
				t.Errorf("settle %s: %v", ev.OrderID, err)
			}
			statuses[i] = status
		}(i, ev)
	}
	wg.Wait()

	confirmed := 0
	for _, s := range statuses {
		if s == model.OrderStatusConfirmed {
			confirmed++
		} else if s != model.OrderStatusFailedInsufficientStock {
			t.Fatalf("unexpected status %s", s)
		}
	}
	if confirmed != 1 {
		t.Fatalf("expected exactly one confirmed order, got %d", confirmed)
	}
	assertStock(t, store, "P-2", 0)
}

func TestSettlementNeverOversells(t *testing.T) {
	const initial = 25
	store := memory.New()
	store.SeedStock(model.InventoryItem{ProductID: "P-9", Stock: initial})

	var events []model.OrderEvent
	for i := 0; i < 40; i++ {
		events = append(events, seedOrder(t, store, fmt.Sprintf("o-%02d", i), "P-9", i%3+1))
	}
	uc := newSettlement(memoryStubs(store))

	settleAll := func() {
		var wg sync.WaitGroup
		for _, ev := range events {
			wg.Add(1)
			go func(ev model.OrderEvent) {
				defer wg.Done()
				if _, err := uc.Settle(context.Background(), ev); err != nil {
					t.Errorf("settle %s: %v", ev.OrderID, err)
				}
			}(ev)
		}
		wg.Wait()
	}
	settleAll()
	// Redelivery of every event after settlement.
	settleAll()

	sold := 0
	for _, ev := range events {
		order, err := store.Orders().Get(context.Background(), ev.OrderID)
		if err != nil {
			t.Fatalf("get %s: %v", ev.OrderID, err)
		}
		if !order.Status.Terminal() {
			t.Fatalf("order %s not settled", ev.OrderID)
		}
		if order.Status == model.OrderStatusConfirmed {
			sold += order.Quantity
		}
	}
	if sold > initial {
		t.Fatalf("oversold: %d > %d", sold, initial)
	}
	assertStock(t, store, "P-9", initial-sold)
}
