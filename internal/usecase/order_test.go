package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/orderpipeline/internal/adapter/risk"
	"github.com/polkiloo/orderpipeline/internal/bus"
	domainErrors "github.com/polkiloo/orderpipeline/internal/domain/errors"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/storage/memory"
	testhelpers "github.com/polkiloo/orderpipeline/internal/test"
)

type orderFixture struct {
	store     *memory.Store
	orders    *testhelpers.OrderRepositoryStub
	risk      *testhelpers.RiskStub
	publisher *testhelpers.PublisherStub
	keys      *testhelpers.IdempotencyStub
	uc        *OrderUseCase
}

func newOrderFixture() *orderFixture {
	store := memory.New()
	f := &orderFixture{
		store:     store,
		orders:    &testhelpers.OrderRepositoryStub{Base: store.Orders()},
		risk:      &testhelpers.RiskStub{Verdict: risk.Verdict{Available: true, Reason: "ok"}},
		publisher: &testhelpers.PublisherStub{},
		keys:      testhelpers.NewIdempotencyStub(),
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	f.uc = NewOrderUseCase(f.orders, f.risk, f.publisher, f.keys, nil, logger, OrderOptions{Topic: "order-events"})
	return f
}

func happyIntent() model.OrderIntent {
	return model.OrderIntent{CustomerID: "CUST-1", ProductID: "P-1", Quantity: 2, TotalAmount: decimal.NewFromInt(100)}
}

func TestOrderUseCaseCreateHappyPath(t *testing.T) {
	f := newOrderFixture()

	order, err := f.uc.Create(context.Background(), happyIntent(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != model.OrderStatusPending || order.ID == "" {
		t.Fatalf("expected pending order with id, got %+v", order)
	}

	stored, err := f.store.Orders().Get(context.Background(), order.ID)
	if err != nil || stored.Status != model.OrderStatusPending {
		t.Fatalf("expected stored pending order, got %+v err=%v", stored, err)
	}

	if f.publisher.Count() != 1 {
		t.Fatalf("expected one published event, got %d", f.publisher.Count())
	}
	msg := f.publisher.Published[0]
	if msg.Topic != "order-events" || msg.Attrs[bus.AttributeEventType] != model.EventTypeOrderCreated {
		t.Fatalf("unexpected publish target %q attrs %v", msg.Topic, msg.Attrs)
	}
	var event model.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("event body is not json: %v", err)
	}
	if event.OrderID != order.ID || event.Quantity != 2 || !event.TotalAmount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestOrderUseCaseCreateFraudRejected(t *testing.T) {
	f := newOrderFixture()
	f.risk.Verdict = risk.Verdict{Fraudulent: true, Reason: "abnormal quantity", Available: true}
	f.orders.InsertFn = func(context.Context, *model.Order) error {
		t.Fatal("insert must not run for rejected order")
		return nil
	}

	intent := model.OrderIntent{CustomerID: "CUST-9", ProductID: "P-1", Quantity: 500, TotalAmount: decimal.NewFromInt(499000)}
	_, err := f.uc.Create(context.Background(), intent, "")

	var rejection *domainErrors.RiskRejectionError
	if !errors.As(err, &rejection) || rejection.Reason != "abnormal quantity" {
		t.Fatalf("expected risk rejection, got %v", err)
	}
	if f.publisher.Count() != 0 {
		t.Fatal("expected no published event")
	}
}

func TestOrderUseCaseCreateFailsOpen(t *testing.T) {
	f := newOrderFixture()
	f.risk.Verdict = risk.Verdict{Reason: risk.UnavailableReason}

	order, err := f.uc.Create(context.Background(), happyIntent(), "")
	if err != nil {
		t.Fatalf("expected order accepted when risk check unavailable, got %v", err)
	}
	if order.Status != model.OrderStatusPending {
		t.Fatalf("unexpected status %s", order.Status)
	}
}

func TestOrderUseCaseCreateValidationSkipsRisk(t *testing.T) {
	f := newOrderFixture()
	intent := happyIntent()
	intent.Quantity = 0

	if _, err := f.uc.Create(context.Background(), intent, ""); !errors.Is(err, domainErrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.risk.Calls != 0 {
		t.Fatal("risk gate must not be called for invalid input")
	}
}

func TestOrderUseCaseCreateRetriesInsertWithUnknownOutcome(t *testing.T) {
	f := newOrderFixture()
	calls := 0
	f.orders.InsertFn = func(ctx context.Context, order *model.Order) error {
		calls++
		err := f.store.Orders().Insert(ctx, order)
		if calls == 1 {
			return errors.New("connection reset after write")
		}
		return err
	}

	order, err := f.uc.Create(context.Background(), happyIntent(), "")
	if err != nil {
		t.Fatalf("expected read-back to accept own write, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two insert attempts, got %d", calls)
	}
	if f.publisher.Count() != 1 {
		t.Fatalf("expected exactly one event for %s", order.ID)
	}
}

func TestOrderUseCaseCreateRecognisesOwnWriteAtStorePrecision(t *testing.T) {
	f := newOrderFixture()
	f.uc.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 123456789, time.UTC) }

	calls := 0
	f.orders.InsertFn = func(ctx context.Context, order *model.Order) error {
		calls++
		if calls > 1 {
			return f.store.Orders().Insert(ctx, order)
		}
		// Stored as a microsecond TIMESTAMPTZ would keep it.
		stored := *order
		stored.CreatedAt = stored.CreatedAt.Round(time.Microsecond)
		stored.UpdatedAt = stored.CreatedAt
		if err := f.store.Orders().Insert(ctx, &stored); err != nil {
			return err
		}
		return errors.New("connection reset after write")
	}

	order, err := f.uc.Create(context.Background(), happyIntent(), "")
	if err != nil {
		t.Fatalf("expected own write to be recognised, got %v", err)
	}
	if order.CreatedAt.Nanosecond()%int(time.Microsecond) != 0 {
		t.Fatalf("expected microsecond creation time, got %v", order.CreatedAt)
	}
	if f.publisher.Count() != 1 {
		t.Fatalf("expected one event, got %d", f.publisher.Count())
	}
}

func TestOrderUseCaseCreateNeverOverwritesForeignRecord(t *testing.T) {
	f := newOrderFixture()
	f.uc.newID = func() string { return "fixed-id" }

	existing := model.NewOrder("fixed-id", model.OrderIntent{CustomerID: "OTHER", ProductID: "P-9", Quantity: 1, TotalAmount: decimal.NewFromInt(1)}, f.uc.now())
	if err := f.store.Orders().Insert(context.Background(), existing); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := f.uc.Create(context.Background(), happyIntent(), ""); !errors.Is(err, domainErrors.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	stored, _ := f.store.Orders().Get(context.Background(), "fixed-id")
	if stored.CustomerID != "OTHER" {
		t.Fatalf("existing record overwritten: %+v", stored)
	}
	if f.publisher.Count() != 0 {
		t.Fatal("expected no event for failed insert")
	}
}

func TestOrderUseCaseCreatePublishFailureLeavesPending(t *testing.T) {
	f := newOrderFixture()
	f.uc.newID = func() string { return "orphan" }
	f.publisher.Err = errors.New("broker down")

	if _, err := f.uc.Create(context.Background(), happyIntent(), ""); err == nil {
		t.Fatal("expected publish failure to surface")
	}
	stored, err := f.store.Orders().Get(context.Background(), "orphan")
	if err != nil || stored.Status != model.OrderStatusPending {
		t.Fatalf("expected order left pending, got %+v err=%v", stored, err)
	}
}

func TestOrderUseCaseCreateStoreFailure(t *testing.T) {
	f := newOrderFixture()
	f.orders.InsertFn = func(context.Context, *model.Order) error { return errors.New("store unavailable") }

	if _, err := f.uc.Create(context.Background(), happyIntent(), ""); err == nil || errors.Is(err, domainErrors.ErrValidation) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if f.publisher.Count() != 0 {
		t.Fatal("expected no event")
	}
}

func TestOrderUseCaseCreateReplaysRequestKey(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	first, err := f.uc.Create(ctx, happyIntent(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.uc.Create(ctx, happyIntent(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected replay to return %s, got %s", first.ID, second.ID)
	}
	if f.publisher.Count() != 1 || f.risk.Calls != 1 {
		t.Fatalf("expected single write, got %d events and %d risk calls", f.publisher.Count(), f.risk.Calls)
	}
}

func TestOrderUseCaseCreateRejectsInFlightDuplicate(t *testing.T) {
	f := newOrderFixture()
	f.keys.Locks["req-2"] = true

	if _, err := f.uc.Create(context.Background(), happyIntent(), "req-2"); !errors.Is(err, domainErrors.ErrDuplicateRequest) {
		t.Fatalf("expected duplicate request, got %v", err)
	}
}

func TestOrderUseCaseCreateReleasesKeyOnFailure(t *testing.T) {
	f := newOrderFixture()
	f.publisher.Err = errors.New("broker down")

	if _, err := f.uc.Create(context.Background(), happyIntent(), "req-3"); err == nil {
		t.Fatal("expected error")
	}
	if f.keys.Locks["req-3"] {
		t.Fatal("expected key released after failure")
	}
	if _, ok := f.keys.Results["req-3"]; ok {
		t.Fatal("failed request must not be remembered")
	}
}

func TestOrderUseCaseCreateFreesClaimAfterSuccess(t *testing.T) {
	f := newOrderFixture()

	order, err := f.uc.Create(context.Background(), happyIntent(), "req-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.keys.Locks["req-5"] {
		t.Fatal("expected claim freed once the result is remembered")
	}
	if f.keys.Results["req-5"] != order.ID {
		t.Fatalf("expected result %s remembered, got %q", order.ID, f.keys.Results["req-5"])
	}
}

func TestOrderUseCaseCreateRememberFailureDoesNotHoldKey(t *testing.T) {
	f := newOrderFixture()
	f.keys.RememberErr = errors.New("redis write failed")

	if _, err := f.uc.Create(context.Background(), happyIntent(), "req-6"); err != nil {
		t.Fatalf("order must succeed when the key cannot be remembered: %v", err)
	}
	if f.keys.Locks["req-6"] {
		t.Fatal("expected claim freed so a retry is not rejected as in flight")
	}
	if _, err := f.uc.Create(context.Background(), happyIntent(), "req-6"); errors.Is(err, domainErrors.ErrDuplicateRequest) {
		t.Fatal("retry rejected as duplicate")
	}
}

func TestOrderUseCaseCreateIdempotencyStoreError(t *testing.T) {
	f := newOrderFixture()
	f.keys.Err = errors.New("redis down")

	if _, err := f.uc.Create(context.Background(), happyIntent(), "req-4"); err == nil {
		t.Fatal("expected error when key store fails")
	}
	if f.risk.Calls != 0 {
		t.Fatal("expected no processing without key store")
	}
}

func TestOrderUseCaseGet(t *testing.T) {
	f := newOrderFixture()
	if _, err := f.uc.Get(context.Background(), "missing"); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
