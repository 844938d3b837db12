package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/orderpipeline/internal/domain/errors"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/domain/repository"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var newPgxPool = func(ctx context.Context, cfg *pgxpool.Config) (pgxPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Options names the tables and bounds every statement.
type Options struct {
	OrdersTable    string
	InventoryTable string
	QueryTimeout   time.Duration
}

// Storage acts as repository facade backed by PostgreSQL.
type Storage struct {
	pool      pgxPool
	logger    *slog.Logger
	orders    string
	inventory string
	timeout   time.Duration
}

type orderRepository struct {
	storage *Storage
}

type inventoryRepository struct {
	storage *Storage
}

// New creates storage with schema initialization.
func New(ctx context.Context, dsn string, opts Options, logger *slog.Logger) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	storage := newStorage(pool, opts, logger)
	if err := storage.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

func newStorage(pool pgxPool, opts Options, logger *slog.Logger) *Storage {
	return &Storage{
		pool:      pool,
		logger:    logger,
		orders:    pgx.Identifier{opts.OrdersTable}.Sanitize(),
		inventory: pgx.Identifier{opts.InventoryTable}.Sanitize(),
		timeout:   opts.QueryTimeout,
	}
}

// Close releases database resources.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Factory methods for domain repositories.
func (s *Storage) Orders() repository.OrderRepository {
	return &orderRepository{storage: s}
}

func (s *Storage) Inventory() repository.InventoryRepository {
	return &inventoryRepository{storage: s}
}

func (s *Storage) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.orders + ` (
            order_id TEXT PRIMARY KEY,
            customer_id TEXT NOT NULL,
            product_id TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            total_amount NUMERIC NOT NULL,
            status TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS ` + s.inventory + ` (
            product_id TEXT PRIMARY KEY,
            stock INTEGER NOT NULL CHECK (stock >= 0)
        )`,
	}

	err := s.WithinTransaction(ctx, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	s.logger.Info("schema ready", slog.String("orders", s.orders), slog.String("inventory", s.inventory))
	return nil
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// --- OrderRepository implementation ---

func (r *orderRepository) Insert(ctx context.Context, order *model.Order) error {
	ctx, cancel := r.storage.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO ` + r.storage.orders + ` (order_id, customer_id, product_id, quantity, total_amount, status, created_at, updated_at)
                   VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
                   ON CONFLICT (order_id) DO NOTHING`
	tag, err := r.storage.pool.Exec(ctx, query,
		order.ID, order.CustomerID, order.ProductID, order.Quantity,
		order.TotalAmount.String(), string(order.Status), order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrConditionFailed
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (*model.Order, error) {
	ctx, cancel := r.storage.withTimeout(ctx)
	defer cancel()

	query := `SELECT order_id, customer_id, product_id, quantity, total_amount::text, status, created_at, updated_at
                   FROM ` + r.storage.orders + ` WHERE order_id=$1`
	var (
		order  model.Order
		amount string
		status string
	)
	err := r.storage.pool.QueryRow(ctx, query, id).Scan(
		&order.ID, &order.CustomerID, &order.ProductID, &order.Quantity,
		&amount, &status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.TotalAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("decode total amount: %w", err)
	}
	order.Status = model.OrderStatus(status)
	return &order, nil
}

func (r *orderRepository) TransitionStatus(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("transition %s -> %s not allowed", from, to)
	}

	ctx, cancel := r.storage.withTimeout(ctx)
	defer cancel()

	query := `UPDATE ` + r.storage.orders + ` SET status=$1, updated_at=$2 WHERE order_id=$3 AND status=$4`
	tag, err := r.storage.pool.Exec(ctx, query, string(to), at.UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrConditionFailed
	}
	return nil
}

// --- InventoryRepository implementation ---

func (r *inventoryRepository) Stock(ctx context.Context, productID string) (int, error) {
	ctx, cancel := r.storage.withTimeout(ctx)
	defer cancel()

	query := `SELECT stock FROM ` + r.storage.inventory + ` WHERE product_id=$1`
	var stock int
	if err := r.storage.pool.QueryRow(ctx, query, productID).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domainErrors.ErrNotFound
		}
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

func (r *inventoryRepository) Decrement(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("decrement quantity must be positive, got %d", quantity)
	}

	ctx, cancel := r.storage.withTimeout(ctx)
	defer cancel()

	query := `UPDATE ` + r.storage.inventory + ` SET stock = stock - $1 WHERE product_id=$2 AND stock >= $1`
	tag, err := r.storage.pool.Exec(ctx, query, quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrConditionFailed
	}
	return nil
}

// WithinTransaction executes function inside transaction boundary.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
