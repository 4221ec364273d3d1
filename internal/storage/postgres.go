package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/and161185/imagify/internal/errs"
	"github.com/and161185/imagify/internal/model"
	"github.com/and161185/imagify/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStorage struct {
	pool *pgxpool.Pool
	db   querier
}

func (store *PostgresStorage) initSchema(ctx context.Context) error {
	const initSchemaQuery = `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		credit_balance BIGINT NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		user_id INT NOT NULL REFERENCES users(id),
		plan_id TEXT NOT NULL,
		amount NUMERIC(12, 2) NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'CREATED',
		credits BIGINT NOT NULL DEFAULT 0,
		paid_at TIMESTAMPTZ,
		checked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	ALTER TABLE orders ADD COLUMN IF NOT EXISTS checked_at TIMESTAMPTZ;
	CREATE INDEX IF NOT EXISTS orders_status_created_at_idx ON orders (status, created_at);`

	_, err := store.db.Exec(ctx, initSchemaQuery)
	return err
}

func NewPostgreStorage(ctx context.Context, databaseURI string) (*PostgresStorage, error) {
	db, err := pgxpool.New(ctx, databaseURI)
	if err != nil {
		return nil, err
	}

	storage := &PostgresStorage{pool: db, db: db}

	if err := storage.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := storage.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (store *PostgresStorage) Ping(ctx context.Context) error {
	return store.pool.Ping(ctx)
}

func (store *PostgresStorage) Close() {
	store.pool.Close()
}

// InTx runs fn against a storage bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (store *PostgresStorage) InTx(ctx context.Context, fn func(tx orders.Store) error) error {
	return pgx.BeginFunc(ctx, store.db, func(tx pgx.Tx) error {
		return fn(&PostgresStorage{pool: store.pool, db: tx})
	})
}

func (store *PostgresStorage) CreateUser(ctx context.Context, user model.User, passwordHash string) (int, error) {
	const insertUserQuery = `
		INSERT INTO users (name, email, password_hash, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int
	err := store.db.QueryRow(ctx, insertUserQuery, user.Name, user.Email, passwordHash, user.Phone).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, errs.ErrEmailAlreadyExists
		}
		return 0, fmt.Errorf("create user: %w", err)
	}

	return id, nil
}

func (s *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (model.User, string, error) {
	const query = `
		SELECT id, name, email, phone, credit_balance, created_at, password_hash
		FROM users WHERE email = $1`

	var user model.User
	var hash string

	err := s.db.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.CreditBalance, &user.CreatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, "", errs.ErrUserNotFound
		}
		return model.User{}, "", fmt.Errorf("get user by email: %w", err)
	}

	return user, hash, nil
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, id int) (model.User, error) {
	const query = `
		SELECT id, name, email, phone, credit_balance, created_at
		FROM users WHERE id = $1`

	var user model.User

	err := s.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.CreditBalance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, errs.ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

// AddCredits increments the balance in SQL so concurrent settlements for the
// same user never lose an update.
func (s *PostgresStorage) AddCredits(ctx context.Context, userID int, amount int64) (int64, error) {
	const query = `
		UPDATE users
		SET credit_balance = credit_balance + $2
		WHERE id = $1
		RETURNING credit_balance`

	var balance int64
	err := s.db.QueryRow(ctx, query, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrUserNotFound
		}
		return 0, fmt.Errorf("add credits: %w", err)
	}

	return balance, nil
}

const orderColumns = `order_id, user_id, plan_id, amount, currency, status, credits, paid_at, created_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.PlanID, &o.Amount, &o.Currency, &o.Status, &o.Credits, &o.PaidAt, &o.CreatedAt)
	return o, err
}

func (s *PostgresStorage) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	order, err := scanOrder(s.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, errs.ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

func (s *PostgresStorage) OrderExists(ctx context.Context, orderID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`

	var exists bool
	if err := s.db.QueryRow(ctx, query, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("order exists: %w", err)
	}
	return exists, nil
}

// InsertOrder reports false when an order with the same id already exists.
func (s *PostgresStorage) InsertOrder(ctx context.Context, order model.Order) (bool, error) {
	const query = `
		INSERT INTO orders (order_id, user_id, plan_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO NOTHING`

	cmdTag, err := s.db.Exec(ctx, query,
		order.ID, order.UserID, order.PlanID, order.Amount, order.Currency, order.Status, order.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// CompareAndSetOrderStatus moves the order to next only if its stored status
// is still expected. Of several concurrent callers exactly one gets true.
func (s *PostgresStorage) CompareAndSetOrderStatus(ctx context.Context, orderID string, expected, next model.OrderStatus, credits int64) (bool, error) {
	const query = `
		UPDATE orders
		SET status = $3,
			credits = $4,
			paid_at = CASE WHEN $3 = 'PAID' THEN NOW() ELSE paid_at END
		WHERE order_id = $1 AND status = $2`

	cmdTag, err := s.db.Exec(ctx, query, orderID, expected, next, credits)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// ClaimStaleOrders stamps checked_at on the selected orders in the same
// statement that returns them. SKIP LOCKED keeps concurrent sweeps from
// claiming the same rows.
func (s *PostgresStorage) ClaimStaleOrders(ctx context.Context, q orders.StaleQuery) ([]model.Order, error) {
	query := `
		UPDATE orders
		SET checked_at = NOW()
		WHERE order_id IN (
			SELECT order_id
			FROM orders
			WHERE status = $1 AND created_at < $2 AND created_at > $3
				AND (checked_at IS NULL OR checked_at < $4)
			ORDER BY checked_at ASC NULLS FIRST, created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + orderColumns

	rows, err := s.db.Query(ctx, query, model.Created, q.CreatedBefore, q.CreatedAfter, q.CheckedBefore, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("claim stale orders: %w", err)
	}
	defer rows.Close()

	var list []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale order: %w", err)
		}
		list = append(list, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })

	return list, nil
}
