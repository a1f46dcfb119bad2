package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

const schema = `
CREATE TABLE IF NOT EXISTS loyalty_customers (
	mobile      TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	pin         TEXT NOT NULL,
	points      BIGINT NOT NULL,
	total_spent DOUBLE PRECISION NOT NULL,
	history     JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS loyalty_settings (
	id         SMALLINT PRIMARY KEY CHECK (id = 1),
	config     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS loyalty_notifications (
	id        TEXT PRIMARY KEY,
	sent_at   TIMESTAMPTZ NOT NULL,
	recipient TEXT NOT NULL,
	message   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS loyalty_notifications_sent_at_idx ON loyalty_notifications (sent_at DESC);
`

type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Store implements the ledger stores on PostgreSQL. Customer writes take a
// transaction-scoped advisory lock on the mobile, so settlements from every
// process sharing the database are serialized per customer, first visits
// included.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects, pings and creates the schema if needed.
func Open(ctx context.Context, url string, opts PoolOptions) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) LoadAll(ctx context.Context) ([]loyalty.Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mobile, name, pin, points, total_spent, history
		FROM loyalty_customers
		ORDER BY mobile`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []loyalty.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

// SaveAll replaces the table contents in one transaction.
func (s *Store) SaveAll(ctx context.Context, customers []loyalty.Customer) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM loyalty_customers`); err != nil {
		return fmt.Errorf("clear customers: %w", err)
	}
	for _, customer := range customers {
		if err := upsertCustomer(ctx, tx, customer); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const selectCustomer = `
	SELECT mobile, name, pin, points, total_spent, history
	FROM loyalty_customers
	WHERE mobile = $1`

func (s *Store) Get(ctx context.Context, mobile string) (loyalty.Customer, error) {
	customer, err := scanCustomer(s.pool.QueryRow(ctx, selectCustomer, mobile))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.Customer{}, ledger.ErrCustomerNotFound
		}
		return loyalty.Customer{}, err
	}
	return customer, nil
}

func (s *Store) Upsert(ctx context.Context, customers ...loyalty.Customer) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	mobiles := make([]string, len(customers))
	for i, customer := range customers {
		mobiles[i] = customer.Mobile
	}
	for _, mobile := range slices.Compact(slices.Sorted(slices.Values(mobiles))) {
		if err := lockMobile(ctx, tx, mobile); err != nil {
			return err
		}
	}
	for _, customer := range customers {
		if err := upsertCustomer(ctx, tx, customer); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Update runs fn against the locked row and writes its result with the
// notification in the same transaction.
func (s *Store) Update(ctx context.Context, mobile string, fn ledger.UpdateFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockMobile(ctx, tx, mobile); err != nil {
		return err
	}
	var existing *loyalty.Customer
	current, err := scanCustomer(tx.QueryRow(ctx, selectCustomer+` FOR UPDATE`, mobile))
	switch {
	case err == nil:
		existing = &current
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	customer, notification, err := fn(existing)
	if err != nil {
		return err
	}
	if err := upsertCustomer(ctx, tx, customer); err != nil {
		return err
	}
	if err := insertNotification(ctx, tx, notification); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Load(ctx context.Context) (loyalty.TierConfig, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT config FROM loyalty_settings WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.DefaultTierConfig(), nil
		}
		return loyalty.TierConfig{}, err
	}
	return ledger.DecodeConfig(raw)
}

func (s *Store) Save(ctx context.Context, cfg loyalty.TierConfig) error {
	encoded, err := ledger.EncodeConfig(cfg)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO loyalty_settings (id, config, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()`,
		encoded)
	return err
}

func (s *Store) Append(ctx context.Context, notification loyalty.Notification) error {
	return insertNotification(ctx, s.pool, notification)
}

func (s *Store) List(ctx context.Context, limit int) ([]loyalty.Notification, error) {
	query := `SELECT id, sent_at, recipient, message FROM loyalty_notifications ORDER BY sent_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []loyalty.Notification
	for rows.Next() {
		var n loyalty.Notification
		if err := rows.Scan(&n.ID, &n.Timestamp, &n.Recipient, &n.Message); err != nil {
			return nil, err
		}
		n.Timestamp = n.Timestamp.UTC()
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM loyalty_notifications`)
	return err
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func lockMobile(ctx context.Context, tx execer, mobile string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, mobile); err != nil {
		return fmt.Errorf("lock customer %s: %w", mobile, err)
	}
	return nil
}

func upsertCustomer(ctx context.Context, tx execer, customer loyalty.Customer) error {
	history, err := json.Marshal(historyOrEmpty(customer.History))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO loyalty_customers (mobile, name, pin, points, total_spent, history, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (mobile) DO UPDATE SET
			name = EXCLUDED.name,
			pin = EXCLUDED.pin,
			points = EXCLUDED.points,
			total_spent = EXCLUDED.total_spent,
			history = EXCLUDED.history,
			updated_at = NOW()`,
		customer.Mobile, customer.Name, customer.PIN, customer.Points, customer.TotalSpent, history)
	if err != nil {
		return fmt.Errorf("upsert customer %s: %w", customer.Mobile, err)
	}
	return nil
}

func insertNotification(ctx context.Context, db execer, notification loyalty.Notification) error {
	_, err := db.Exec(ctx, `
		INSERT INTO loyalty_notifications (id, sent_at, recipient, message)
		VALUES ($1, $2, $3, $4)`,
		notification.ID, notification.Timestamp, notification.Recipient, notification.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func scanCustomer(row pgx.Row) (loyalty.Customer, error) {
	var customer loyalty.Customer
	var history []byte
	if err := row.Scan(
		&customer.Mobile,
		&customer.Name,
		&customer.PIN,
		&customer.Points,
		&customer.TotalSpent,
		&history,
	); err != nil {
		return loyalty.Customer{}, err
	}
	if err := json.Unmarshal(history, &customer.History); err != nil {
		return loyalty.Customer{}, fmt.Errorf("decode history for %s: %w", customer.Mobile, err)
	}
	return customer, nil
}

func historyOrEmpty(history []loyalty.Transaction) []loyalty.Transaction {
	if history == nil {
		return []loyalty.Transaction{}
	}
	return history
}
