package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS product_mappings (
	product_id  BIGINT      NOT NULL,
	date_key    TEXT        NOT NULL DEFAULT '',
	attributes  JSONB       NOT NULL DEFAULT '{}',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (product_id, date_key)
);

CREATE TABLE IF NOT EXISTS sale_records (
	id               BIGSERIAL     PRIMARY KEY,
	product_id       BIGINT        NOT NULL,
	quantity         INT           NOT NULL CHECK (quantity > 0),
	source           TEXT          NOT NULL,
	platform         TEXT          NOT NULL,
	source_record_id TEXT          NOT NULL,
	customer_name    TEXT          NOT NULL DEFAULT '',
	customer_email   TEXT          NOT NULL DEFAULT '',
	gross_amount     NUMERIC(12,2) NOT NULL DEFAULT 0,
	currency         TEXT          NOT NULL DEFAULT '',
	event_date       DATE,
	event_time       TEXT          NOT NULL DEFAULT '',
	sale_date        DATE          NOT NULL,
	status           TEXT          NOT NULL DEFAULT '',
	recorded_at      TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	UNIQUE (platform, source_record_id)
);

CREATE INDEX IF NOT EXISTS idx_sale_records_sale_date ON sale_records (sale_date);
CREATE INDEX IF NOT EXISTS idx_sale_records_recorded_at ON sale_records (recorded_at);

CREATE TABLE IF NOT EXISTS daily_sales (
	sale_date  DATE   NOT NULL,
	product_id BIGINT NOT NULL,
	platform   TEXT   NOT NULL,
	quantity   INT    NOT NULL DEFAULT 0,
	PRIMARY KEY (sale_date, product_id, platform)
);
`

// Store is the Postgres-backed mapping table and sales ledger.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the connection, used by the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
