// Package postgres keeps purchase orders and approval verdicts in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"procurement-insight/decision/approval"
	"procurement-insight/decision/order"
)

const schema = `
CREATE TABLE IF NOT EXISTS purchase_orders (
	id TEXT PRIMARY KEY,
	supplier TEXT NOT NULL DEFAULT '',
	grand_total NUMERIC(18, 2) NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT '',
	transaction_date TEXT NOT NULL DEFAULT '',
	schedule_date TEXT NOT NULL DEFAULT '',
	items JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS approval_verdicts (
	id BIGSERIAL PRIMARY KEY,
	order_id TEXT NOT NULL,
	decision TEXT NOT NULL,
	risk_score INTEGER NOT NULL,
	payload JSONB NOT NULL,
	decided_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS approval_verdicts_order_idx ON approval_verdicts (order_id, decided_at DESC);
`

const selectOrders = "SELECT id, supplier, grand_total, status, transaction_date, schedule_date, items FROM purchase_orders"

const upsertOrder = `
		INSERT INTO purchase_orders (id, supplier, grand_total, status, transaction_date, schedule_date, items, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			supplier = EXCLUDED.supplier,
			grand_total = EXCLUDED.grand_total,
			status = EXCLUDED.status,
			transaction_date = EXCLUDED.transaction_date,
			schedule_date = EXCLUDED.schedule_date,
			items = EXCLUDED.items,
			updated_at = EXCLUDED.updated_at
	`

// Store is a Postgres-backed order repository. It satisfies source.OrderSource.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with the lib/pq driver and verifies the connection
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewStore(db), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *Store) String() string {
	return "postgres"
}

// ListOrders returns every stored order, oldest transaction date first
func (s *Store) ListOrders(ctx context.Context) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, selectOrders+" ORDER BY transaction_date, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	out := []order.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*order.Order, error) {
	var (
		o     order.Order
		total float64
		items []byte
	)
	if err := row.Scan(&o.ID, &o.Supplier, &total, &o.Status, &o.Date, &o.ScheduleDate, &items); err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	o.GrandTotal = order.Amount(total)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("failed to decode items of %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

// UpsertOrders writes all orders in one transaction
func (s *Store) UpsertOrders(ctx context.Context, orders []order.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, o := range orders {
		items := o.Items
		if items == nil {
			items = []order.Item{}
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to encode items of %s: %w", o.ID, err)
		}
		if _, err := tx.ExecContext(ctx, upsertOrder, o.ID, o.Supplier, o.GrandTotal.Float64(), o.Status, o.Date, o.ScheduleDate, raw); err != nil {
			return fmt.Errorf("failed to upsert order %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit orders: %w", err)
	}
	return nil
}

// SaveVerdict appends an approval verdict to the audit table
func (s *Store) SaveVerdict(ctx context.Context, v *approval.Verdict, decidedAt time.Time) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO approval_verdicts (order_id, decision, risk_score, payload, decided_at) VALUES ($1, $2, $3, $4, $5)",
		v.OrderID, string(v.Decision), v.RiskScore, payload, decidedAt)
	if err != nil {
		return fmt.Errorf("failed to persist verdict: %w", err)
	}
	return nil
}

// LatestVerdict returns the most recent verdict for an order, or nil
func (s *Store) LatestVerdict(ctx context.Context, orderID string) (*approval.Verdict, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT payload FROM approval_verdicts WHERE order_id = $1 ORDER BY decided_at DESC LIMIT 1",
		orderID)

	var payload []byte
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verdict: %w", err)
	}

	var v approval.Verdict
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", err)
	}
	return &v, nil
}
