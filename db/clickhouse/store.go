// Package clickhouse provides the ClickHouse order history store.
// Every ingest run writes an immutable batch of orders; one batch per source is
// active at a time and serves reads.
package clickhouse

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"procurement-insight/decision/order"
)

// IngestBatch is one point-in-time capture of an order source
type IngestBatch struct {
	ID         uuid.UUID `ch:"id"`
	Source     string    `ch:"source"`
	FetchedAt  time.Time `ch:"fetched_at"`
	Hash       string    `ch:"hash"`
	OrderCount int       `ch:"order_count"`
	IsActive   bool      `ch:"is_active"`
	Completed  bool      `ch:"completed"`
	CreatedAt  time.Time `ch:"created_at"`
}

// orderRow is the orders table layout
type orderRow struct {
	Seq             uint32
	OrderID         string
	Supplier        string
	Status          string
	GrandTotal      decimal.Decimal
	TransactionDate string
	ScheduleDate    string
}

// itemRow is the order_items table layout
type itemRow struct {
	OrderID  string
	LineNo   uint32
	ItemCode string
	ItemName string
	Quantity decimal.Decimal
	Rate     decimal.Decimal
}

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "procurement",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store persists order batches in ClickHouse
type Store struct {
	conn   clickhouse.Conn
	cfg    *Config
	source string
}

// NewStore opens a ClickHouse connection
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// ForSource returns a view whose ListOrders reads the active batch of the named source
func (s *Store) ForSource(source string) *Store {
	return &Store{conn: s.conn, cfg: s.cfg, source: source}
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ingest_batches (
		id UUID,
		source String,
		fetched_at DateTime64(3),
		hash String,
		order_count UInt32,
		is_active UInt8,
		completed UInt8 DEFAULT 0,
		created_at DateTime64(3),
		_version UInt64 DEFAULT 1,
		_deleted UInt8 DEFAULT 0
	) ENGINE = ReplacingMergeTree(_version)
	ORDER BY (source, id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		batch_id UUID,
		seq UInt32,
		order_id String,
		supplier String,
		status LowCardinality(String),
		grand_total Decimal(18, 2),
		transaction_date String,
		schedule_date String,
		created_at DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (batch_id, seq)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		batch_id UUID,
		order_id String,
		line_no UInt32,
		item_code String,
		item_name String,
		quantity Decimal(18, 4),
		rate Decimal(18, 4),
		created_at DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (batch_id, item_code, order_id, line_no)`,
	// tables created before completion tracking and ingest ordering
	`ALTER TABLE ingest_batches ADD COLUMN IF NOT EXISTS completed UInt8 DEFAULT 0 AFTER is_active`,
	`ALTER TABLE orders ADD COLUMN IF NOT EXISTS seq UInt32 DEFAULT 0 AFTER batch_id`,
}

// Migrate creates the tables when missing
func (s *Store) Migrate(ctx context.Context) error {
	for _, ddl := range schema {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// BATCH OPERATIONS
// =============================================================================

const batchColumns = `id, source, fetched_at, hash, order_count, is_active, completed, created_at`

// CreateBatch inserts a new, inactive and incomplete batch
func (s *Store) CreateBatch(ctx context.Context, batch *IngestBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	batch.CreatedAt = time.Now()
	query := `INSERT INTO ingest_batches (` + batchColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return s.conn.Exec(ctx, query,
		batch.ID,
		batch.Source,
		batch.FetchedAt,
		batch.Hash,
		uint32(batch.OrderCount),
		boolToUInt8(batch.IsActive),
		boolToUInt8(batch.Completed),
		batch.CreatedAt,
	)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*IngestBatch, error) {
	var b IngestBatch
	var count uint32
	var isActive, completed uint8
	if err := row.Scan(&b.ID, &b.Source, &b.FetchedAt, &b.Hash, &count, &isActive, &completed, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.OrderCount = int(count)
	b.IsActive = isActive == 1
	b.Completed = completed == 1
	return &b, nil
}

func (s *Store) queryBatch(ctx context.Context, op, where string, args ...any) (*IngestBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM ingest_batches FINAL WHERE ` + where + ` AND _deleted = 0 ORDER BY created_at DESC LIMIT 1`
	b, err := scanBatch(s.conn.QueryRow(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return b, nil
}

// GetBatch retrieves a batch by ID
func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (*IngestBatch, error) {
	return s.queryBatch(ctx, "get batch", `id = ?`, id)
}

// GetActiveBatch retrieves the active batch for a source
func (s *Store) GetActiveBatch(ctx context.Context, source string) (*IngestBatch, error) {
	return s.queryBatch(ctx, "get active batch", `source = ? AND is_active = 1`, source)
}

// FindBatchByHash finds a completed batch of a source by its content hash.
// Batches whose writes never finished are not matched.
func (s *Store) FindBatchByHash(ctx context.Context, source, hash string) (*IngestBatch, error) {
	return s.queryBatch(ctx, "find batch by hash", `source = ? AND hash = ? AND completed = 1`, source, hash)
}

// DiscardBatch soft-deletes a batch so no read or hash lookup can reach it
func (s *Store) DiscardBatch(ctx context.Context, id uuid.UUID) error {
	query := `
		INSERT INTO ingest_batches (` + batchColumns + `, _version, _deleted)
		SELECT ` + batchColumns + `, _version + 1 AS _version, 1 AS _deleted
		FROM ingest_batches FINAL
		WHERE id = ?
	`
	if err := s.conn.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to discard batch: %w", err)
	}
	return nil
}

// ActivateBatch marks a batch active and completed, and deactivates the other batches of its source
func (s *Store) ActivateBatch(ctx context.Context, id uuid.UUID) error {
	batch, err := s.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if batch == nil {
		return fmt.Errorf("batch not found: %s", id)
	}

	deactivateQuery := `
		INSERT INTO ingest_batches (` + batchColumns + `, _version, _deleted)
		SELECT id, source, fetched_at, hash, order_count, 0 AS is_active, completed, created_at,
			   _version + 1 AS _version, _deleted
		FROM ingest_batches FINAL
		WHERE source = ? AND is_active = 1 AND _deleted = 0 AND id != ?
	`
	if err := s.conn.Exec(ctx, deactivateQuery, batch.Source, id); err != nil {
		return fmt.Errorf("failed to deactivate batches: %w", err)
	}

	activateQuery := `
		INSERT INTO ingest_batches (` + batchColumns + `, _version, _deleted)
		SELECT id, source, fetched_at, hash, order_count, 1 AS is_active, 1 AS completed, created_at,
			   _version + 1 AS _version, _deleted
		FROM ingest_batches FINAL
		WHERE id = ?
	`
	return s.conn.Exec(ctx, activateQuery, id)
}

// ListBatches lists the batches of a source, newest first
func (s *Store) ListBatches(ctx context.Context, source string) ([]*IngestBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM ingest_batches FINAL WHERE source = ? AND _deleted = 0 ORDER BY created_at DESC`
	rows, err := s.conn.Query(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*IngestBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// =============================================================================
// ORDER OPERATIONS
// =============================================================================

// BulkInsertOrders writes orders and their line items into a batch.
// offset is the ingest position of orders[0]; reads return orders by position.
func (s *Store) BulkInsertOrders(ctx context.Context, batchID uuid.UUID, offset int, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	now := time.Now()
	orderRows, itemRows := flatten(orders, offset)

	ob, err := s.conn.PrepareBatch(ctx, `INSERT INTO orders (batch_id, seq, order_id, supplier, status, grand_total, transaction_date, schedule_date, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare order batch: %w", err)
	}
	defer ob.Abort()
	for _, r := range orderRows {
		if err := ob.Append(batchID, r.Seq, r.OrderID, r.Supplier, r.Status, r.GrandTotal, r.TransactionDate, r.ScheduleDate, now); err != nil {
			return fmt.Errorf("failed to append order %s: %w", r.OrderID, err)
		}
	}
	if err := ob.Send(); err != nil {
		return fmt.Errorf("failed to send order batch: %w", err)
	}

	if len(itemRows) == 0 {
		return nil
	}
	ib, err := s.conn.PrepareBatch(ctx, `INSERT INTO order_items (batch_id, order_id, line_no, item_code, item_name, quantity, rate, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare item batch: %w", err)
	}
	defer ib.Abort()
	for _, r := range itemRows {
		if err := ib.Append(batchID, r.OrderID, r.LineNo, r.ItemCode, r.ItemName, r.Quantity, r.Rate, now); err != nil {
			return fmt.Errorf("failed to append item of %s: %w", r.OrderID, err)
		}
	}
	return ib.Send()
}

const listBatchOrdersQuery = `
		SELECT seq, order_id, supplier, status, grand_total, transaction_date, schedule_date
		FROM orders WHERE batch_id = ? ORDER BY seq`

// ListBatchOrders reads every order of a batch with its line items, in ingest order
func (s *Store) ListBatchOrders(ctx context.Context, batchID uuid.UUID) ([]order.Order, error) {
	rows, err := s.conn.Query(ctx, listBatchOrdersQuery, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orderRows []orderRow
	for rows.Next() {
		var r orderRow
		if err := rows.Scan(&r.Seq, &r.OrderID, &r.Supplier, &r.Status, &r.GrandTotal, &r.TransactionDate, &r.ScheduleDate); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orderRows = append(orderRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRowsQ, err := s.conn.Query(ctx, `
		SELECT order_id, line_no, item_code, item_name, quantity, rate
		FROM order_items WHERE batch_id = ? ORDER BY order_id, line_no`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer itemRowsQ.Close()

	var itemRows []itemRow
	for itemRowsQ.Next() {
		var r itemRow
		if err := itemRowsQ.Scan(&r.OrderID, &r.LineNo, &r.ItemCode, &r.ItemName, &r.Quantity, &r.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		itemRows = append(itemRows, r)
	}
	if err := itemRowsQ.Err(); err != nil {
		return nil, err
	}

	return assemble(orderRows, itemRows), nil
}

// ListOrders reads the active batch of the store's source. No active batch yields an empty list.
func (s *Store) ListOrders(ctx context.Context) ([]order.Order, error) {
	batch, err := s.GetActiveBatch(ctx, s.source)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return []order.Order{}, nil
	}
	return s.ListBatchOrders(ctx, batch.ID)
}

// ItemRateStats is the rate history of one item across a batch
type ItemRateStats struct {
	ItemCode  string
	Purchases int
	AvgRate   decimal.Decimal
	MinRate   decimal.Decimal
	MaxRate   decimal.Decimal
}

// ItemRateHistory aggregates line-item rates of the active batch in ClickHouse.
func (s *Store) ItemRateHistory(ctx context.Context) ([]ItemRateStats, error) {
	batch, err := s.GetActiveBatch(ctx, s.source)
	if err != nil || batch == nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, `
		SELECT item_code, count() AS purchases, toFloat64(avg(rate)), min(rate), max(rate)
		FROM order_items
		WHERE batch_id = ? AND rate > 0
		GROUP BY item_code
		ORDER BY item_code`, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item rates: %w", err)
	}
	defer rows.Close()

	var stats []ItemRateStats
	for rows.Next() {
		var st ItemRateStats
		var purchases uint64
		var avg float64
		if err := rows.Scan(&st.ItemCode, &purchases, &avg, &st.MinRate, &st.MaxRate); err != nil {
			return nil, fmt.Errorf("failed to scan item rates: %w", err)
		}
		st.Purchases = int(purchases)
		st.AvgRate = decimal.NewFromFloat(avg)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// HashOrders returns a content hash of an order batch, used to skip unchanged ingests
func HashOrders(orders []order.Order) string {
	data, _ := json.Marshal(orders)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func flatten(orders []order.Order, offset int) ([]orderRow, []itemRow) {
	orderRows := make([]orderRow, 0, len(orders))
	var itemRows []itemRow
	for n, o := range orders {
		orderRows = append(orderRows, orderRow{
			Seq:             uint32(offset + n),
			OrderID:         o.ID,
			Supplier:        o.Supplier,
			Status:          o.Status,
			GrandTotal:      decimal.NewFromFloat(o.GrandTotal.Float64()).Round(2),
			TransactionDate: o.Date,
			ScheduleDate:    o.ScheduleDate,
		})
		for i, it := range o.Items {
			itemRows = append(itemRows, itemRow{
				OrderID:  o.ID,
				LineNo:   uint32(i),
				ItemCode: it.ItemCode,
				ItemName: it.ItemName,
				Quantity: decimal.NewFromFloat(it.Quantity.Float64()).Round(4),
				Rate:     decimal.NewFromFloat(it.Rate.Float64()).Round(4),
			})
		}
	}
	return orderRows, itemRows
}

// assemble rebuilds orders from table rows; items attach in line order.
func assemble(orderRows []orderRow, itemRows []itemRow) []order.Order {
	orders := make([]order.Order, 0, len(orderRows))
	index := make(map[string]int, len(orderRows))
	for _, r := range orderRows {
		index[r.OrderID] = len(orders)
		orders = append(orders, order.Order{
			ID:           r.OrderID,
			Supplier:     r.Supplier,
			Status:       r.Status,
			GrandTotal:   order.Amount(r.GrandTotal.InexactFloat64()),
			Date:         r.TransactionDate,
			ScheduleDate: r.ScheduleDate,
		})
	}
	for _, r := range itemRows {
		i, ok := index[r.OrderID]
		if !ok {
			continue
		}
		orders[i].Items = append(orders[i].Items, order.Item{
			ItemCode: r.ItemCode,
			ItemName: r.ItemName,
			Quantity: order.Amount(r.Quantity.InexactFloat64()),
			Rate:     order.Amount(r.Rate.InexactFloat64()),
		})
	}
	return orders
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
