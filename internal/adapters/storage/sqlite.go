package storage

// sqlite.go: audit trail for signed orders, halts and iteration summaries.
//
// Layout:
//   - `orders`: one row per signed order, closed_at/close_reason filled when
//     the order leaves the books (expired or cancelled).
//   - `halts`: one row per algorithm stop with its reason.
//   - `cycles`: one lightweight row per run iteration.
//   - Prune on start: cycles > 30d, closed orders > 14d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/swapmaker/swapmaker/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    signature    TEXT PRIMARY KEY,
    maker_token  TEXT NOT NULL,
    taker_token  TEXT NOT NULL,
    maker_amount TEXT NOT NULL,
    taker_amount TEXT NOT NULL,
    taker_addr   TEXT NOT NULL,
    nonce        TEXT NOT NULL,
    created_at   DATETIME NOT NULL,
    expires_at   DATETIME NOT NULL,
    closed_at    DATETIME,
    close_reason TEXT
);

CREATE TABLE IF NOT EXISTS halts (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    reason    TEXT NOT NULL,
    halted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    at          DATETIME NOT NULL,
    total_usd   REAL    NOT NULL DEFAULT 0,
    open_orders INTEGER NOT NULL DEFAULT 0,
    intents     INTEGER NOT NULL DEFAULT 0,
    state       TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cycles_at      ON cycles(at DESC);
`

const (
	retentionCycles = 30 * 24 * time.Hour
	retentionOrders = 14 * 24 * time.Hour
)

// SQLiteAuditLog implements ports.AuditLog using SQLite (pure Go, no CGo).
type SQLiteAuditLog struct {
	db *sql.DB
}

// NewSQLiteAuditLog opens (or creates) the database at the given path,
// applies the schema and prunes old rows.
func NewSQLiteAuditLog(path string) (*SQLiteAuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteAuditLog: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteAuditLog: apply schema: %w", err)
	}

	s := &SQLiteAuditLog{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteAuditLog) Close() error {
	return s.db.Close()
}

// RecordOrder stores a freshly signed open order.
func (s *SQLiteAuditLog) RecordOrder(ctx context.Context, order domain.OpenOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders
		(signature, maker_token, taker_token, maker_amount, taker_amount, taker_addr, nonce, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.Order.Signature(),
		order.Order.MakerToken.Hex(),
		order.Order.TakerToken.Hex(),
		order.Order.MakerAmount.String(),
		order.Order.TakerAmount.String(),
		order.Order.TakerAddress.Hex(),
		order.Order.Nonce,
		order.CreatedAt.UTC(),
		order.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordOrder: %w", err)
	}
	return nil
}

// MarkOrderClosed records why an order left the books.
func (s *SQLiteAuditLog) MarkOrderClosed(ctx context.Context, signature, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET closed_at = ?, close_reason = ? WHERE signature = ?`,
		at.UTC(), reason, signature)
	if err != nil {
		return fmt.Errorf("storage.MarkOrderClosed: %w", err)
	}
	return nil
}

// RecordHalt stores an algorithm stop with its reason.
func (s *SQLiteAuditLog) RecordHalt(ctx context.Context, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO halts (reason, halted_at) VALUES (?, ?)`, reason, at.UTC())
	if err != nil {
		return fmt.Errorf("storage.RecordHalt: %w", err)
	}
	return nil
}

// RecordCycle stores one iteration summary.
func (s *SQLiteAuditLog) RecordCycle(ctx context.Context, summary domain.CycleSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (at, total_usd, open_orders, intents, state)
		VALUES (?, ?, ?, ?, ?)`,
		summary.At.UTC(),
		summary.TotalValueUSD,
		summary.OpenOrders,
		summary.ActiveIntents,
		summary.AlgorithmState,
	)
	if err != nil {
		return fmt.Errorf("storage.RecordCycle: %w", err)
	}
	return nil
}

// RecentHalts returns the latest halts, newest first.
func (s *SQLiteAuditLog) RecentHalts(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reason FROM halts ORDER BY halted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentHalts: %w", err)
	}
	defer rows.Close()

	var reasons []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("storage.RecentHalts: scan: %w", err)
		}
		reasons = append(reasons, r)
	}
	return reasons, rows.Err()
}

func (s *SQLiteAuditLog) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE at < ?`, now.Add(-retentionCycles))
	s.db.ExecContext(ctx, `DELETE FROM orders WHERE closed_at IS NOT NULL AND closed_at < ?`, now.Add(-retentionOrders))
}
