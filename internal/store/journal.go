package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradeflow/internal/types"

	_ "modernc.org/sqlite"
)

// SignalJournal is an append-only log of terminal signal outcomes, kept in
// its own SQLite file so audits survive trade-log rewrites.
type SignalJournal struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// SignalJournalEntry is one journaled outcome.
type SignalJournalEntry struct {
	ID             int64     `json:"id"`
	SignalID       string    `json:"signal_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Quantity       float64   `json:"quantity"`
	Status         string    `json:"status"`
	BlockReason    string    `json:"block_reason,omitempty"`
	ExecutionPrice float64   `json:"execution_price,omitempty"`
	Venue          string    `json:"venue,omitempty"`
	Metadata       string    `json:"metadata,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewSignalJournal(path string) (*SignalJournal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("signal journal: path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	j := &SignalJournal{db: db, path: path}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SignalJournal) init() error {
	_, err := j.db.Exec(`CREATE TABLE IF NOT EXISTS signal_journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		status TEXT NOT NULL,
		block_reason TEXT,
		execution_price REAL,
		venue TEXT,
		metadata TEXT,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signal_journal_ts ON signal_journal(ts);`)
	return err
}

func (j *SignalJournal) Append(ctx context.Context, sig *types.TradingSignal) error {
	if sig == nil {
		return fmt.Errorf("signal journal: nil signal")
	}
	meta := ""
	if len(sig.Metadata) > 0 {
		if raw, err := json.Marshal(sig.Metadata); err == nil {
			meta = string(raw)
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx, `INSERT INTO signal_journal
		(signal_id, symbol, side, quantity, status, block_reason, execution_price, venue, metadata, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.Symbol, string(sig.Side), sig.Quantity, string(sig.Status),
		sig.BlockReason, sig.ExecutionPrice, sig.Venue, meta, time.Now().UnixMilli())
	return err
}

func (j *SignalJournal) Recent(ctx context.Context, limit int) ([]SignalJournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.QueryContext(ctx, `SELECT id, signal_id, symbol, side, quantity, status,
		COALESCE(block_reason, ''), COALESCE(execution_price, 0), COALESCE(venue, ''), COALESCE(metadata, ''), ts
		FROM signal_journal ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SignalJournalEntry
	for rows.Next() {
		var e SignalJournalEntry
		var ts int64
		if err := rows.Scan(&e.ID, &e.SignalID, &e.Symbol, &e.Side, &e.Quantity, &e.Status,
			&e.BlockReason, &e.ExecutionPrice, &e.Venue, &e.Metadata, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SignalJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
