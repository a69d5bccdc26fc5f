package localstore

import (
	"context"
	"fmt"
	"sync"
)

const DefaultLedgerCap = 5000

// Ledger is the alert ledger kept in SQLite and mirrored in memory.
// Only the most recent cap ids are retained.
type Ledger struct {
	db  *DB
	cap int

	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
}

// Ledger loads the persisted ledger.
func (db *DB) Ledger(ctx context.Context, cap int) (*Ledger, error) {
	if cap <= 0 {
		cap = DefaultLedgerCap
	}
	l := &Ledger{db: db, cap: cap, ids: map[string]struct{}{}}
	rows, err := db.conn.QueryContext(ctx, `SELECT order_id FROM alert_ledger ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		l.ids[id] = struct{}{}
		l.order = append(l.order, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := l.prune(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) HasAlerted(_ context.Context, orderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[orderID]
	return ok, nil
}

func (l *Ledger) MarkAlerted(ctx context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[orderID]; ok {
		return nil
	}
	if _, err := l.db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO alert_ledger (order_id) VALUES (?)`, orderID); err != nil {
		return fmt.Errorf("mark alerted: %w", err)
	}
	l.ids[orderID] = struct{}{}
	l.order = append(l.order, orderID)
	return l.prune(ctx)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// prune drops the oldest ids beyond cap. Caller holds mu or owns l.
func (l *Ledger) prune(ctx context.Context) error {
	if len(l.order) <= l.cap {
		return nil
	}
	if _, err := l.db.conn.ExecContext(ctx,
		`DELETE FROM alert_ledger WHERE seq NOT IN (SELECT seq FROM alert_ledger ORDER BY seq DESC LIMIT ?)`,
		l.cap); err != nil {
		return fmt.Errorf("prune ledger: %w", err)
	}
	drop := len(l.order) - l.cap
	for _, id := range l.order[:drop] {
		delete(l.ids, id)
	}
	l.order = append([]string(nil), l.order[drop:]...)
	return nil
}
