package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Preference keys.
const (
	KeyAdminLoggedIn = "admin.logged_in"
	KeyCustomerPhone = "customer.phone"
	KeyDeviceID      = "device.id"
)

// DB is the device-local store: the alert ledger plus a few preferences.
type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	conn.SetMaxOpenConns(1)
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alert_ledger (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL UNIQUE,
		alerted_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Pref returns the stored value and whether it was set.
func (db *DB) Pref(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (db *DB) SetPref(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	return err
}

func (db *DB) DeletePref(ctx context.Context, key string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key)
	return err
}

// DeviceID returns this install's id, creating it on first use.
func (db *DB) DeviceID(ctx context.Context) (string, error) {
	id, ok, err := db.Pref(ctx, KeyDeviceID)
	if err != nil || ok {
		return id, err
	}
	id = uuid.NewString()
	if err := db.SetPref(ctx, KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
