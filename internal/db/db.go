package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the local, single-file implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

// compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the SQLite database at the given path.
func Open(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set PRAGMAs explicitly (modernc driver doesn't support DSN query params)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	d := &SQLiteStore{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

func (d *SQLiteStore) Close() error {
	return d.db.Close()
}

func (d *SQLiteStore) getSchemaVersion() int {
	var version int
	err := d.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (d *SQLiteStore) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version, time.Now().UTC().Format(time.RFC3339))
	return err
}

var migrations = []struct {
	version int
	sqls    []string
}{
	{1, []string{
		`CREATE TABLE IF NOT EXISTS items (
			zone TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			properties TEXT NOT NULL DEFAULT '{}',
			secrets TEXT NOT NULL DEFAULT '[]',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (zone, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_zone ON items(zone)`,
	}},
}

func (d *SQLiteStore) migrate() error {
	// Ensure schema_version table exists first
	_, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	currentVersion := d.getSchemaVersion()

	for _, m := range migrations {
		if m.version > currentVersion {
			tx, err := d.db.Begin()
			if err != nil {
				return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
			}

			for _, s := range m.sqls {
				if _, err := tx.Exec(s); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d failed: %w", m.version, err)
				}
			}

			if err := d.setSchemaVersion(tx, m.version); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to set schema version %d: %w", m.version, err)
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
			}
		}
	}

	return nil
}

func (d *SQLiteStore) GetItems(ctx context.Context, zone Zone) ([]*RawItem, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, version, properties, secrets FROM items WHERE zone = ? ORDER BY name, id`,
		string(zone))
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func (d *SQLiteStore) GetItem(ctx context.Context, zone Zone, id string) (*RawItem, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, version, properties, secrets FROM items WHERE zone = ? AND id = ?`,
		string(zone), id)
	item, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (d *SQLiteStore) Push(ctx context.Context, zone Zone, item *RawItem, overwrite bool) error {
	if err := validateItem(item); err != nil {
		return err
	}
	props, secrets, err := marshalPayload(item)
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if !overwrite {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE zone = ? AND id = ?",
			string(zone), item.ID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check item %s: %w", item.ID, err)
		}
		if count > 0 {
			return fmt.Errorf("item %s: %w", item.ID, ErrAlreadyExists)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO items (zone, id, name, version, properties, secrets, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(zone), item.ID, item.Name, item.Version, props, secrets, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to push item %s: %w", item.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (d *SQLiteStore) Delete(ctx context.Context, zone Zone, id string) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM items WHERE zone = ? AND id = ?", string(zone), id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*RawItem, error) {
	item := &RawItem{}
	var props, secrets string
	if err := row.Scan(&item.ID, &item.Name, &item.Version, &props, &secrets); err != nil {
		return nil, err
	}
	unmarshalPayload(item, props, secrets)
	return item, nil
}

func scanItems(rows *sql.Rows) ([]*RawItem, error) {
	items := []*RawItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

func marshalPayload(item *RawItem) (string, string, error) {
	props := item.Properties
	if props == nil {
		props = map[string]any{}
	}
	secrets := item.Secrets
	if secrets == nil {
		secrets = []string{}
	}
	p, err := json.Marshal(props)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode properties of %s: %w", item.ID, err)
	}
	s, err := json.Marshal(secrets)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode secrets of %s: %w", item.ID, err)
	}
	return string(p), string(s), nil
}

// unmarshalPayload tolerates corrupt blobs: the item is returned with empty
// properties or secrets so the catalog can decide what to do with it.
func unmarshalPayload(item *RawItem, props, secrets string) {
	if props != "" {
		if err := json.Unmarshal([]byte(props), &item.Properties); err != nil {
			item.Properties = nil
		}
	}
	if item.Properties == nil {
		item.Properties = map[string]any{}
	}
	if secrets != "" {
		if err := json.Unmarshal([]byte(secrets), &item.Secrets); err != nil {
			item.Secrets = nil
		}
	}
}
