package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruel/pantry/internal/pantry"
	_ "modernc.org/sqlite"
)

// SQLite stores all scopes in one table keyed by (scope, name). The
// remaining fields of a record live in a JSON object column.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection serializes writers; SQLite would otherwise return
	// SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS items (
			scope TEXT NOT NULL,
			name TEXT NOT NULL,
			fields TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (scope, name)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize sqlite: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// List implements Gateway.
func (s *SQLite) List(ctx context.Context, scope Scope) ([]pantry.Item, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, fields FROM items WHERE scope = ?", scope.Collection())
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer func() { _ = rows.Close() }()
	items := []pantry.Item{}
	for rows.Next() {
		var name, fields string
		if err := rows.Scan(&name, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, pantry.Item{Name: name, Quantity: quantityFromFields(fields)})
	}
	return items, rows.Err()
}

// Get implements Gateway.
func (s *SQLite) Get(ctx context.Context, scope Scope, name string) (pantry.Item, error) {
	var fields string
	err := s.db.QueryRowContext(ctx, "SELECT fields FROM items WHERE scope = ? AND name = ?", scope.Collection(), name).Scan(&fields)
	if errors.Is(err, sql.ErrNoRows) {
		return pantry.Item{Name: name}, nil
	}
	if err != nil {
		return pantry.Item{}, fmt.Errorf("failed to get item %q: %w", name, err)
	}
	return pantry.Item{Name: name, Quantity: quantityFromFields(fields)}, nil
}

// Put implements Gateway.
func (s *SQLite) Put(ctx context.Context, scope Scope, name string, quantity int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (scope, name, fields) VALUES (?, ?, json_object('quantity', ?))
		ON CONFLICT (scope, name) DO UPDATE SET fields = json_set(
			CASE WHEN json_valid(items.fields) AND json_type(items.fields) = 'object' THEN items.fields ELSE '{}' END,
			'$.quantity', ?)`,
		scope.Collection(), name, quantity, quantity)
	if err != nil {
		return fmt.Errorf("failed to put item %q: %w", name, err)
	}
	return nil
}

// Delete implements Gateway.
func (s *SQLite) Delete(ctx context.Context, scope Scope, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE scope = ? AND name = ?", scope.Collection(), name); err != nil {
		return fmt.Errorf("failed to delete item %q: %w", name, err)
	}
	return nil
}

// Close implements Gateway.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func quantityFromFields(fields string) pantry.StoredQuantity {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(fields), &m); err != nil {
		return pantry.Malformed(fields)
	}
	return pantry.ParseQuantity(m[quantityField])
}
