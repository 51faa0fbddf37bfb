package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/tabwrite/internal/ir"
)

// ErrNoSuchTable is returned when an operation names an unknown table.
var ErrNoSuchTable = errors.New("table does not exist")

// SchemaError reports a column that is not part of the table.
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column %q does not exist in table %q", e.Column, e.Table)
}

// identRe restricts table and column names. Column names end up inside
// JSON paths, so anything else is rejected up front.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be used as a table or column name.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

// CreateTable registers a table with its columns.
// Re-creating a table with the same columns is a no-op; differing
// columns are an error.
func (s *Store) CreateTable(ctx context.Context, name string, columns []string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("create table: invalid table name %q", name)
	}
	if len(columns) == 0 {
		return fmt.Errorf("create table %s: at least one column required", name)
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if !ValidIdentifier(c) {
			return fmt.Errorf("create table %s: invalid column name %q", name, c)
		}
		if seen[c] {
			return fmt.Errorf("create table %s: duplicate column %q", name, c)
		}
		seen[c] = true
	}

	colsJSON, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	existing, err := s.Columns(ctx, name)
	switch {
	case errors.Is(err, ErrNoSuchTable):
	case err != nil:
		return fmt.Errorf("create table %s: %w", name, err)
	default:
		if strings.Join(existing, ",") != strings.Join(columns, ",") {
			return fmt.Errorf("create table %s: already exists with columns %v", name, existing)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tables (name, columns) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, string(colsJSON))
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

// Columns returns a table's columns in declaration order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	return columnsFrom(ctx, s.db, table)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func columnsFrom(ctx context.Context, q queryer, table string) ([]string, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT columns FROM tables WHERE name = ?`, table).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var cols []string
	if err := json.Unmarshal([]byte(raw), &cols); err != nil {
		return nil, fmt.Errorf("decode columns for %s: %w", table, err)
	}
	return cols, nil
}

// ListTables returns all table names in name order.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tables ORDER BY name COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("list tables: scan: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// InsertRow appends a row. Columns must belong to the table; missing
// columns are stored as null.
func (s *Store) InsertRow(ctx context.Context, table string, row ir.Row) error {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	if err := checkColumns(table, cols, row); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}

	full := make(ir.Row, len(cols))
	for _, c := range cols {
		if v, ok := row[c]; ok {
			full[c] = v
		} else {
			full[c] = ir.Null{}
		}
	}

	data, err := ir.MarshalCanonical(full)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO table_rows (table_name, data) VALUES (?, ?)
	`, table, string(data))
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

// ReadRows returns rows matching every filter in where, in insertion order.
func (s *Store) ReadRows(ctx context.Context, table string, where ir.Row) ([]ir.Row, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if err := checkColumns(table, cols, where); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	filterSQL, params := compileWhere(table, where)
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM table_rows WHERE "+filterSQL+" ORDER BY id ASC",
		params...)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	defer rows.Close()

	var out []ir.Row
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("read rows: scan: %w", err)
		}
		var r ir.Row
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("read rows: decode: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// checkColumns returns a *SchemaError for the first unknown column,
// checked in sorted order so the error is deterministic.
func checkColumns(table string, cols []string, row ir.Row) error {
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	for _, k := range row.SortedKeys() {
		if !known[k] {
			return &SchemaError{Table: table, Column: k}
		}
	}
	return nil
}
