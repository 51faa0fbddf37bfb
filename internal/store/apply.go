package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tabwrite/internal/ir"
)

// ApplyUpdate rewrites the rows matched by op and records op in the apply log.
// Returns the number of rows affected.
//
// The whole update runs in one transaction, so a failure leaves
// neither rows nor the apply log changed. If op.ID is already in the apply
// log the rows are not touched again and the recorded count is returned.
//
// Errors:
//   - ErrNoSuchTable if op.Table is not registered
//   - *SchemaError if a SET or WHERE column is not part of the table
func (s *Store) ApplyUpdate(ctx context.Context, ec ir.ExecContext, op *ir.UpdateOperation, mode ir.UpdateMode) (int64, error) {
	if op == nil {
		return 0, fmt.Errorf("apply update: nil operation")
	}
	if len(op.Set) == 0 {
		return 0, fmt.Errorf("apply update %s: no assignments", op.Table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("apply update: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var prior int64
	err = tx.QueryRowContext(ctx, `SELECT rows_affected FROM applied_ops WHERE op_id = ?`, op.ID).Scan(&prior)
	if err == nil {
		return prior, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("apply update: check log: %w", err)
	}

	cols, err := columnsFrom(ctx, tx, op.Table)
	if err != nil {
		return 0, fmt.Errorf("apply update: %w", err)
	}
	if err := checkColumns(op.Table, cols, op.Set); err != nil {
		return 0, fmt.Errorf("apply update: %w", err)
	}
	if err := checkColumns(op.Table, cols, op.Where); err != nil {
		return 0, fmt.Errorf("apply update: %w", err)
	}

	setSQL, setParams, err := compileSet(op.Set)
	if err != nil {
		return 0, fmt.Errorf("apply update: %w", err)
	}
	whereSQL, whereParams := compileWhere(op.Table, op.Where)

	res, err := tx.ExecContext(ctx,
		"UPDATE table_rows SET data = "+setSQL+" WHERE "+whereSQL,
		append(setParams, whereParams...)...)
	if err != nil {
		return 0, fmt.Errorf("apply update: rewrite rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("apply update: rows affected: %w", err)
	}

	secJSON, err := marshalSecurityContext(ec.Security)
	if err != nil {
		return 0, fmt.Errorf("apply update: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applied_ops
		(op_id, table_name, position, seq, mode, rows_affected, session_id, security_context, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.ID,
		op.Table,
		op.Position,
		op.Seq,
		string(mode),
		n,
		ec.SessionID,
		secJSON,
		ir.EngineVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("apply update: write log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("apply update: commit: %w", err)
	}
	return n, nil
}

// compileSet builds json_set(data, '$.a', json(?), ...) with canonical JSON
// parameters, so booleans and nulls survive as JSON types.
// Keys are sorted for deterministic SQL.
func compileSet(set ir.Row) (string, []any, error) {
	var b strings.Builder
	b.WriteString("json_set(data")
	params := make([]any, 0, len(set))
	for _, k := range set.SortedKeys() {
		v, err := ir.MarshalCanonical(set[k])
		if err != nil {
			return "", nil, fmt.Errorf("set %s: %w", k, err)
		}
		fmt.Fprintf(&b, ", '$.%s', json(?)", k)
		params = append(params, string(v))
	}
	b.WriteString(")")
	return b.String(), params, nil
}

// compileWhere builds the row filter. Values are always parameterized;
// column names are validated identifiers.
//
// Null filters use json_type so they match stored JSON null, which
// json_extract would otherwise report as SQL NULL.
func compileWhere(table string, where ir.Row) (string, []any) {
	parts := []string{"table_name = ?"}
	params := []any{table}
	for _, k := range where.SortedKeys() {
		switch v := where[k].(type) {
		case ir.Null:
			parts = append(parts, fmt.Sprintf("json_type(data, '$.%s') = 'null'", k))
		case ir.Bool:
			// json_extract maps JSON true/false to 1/0
			b := 0
			if v {
				b = 1
			}
			parts = append(parts, fmt.Sprintf("json_type(data, '$.%s') IN ('true', 'false') AND json_extract(data, '$.%s') = ?", k, k))
			params = append(params, b)
		default:
			parts = append(parts, fmt.Sprintf("json_extract(data, '$.%s') = ?", k))
			params = append(params, ir.Native(v))
		}
	}
	return strings.Join(parts, " AND "), params
}

func marshalSecurityContext(sc ir.SecurityContext) (string, error) {
	if sc.Permissions == nil {
		sc.Permissions = []string{}
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("marshal security context: %w", err)
	}
	return string(data), nil
}
