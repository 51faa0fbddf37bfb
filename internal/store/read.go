package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/tabwrite/internal/ir"
)

// AppliedOp is one entry of the apply log.
type AppliedOp struct {
	LogID           int64              `json:"log_id"`
	OpID            string             `json:"op_id"`
	Table           string             `json:"table"`
	Position        int                `json:"position"`
	Seq             int64              `json:"seq"`
	Mode            ir.UpdateMode      `json:"mode"`
	RowsAffected    int64              `json:"rows_affected"`
	SessionID       string             `json:"session_id"`
	SecurityContext ir.SecurityContext `json:"security_context"`
	EngineVersion   string             `json:"engine_version"`
}

// ReadAppliedOps returns the apply log for a table in apply order.
// An empty table name returns the log for all tables.
func (s *Store) ReadAppliedOps(ctx context.Context, table string) ([]AppliedOp, error) {
	query := `
		SELECT log_id, op_id, table_name, position, seq, mode, rows_affected,
		       session_id, security_context, engine_version
		FROM applied_ops`
	var args []any
	if table != "" {
		query += ` WHERE table_name = ?`
		args = append(args, table)
	}
	query += ` ORDER BY log_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read applied ops: %w", err)
	}
	defer rows.Close()

	var ops []AppliedOp
	for rows.Next() {
		var (
			op     AppliedOp
			mode   string
			secCtx string
		)
		if err := rows.Scan(
			&op.LogID, &op.OpID, &op.Table, &op.Position, &op.Seq, &mode,
			&op.RowsAffected, &op.SessionID, &secCtx, &op.EngineVersion,
		); err != nil {
			return nil, fmt.Errorf("read applied ops: scan: %w", err)
		}
		op.Mode = ir.UpdateMode(mode)
		if err := json.Unmarshal([]byte(secCtx), &op.SecurityContext); err != nil {
			return nil, fmt.Errorf("read applied ops: decode security context: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read applied ops: %w", err)
	}
	return ops, nil
}

// HasApplied reports whether an operation ID is in the apply log.
func (s *Store) HasApplied(ctx context.Context, opID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applied_ops WHERE op_id = ?`, opID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check applied: %w", err)
	}
	return count > 0, nil
}

// MaxSeq returns the highest seq in the apply log, or 0 when empty.
// Used to resume the logical clock after a restart so new operations
// never collide with logged IDs.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM applied_ops`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}
