package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yohanns/storefront/internal/domain"
)

const stageColumns = `id, order_id, stage, status, notes, updated_by, started_at, completed_at, updated_at`

func scanStage(s rowScanner) (*domain.WorkflowStage, error) {
	var st domain.WorkflowStage
	var startedAt, completedAt sql.NullString
	var updatedAt string
	err := s.Scan(&st.ID, &st.OrderID, &st.Stage, &st.Status, &st.Notes, &st.UpdatedBy,
		&startedAt, &completedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	st.StartedAt = nullStringToTime(startedAt)
	st.CompletedAt = nullStringToTime(completedAt)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

// ListStages returns stages of the given orders, or of every order.
func (db *DB) ListStages(ctx context.Context, orderIDs ...string) ([]domain.WorkflowStage, error) {
	query := `SELECT ` + stageColumns + ` FROM production_workflow`
	var args []any
	if len(orderIDs) > 0 {
		clause, a := inClause("order_id", orderIDs)
		query += " WHERE " + clause
		args = a
	}
	query += " ORDER BY order_id, id"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow stages: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkflowStage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow stage: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// GetStage returns one stage of an order.
func (db *DB) GetStage(ctx context.Context, orderID, stage string) (*domain.WorkflowStage, error) {
	st, err := scanStage(db.conn.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM production_workflow WHERE order_id = ? AND stage = ?`, orderID, stage))
	if err != nil {
		return nil, notFound(err)
	}
	return st, nil
}

// InitStages inserts stages that are not present yet.
func (db *DB) InitStages(ctx context.Context, stages []domain.WorkflowStage) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range stages {
		st := &stages[i]
		if st.ID == "" {
			st.ID = newID()
		}
		if st.UpdatedAt.IsZero() {
			st.UpdatedAt = db.now()
		}
		_, err := tx.ExecContext(ctx, `
		INSERT INTO production_workflow (`+stageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id, stage) DO NOTHING`,
			st.ID, st.OrderID, st.Stage, st.Status, st.Notes, st.UpdatedBy,
			timeToNullString(st.StartedAt), timeToNullString(st.CompletedAt), formatTime(st.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert stage %s/%s: %w", st.OrderID, st.Stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveStage updates an existing stage row.
func (db *DB) SaveStage(ctx context.Context, st *domain.WorkflowStage) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = db.now()
	}
	res, err := db.conn.ExecContext(ctx, `
	UPDATE production_workflow SET
		status = ?, notes = ?, updated_by = ?, started_at = ?, completed_at = ?, updated_at = ?
	WHERE order_id = ? AND stage = ?`,
		st.Status, st.Notes, st.UpdatedBy, timeToNullString(st.StartedAt), timeToNullString(st.CompletedAt),
		formatTime(st.UpdatedAt), st.OrderID, st.Stage)
	if err != nil {
		return fmt.Errorf("failed to save stage %s/%s: %w", st.OrderID, st.Stage, err)
	}
	return requireAffected(res)
}

// AppendHistory records a stage change.
func (db *DB) AppendHistory(ctx context.Context, h *domain.WorkflowHistory) error {
	if h.ID == "" {
		h.ID = newID()
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = db.now()
	}
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO production_workflow_history (id, order_id, stage, old_status, new_status, notes, updated_by, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.OrderID, h.Stage, h.OldStatus, h.NewStatus, h.Notes, h.UpdatedBy, formatTime(h.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append workflow history: %w", err)
	}
	return nil
}

// ListHistory returns an order's stage changes newest first.
func (db *DB) ListHistory(ctx context.Context, orderID string) ([]domain.WorkflowHistory, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, order_id, stage, old_status, new_status, notes, updated_by, timestamp
	FROM production_workflow_history WHERE order_id = ? ORDER BY timestamp DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow history: %w", err)
	}
	defer rows.Close()

	out := []domain.WorkflowHistory{}
	for rows.Next() {
		var h domain.WorkflowHistory
		var ts string
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Stage, &h.OldStatus, &h.NewStatus, &h.Notes, &h.UpdatedBy, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan workflow history: %w", err)
		}
		h.Timestamp = parseTime(ts)
		out = append(out, h)
	}
	return out, rows.Err()
}
