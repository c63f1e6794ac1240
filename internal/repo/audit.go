package repo

import (
	"context"
	"database/sql"
	"strings"

	"actionline/internal/domain"
)

type AuditFilters struct {
	ActionID   string
	ActorID    string
	UpdateType string
	Limit      int
	CursorID   int64
}

// ListAuditRecords returns ledger entries newest-first. The ledger has no
// update or delete path; reads are the only other operation.
func (r Repo) ListAuditRecords(ctx context.Context, f AuditFilters) ([]domain.AuditRecord, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ActionID != "" {
		clauses = append(clauses, "action_id=?")
		args = append(args, f.ActionID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.UpdateType != "" {
		clauses = append(clauses, "update_type=?")
		args = append(args, f.UpdateType)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,action_id,actor_id,update_type,content,old_status,new_status,old_date,new_date,progress,ts FROM audit_records ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var content, oldStatus, newStatus, oldDate, newDate sql.NullString
		var progress sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.ActionID, &rec.ActorID, &rec.UpdateType, &content, &oldStatus, &newStatus, &oldDate, &newDate, &progress, &rec.TS); err != nil {
			return nil, err
		}
		if content.Valid {
			rec.Content = content.String
		}
		rec.OldStatus = fromNullString(oldStatus)
		rec.NewStatus = fromNullString(newStatus)
		rec.OldDate = fromNullString(oldDate)
		rec.NewDate = fromNullString(newDate)
		rec.Progress = fromNullInt(progress)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// CountAuditRecords returns the number of ledger entries for an action.
func (r Repo) CountAuditRecords(ctx context.Context, actionID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM audit_records WHERE action_id=?`, actionID).Scan(&n)
	return n, err
}
