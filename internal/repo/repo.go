package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"actionline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const actionColumns = `id,user_id,session_id,project_id,title,description,steps_json,success_criteria,kill_criteria,status,priority,category,timeline,estimated_days,target_start,target_end,estimated_start,estimated_end,actual_start,actual_end,blocked_reason,blocked_at,auto_unblock,closure_reason,closed_at,replanned_from,confidence,sort_order,deleted_at,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(s rowScanner) (domain.Action, error) {
	var a domain.Action
	var projectID, description, steps, success, kill, priority, category, timeline sql.NullString
	var targetStart, targetEnd, estStart, estEnd, actualStart, actualEnd sql.NullString
	var blockedReason, blockedAt, closureReason, closedAt, replannedFrom, deletedAt sql.NullString
	var estimatedDays, confidence, sortOrder sql.NullInt64
	var autoUnblock int
	err := s.Scan(&a.ID, &a.UserID, &a.SessionID, &projectID, &a.Title, &description, &steps, &success, &kill,
		&a.Status, &priority, &category, &timeline, &estimatedDays, &targetStart, &targetEnd, &estStart, &estEnd,
		&actualStart, &actualEnd, &blockedReason, &blockedAt, &autoUnblock, &closureReason, &closedAt,
		&replannedFrom, &confidence, &sortOrder, &deletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.ProjectID = fromNullString(projectID)
	if description.Valid {
		a.Description = description.String
	}
	a.StepsJSON = fromNullString(steps)
	a.SuccessCriteria = fromNullString(success)
	a.KillCriteria = fromNullString(kill)
	if priority.Valid {
		a.Priority = priority.String
	}
	if category.Valid {
		a.Category = category.String
	}
	if timeline.Valid {
		a.Timeline = timeline.String
	}
	a.EstimatedDays = fromNullInt(estimatedDays)
	a.TargetStart = fromNullString(targetStart)
	a.TargetEnd = fromNullString(targetEnd)
	a.EstimatedStart = fromNullString(estStart)
	a.EstimatedEnd = fromNullString(estEnd)
	a.ActualStart = fromNullString(actualStart)
	a.ActualEnd = fromNullString(actualEnd)
	a.BlockedReason = fromNullString(blockedReason)
	a.BlockedAt = fromNullString(blockedAt)
	a.AutoUnblock = autoUnblock != 0
	a.ClosureReason = fromNullString(closureReason)
	a.ClosedAt = fromNullString(closedAt)
	a.ReplannedFrom = fromNullString(replannedFrom)
	a.Confidence = fromNullInt(confidence)
	a.SortOrder = fromNullInt(sortOrder)
	a.DeletedAt = fromNullString(deletedAt)
	return a, nil
}

func (r Repo) InsertAction(ctx context.Context, tx *sql.Tx, a domain.Action) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actions(`+actionColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.SessionID, nullableStringPtr(a.ProjectID), a.Title, nullable(a.Description),
		nullableStringPtr(a.StepsJSON), nullableStringPtr(a.SuccessCriteria), nullableStringPtr(a.KillCriteria),
		string(a.Status), nullable(a.Priority), nullable(a.Category), nullable(a.Timeline),
		nullableIntPtr(a.EstimatedDays), nullableStringPtr(a.TargetStart), nullableStringPtr(a.TargetEnd),
		nullableStringPtr(a.EstimatedStart), nullableStringPtr(a.EstimatedEnd),
		nullableStringPtr(a.ActualStart), nullableStringPtr(a.ActualEnd),
		nullableStringPtr(a.BlockedReason), nullableStringPtr(a.BlockedAt), boolToInt(a.AutoUnblock),
		nullableStringPtr(a.ClosureReason), nullableStringPtr(a.ClosedAt), nullableStringPtr(a.ReplannedFrom),
		nullableIntPtr(a.Confidence), nullableIntPtr(a.SortOrder), nullableStringPtr(a.DeletedAt),
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAction(ctx context.Context, tx *sql.Tx, a domain.Action) error {
	res, err := tx.ExecContext(ctx, `UPDATE actions SET project_id=?, title=?, description=?, steps_json=?, success_criteria=?, kill_criteria=?,
status=?, priority=?, category=?, timeline=?, estimated_days=?, target_start=?, target_end=?, estimated_start=?, estimated_end=?,
actual_start=?, actual_end=?, blocked_reason=?, blocked_at=?, auto_unblock=?, closure_reason=?, closed_at=?, replanned_from=?,
confidence=?, sort_order=?, deleted_at=?, updated_at=? WHERE id=?`,
		nullableStringPtr(a.ProjectID), a.Title, nullable(a.Description),
		nullableStringPtr(a.StepsJSON), nullableStringPtr(a.SuccessCriteria), nullableStringPtr(a.KillCriteria),
		string(a.Status), nullable(a.Priority), nullable(a.Category), nullable(a.Timeline),
		nullableIntPtr(a.EstimatedDays), nullableStringPtr(a.TargetStart), nullableStringPtr(a.TargetEnd),
		nullableStringPtr(a.EstimatedStart), nullableStringPtr(a.EstimatedEnd),
		nullableStringPtr(a.ActualStart), nullableStringPtr(a.ActualEnd),
		nullableStringPtr(a.BlockedReason), nullableStringPtr(a.BlockedAt), boolToInt(a.AutoUnblock),
		nullableStringPtr(a.ClosureReason), nullableStringPtr(a.ClosedAt), nullableStringPtr(a.ReplannedFrom),
		nullableIntPtr(a.Confidence), nullableIntPtr(a.SortOrder), nullableStringPtr(a.DeletedAt),
		a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateActionDates persists only the derived schedule fields. Used by the
// cascade so per-action recompute transactions stay narrow.
func (r Repo) UpdateActionDates(ctx context.Context, tx *sql.Tx, id string, estStart, estEnd *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE actions SET estimated_start=?, estimated_end=?, updated_at=? WHERE id=?`,
		nullableStringPtr(estStart), nullableStringPtr(estEnd), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAction(ctx context.Context, id string) (domain.Action, error) {
	return scanAction(r.DB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id))
}

func (r Repo) GetActionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Action, error) {
	return scanAction(tx.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id))
}

type ActionFilters struct {
	UserID          string
	SessionID       string
	ProjectID       string
	Status          string
	IncludeDeleted  bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListActions(ctx context.Context, f ActionFilters) ([]domain.Action, error) {
	var clauses []string
	var args []any
	if !f.IncludeDeleted {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, f.SessionID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + actionColumns + ` FROM actions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListOpenActionsByDepCount returns all open, non-deleted actions for a
// user ordered by ascending direct-dependency count. Fewer dependencies
// first approximates dependency order for bulk recomputes.
func (r Repo) ListOpenActionsByDepCount(ctx context.Context, userID string) ([]domain.Action, error) {
	query := `SELECT ` + qualifiedActionColumns("a") + `
FROM actions a
LEFT JOIN action_deps d ON d.action_id = a.id
WHERE a.user_id=? AND a.deleted_at IS NULL
  AND a.status NOT IN ('done','cancelled','failed','abandoned','replanned')
GROUP BY a.id
ORDER BY COUNT(d.depends_on_id) ASC, a.created_at ASC, a.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func qualifiedActionColumns(alias string) string {
	cols := strings.Split(actionColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ",")
}

func (r Repo) SoftDeleteAction(ctx context.Context, tx *sql.Tx, id, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE actions SET deleted_at=?, updated_at=? WHERE id=? AND deleted_at IS NULL`, ts, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) RestoreAction(ctx context.Context, tx *sql.Tx, id, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE actions SET deleted_at=NULL, updated_at=? WHERE id=? AND deleted_at IS NOT NULL`, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeAction hard-deletes an action, its edges in both directions, and
// its audit trail. Administrative path only.
func (r Repo) PurgeAction(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM action_deps WHERE action_id=? OR depends_on_id=?`, id, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_records WHERE action_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountActionsByStatus(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM actions WHERE user_id=? AND deleted_at IS NULL GROUP BY status`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
