package repo

import (
	"context"
	"database/sql"

	"actionline/internal/domain"
)

func (r Repo) InsertSession(ctx context.Context, s domain.Session) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sessions(id,user_id,status,deleted_at,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.UserID, s.Status, nullableStringPtr(s.DeletedAt), s.CreatedAt)
	return err
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var s domain.Session
	var deletedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,user_id,status,deleted_at,created_at FROM sessions WHERE id=?`, id).
		Scan(&s.ID, &s.UserID, &s.Status, &deletedAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.DeletedAt = fromNullString(deletedAt)
	return s, err
}

func (r Repo) UpdateSessionStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SoftDeleteSession(ctx context.Context, tx *sql.Tx, id, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET deleted_at=? WHERE id=? AND deleted_at IS NULL`, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) RestoreSession(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET deleted_at=NULL WHERE id=? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SessionActionIDs lists actions belonging to a session, optionally only
// those sharing the session's soft-delete timestamp (for restore).
func (r Repo) SessionActionIDs(ctx context.Context, tx *sql.Tx, sessionID string, deletedAt *string) ([]string, error) {
	query := `SELECT id FROM actions WHERE session_id=? AND deleted_at IS NULL`
	args := []any{sessionID}
	if deletedAt != nil {
		query = `SELECT id FROM actions WHERE session_id=? AND deleted_at=?`
		args = append(args, *deletedAt)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
