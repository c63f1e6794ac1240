package repo

import (
	"context"
	"database/sql"
	"strings"

	"actionline/internal/domain"
)

const depColumns = `action_id,depends_on_id,dep_type,lag_days,created_at`

func scanDependency(s rowScanner) (domain.Dependency, error) {
	var d domain.Dependency
	err := s.Scan(&d.ActionID, &d.DependsOnID, &d.Type, &d.LagDays, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

// InsertDependency writes an edge, ignoring duplicates on the composite key.
func (r Repo) InsertDependency(ctx context.Context, tx *sql.Tx, d domain.Dependency) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO action_deps(`+depColumns+`) VALUES (?,?,?,?,?)`,
		d.ActionID, d.DependsOnID, string(d.Type), d.LagDays, d.CreatedAt)
	return err
}

func (r Repo) DeleteDependency(ctx context.Context, tx *sql.Tx, actionID, dependsOnID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM action_deps WHERE action_id=? AND depends_on_id=?`, actionID, dependsOnID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Dependencies returns the edges a pointing from actionID to what it
// depends on.
func (r Repo) Dependencies(ctx context.Context, actionID string) ([]domain.Dependency, error) {
	return r.queryDeps(ctx, `SELECT `+depColumns+` FROM action_deps WHERE action_id=?`, actionID)
}

func (r Repo) DependenciesTx(ctx context.Context, tx *sql.Tx, actionID string) ([]domain.Dependency, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+depColumns+` FROM action_deps WHERE action_id=?`, actionID)
	if err != nil {
		return nil, err
	}
	return collectDeps(rows)
}

// Dependents returns the edges of actions that depend on actionID.
func (r Repo) Dependents(ctx context.Context, actionID string) ([]domain.Dependency, error) {
	return r.queryDeps(ctx, `SELECT `+depColumns+` FROM action_deps WHERE depends_on_id=?`, actionID)
}

// DependenciesForActions fetches direct dependencies for many actions in
// one round trip, keyed by action id.
func (r Repo) DependenciesForActions(ctx context.Context, actionIDs []string) (map[string][]domain.Dependency, error) {
	res := map[string][]domain.Dependency{}
	if len(actionIDs) == 0 {
		return res, nil
	}
	placeholders := strings.Repeat("?,", len(actionIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(actionIDs))
	for i, id := range actionIDs {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+depColumns+` FROM action_deps WHERE action_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	deps, err := collectDeps(rows)
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		res[d.ActionID] = append(res[d.ActionID], d)
	}
	return res, nil
}

func (r Repo) queryDeps(ctx context.Context, query string, args ...any) ([]domain.Dependency, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectDeps(rows)
}

func collectDeps(rows *sql.Rows) ([]domain.Dependency, error) {
	defer rows.Close()
	var res []domain.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
