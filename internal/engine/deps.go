package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"actionline/internal/audit"
	"actionline/internal/domain"
)

// AddDependencyOptions are parameters for adding a dependency edge.
type AddDependencyOptions struct {
	ActionID    string
	DependsOnID string
	UserID      string
	Type        domain.DependencyType
	LagDays     int
}

// DependencyResult reports whether an edge was written. A rejected cycle
// is a result, not an error: no edge is created and Reason explains why.
type DependencyResult struct {
	Created bool
	Reason  string
	Edge    domain.Dependency
}

func (e Engine) AddDependency(ctx context.Context, opts AddDependencyOptions) (DependencyResult, error) {
	if opts.ActionID == opts.DependsOnID {
		return DependencyResult{}, errors.New("action cannot depend on itself")
	}
	depType := opts.Type
	if depType == "" {
		depType = domain.FinishToStart
	}
	if !depType.Valid() {
		return DependencyResult{}, fmt.Errorf("unknown dependency type %s", depType)
	}
	a, err := e.getOwned(ctx, opts.ActionID, opts.UserID)
	if err != nil {
		return DependencyResult{}, err
	}
	dependsOn, err := e.getOwned(ctx, opts.DependsOnID, opts.UserID)
	if err != nil {
		return DependencyResult{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	edge := domain.Dependency{
		ActionID:    opts.ActionID,
		DependsOnID: opts.DependsOnID,
		Type:        depType,
		LagDays:     opts.LagDays,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return DependencyResult{}, err
	}
	defer tx.Rollback()

	// Checked in the same transaction as the insert so concurrent adds
	// cannot slip a cycle past the reachability walk.
	cycle, err := e.wouldCycle(ctx, tx, opts.ActionID, opts.DependsOnID)
	if err != nil {
		return DependencyResult{}, err
	}
	if cycle {
		e.log().Warn("dependency rejected: would create cycle",
			"action_id", opts.ActionID, "depends_on", opts.DependsOnID)
		return DependencyResult{
			Created: false,
			Reason:  fmt.Sprintf("dependency on %s would create a cycle; no edge created", dependsOn.Title),
		}, nil
	}

	if err := e.Repo.InsertDependency(ctx, tx, edge); err != nil {
		return DependencyResult{}, fmt.Errorf("insert dependency: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   a.ID,
		ActorID:    opts.UserID,
		UpdateType: "dependency_added",
		Content:    fmt.Sprintf("depends on %s (%s, lag %d)", dependsOn.Title, depType, opts.LagDays),
	}); err != nil {
		return DependencyResult{}, err
	}

	// A todo action with any unfinished dependency is blocked on it and
	// eligible for automatic unblocking later. The new edge alone is not
	// decisive: an older incomplete dependency blocks just the same.
	if a.Status == domain.StatusTodo {
		incomplete, err := e.incompleteDependencyTx(ctx, tx, a.ID)
		if err != nil {
			return DependencyResult{}, err
		}
		if incomplete != nil {
			reason := fmt.Sprintf("waiting on %s", incomplete.Title)
			a.BlockedReason = &reason
			a.BlockedAt = &now
			a.AutoUnblock = true
			from := a.Status
			a.Status = domain.StatusBlocked
			a.UpdatedAt = now
			if err := e.Repo.UpdateAction(ctx, tx, a); err != nil {
				return DependencyResult{}, err
			}
			to := a.Status
			if err := e.Audit.Append(ctx, tx, audit.Record{
				ActionID:   a.ID,
				ActorID:    opts.UserID,
				UpdateType: "status_change",
				Content:    reason,
				OldStatus:  &from,
				NewStatus:  &to,
			}); err != nil {
				return DependencyResult{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return DependencyResult{}, err
	}

	if _, err := e.RecalculateDatesCascade(ctx, a.ID); err != nil {
		e.log().Warn("cascade after dependency add failed", "action_id", a.ID, "error", err)
	}
	return DependencyResult{Created: true, Edge: edge}, nil
}

// wouldCycle walks breadth-first from dependsOnID over its dependencies;
// reaching actionID means the new edge would close a loop.
func (e Engine) wouldCycle(ctx context.Context, tx *sql.Tx, actionID, dependsOnID string) (bool, error) {
	visited := map[string]bool{dependsOnID: true}
	queue := []string{dependsOnID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		edges, err := e.Repo.DependenciesTx(ctx, tx, current)
		if err != nil {
			return false, err
		}
		for _, edge := range edges {
			if edge.DependsOnID == actionID {
				return true, nil
			}
			if !visited[edge.DependsOnID] {
				visited[edge.DependsOnID] = true
				queue = append(queue, edge.DependsOnID)
			}
		}
	}
	return false, nil
}

// RemoveDependency deletes an edge, reverting an auto-blocked action to
// todo when its last incomplete dependency goes away.
func (e Engine) RemoveDependency(ctx context.Context, actionID, dependsOnID, userID string) error {
	a, err := e.getOwned(ctx, actionID, userID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDependency(ctx, tx, actionID, dependsOnID); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   actionID,
		ActorID:    userID,
		UpdateType: "dependency_removed",
		Content:    fmt.Sprintf("no longer depends on %s", dependsOnID),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if a.Status == domain.StatusBlocked && a.AutoUnblock {
		incomplete, err := e.incompleteDependency(ctx, actionID)
		if err != nil {
			return err
		}
		if incomplete == nil {
			a, err = e.Repo.GetAction(ctx, actionID)
			if err != nil {
				return err
			}
			if err := e.unblockAction(ctx, a, userID); err != nil {
				return err
			}
		}
	}
	if _, err := e.RecalculateDatesCascade(ctx, actionID); err != nil {
		e.log().Warn("cascade after dependency remove failed", "action_id", actionID, "error", err)
	}
	return nil
}

// Dependencies returns the direct dependency edges of one action.
func (e Engine) Dependencies(ctx context.Context, actionID string) ([]domain.Dependency, error) {
	return e.Repo.Dependencies(ctx, actionID)
}

// Dependents returns the direct dependent edges of one action.
func (e Engine) Dependents(ctx context.Context, actionID string) ([]domain.Dependency, error) {
	return e.Repo.Dependents(ctx, actionID)
}

// DependenciesForActions batches direct-dependency lookup for many
// actions into a single query.
func (e Engine) DependenciesForActions(ctx context.Context, actionIDs []string) (map[string][]domain.Dependency, error) {
	return e.Repo.DependenciesForActions(ctx, actionIDs)
}

// TransitiveDependencies walks the dependency graph from an action,
// annotating each reachable edge with its depth. Traversal stops at
// maxDepth (the configured graph depth when <= 0) to bound pathological
// graphs.
func (e Engine) TransitiveDependencies(ctx context.Context, actionID string, maxDepth int) ([]domain.DepthDependency, error) {
	if maxDepth <= 0 {
		maxDepth = e.maxGraphDepth()
	}
	if _, err := e.Repo.GetAction(ctx, actionID); err != nil {
		return nil, err
	}
	type frame struct {
		id    string
		depth int
	}
	visited := map[string]bool{actionID: true}
	queue := []frame{{id: actionID, depth: 0}}
	var res []domain.DepthDependency
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= maxDepth {
			continue
		}
		edges, err := e.Repo.Dependencies(ctx, current.id)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			res = append(res, domain.DepthDependency{Dependency: edge, Depth: current.depth + 1})
			if !visited[edge.DependsOnID] {
				visited[edge.DependsOnID] = true
				queue = append(queue, frame{id: edge.DependsOnID, depth: current.depth + 1})
			}
		}
	}
	return res, nil
}
