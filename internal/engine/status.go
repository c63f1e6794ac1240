package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"actionline/internal/audit"
	"actionline/internal/domain"
	"actionline/internal/repo"
)

// UpdateStatus applies a lifecycle transition with its side effects. On a
// successful move to done, the dependents cascade and the auto-unblock
// sweep run after the transaction commits.
func (e Engine) UpdateStatus(ctx context.Context, id, userID string, to domain.Status, reason string) (domain.Action, error) {
	a, err := e.getOwned(ctx, id, userID)
	if err != nil {
		return a, err
	}
	from := a.Status
	if err := domain.ValidateTransition(from, to); err != nil {
		return a, err
	}
	if from == to {
		return a, nil
	}

	now := e.now().UTC().Format(time.RFC3339)
	applyStatusEffects(&a, to, reason, now)
	a.Status = to
	a.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAction(ctx, tx, a); err != nil {
		return a, err
	}
	content := fmt.Sprintf("%s -> %s", from, to)
	if reason != "" && (to == domain.StatusBlocked || to == domain.StatusCancelled || to == domain.StatusFailed || to == domain.StatusAbandoned) {
		content = fmt.Sprintf("%s (%s)", content, reason)
	}
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   a.ID,
		ActorID:    userID,
		UpdateType: "status_change",
		Content:    content,
		OldStatus:  &from,
		NewStatus:  &to,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}

	if to == domain.StatusDone {
		if _, err := e.RecalculateDatesCascade(ctx, a.ID); err != nil {
			e.log().Warn("cascade after completion failed", "action_id", a.ID, "error", err)
		}
		if _, err := e.AutoUnblockDependents(ctx, a.ID, userID); err != nil {
			e.log().Warn("auto-unblock sweep failed", "action_id", a.ID, "error", err)
		}
	}
	return e.Repo.GetAction(ctx, a.ID)
}

// applyStatusEffects mutates the auxiliary lifecycle fields for a target
// status. Moving to blocked always leaves a reason and timestamp behind;
// every other target clears whichever closure or blocking fields no
// longer apply.
func applyStatusEffects(a *domain.Action, to domain.Status, reason, now string) {
	switch to {
	case domain.StatusBlocked:
		if reason == "" {
			reason = "blocked manually"
		}
		a.BlockedReason = &reason
		a.BlockedAt = &now
		a.AutoUnblock = false
		a.ClosureReason = nil
		a.ClosedAt = nil
	case domain.StatusCancelled:
		if reason == "" {
			reason = "cancelled"
		}
		a.ClosureReason = &reason
		a.ClosedAt = &now
		clearBlocking(a)
	case domain.StatusFailed, domain.StatusAbandoned:
		if reason == "" {
			reason = string(to)
		}
		a.ClosureReason = &reason
		a.ClosedAt = &now
		clearBlocking(a)
	default:
		clearBlocking(a)
		a.ClosureReason = nil
		a.ClosedAt = nil
	}
	switch to {
	case domain.StatusInProgress:
		if a.ActualStart == nil {
			a.ActualStart = &now
		}
	case domain.StatusDone:
		if a.ActualStart == nil {
			a.ActualStart = &now
		}
		a.ActualEnd = &now
	}
}

func clearBlocking(a *domain.Action) {
	a.BlockedReason = nil
	a.BlockedAt = nil
	a.AutoUnblock = false
}

// AutoUnblockDependents re-checks every direct dependent of a completed
// action that is blocked with auto-unblock enabled, and returns the ids
// of actions moved back to todo. Each unblock commits independently.
func (e Engine) AutoUnblockDependents(ctx context.Context, completedID, actorID string) ([]string, error) {
	edges, err := e.Repo.Dependents(ctx, completedID)
	if err != nil {
		return nil, err
	}
	var unblocked []string
	for _, edge := range edges {
		dep, err := e.Repo.GetAction(ctx, edge.ActionID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return unblocked, err
		}
		if dep.DeletedAt != nil || dep.Status != domain.StatusBlocked || !dep.AutoUnblock {
			continue
		}
		incomplete, err := e.incompleteDependency(ctx, dep.ID)
		if err != nil {
			return unblocked, err
		}
		if incomplete != nil {
			continue
		}
		if err := e.unblockAction(ctx, dep, actorID); err != nil {
			return unblocked, err
		}
		unblocked = append(unblocked, dep.ID)
	}
	return unblocked, nil
}

// unblockAction moves a blocked action back to todo with one audit record.
func (e Engine) unblockAction(ctx context.Context, a domain.Action, actorID string) error {
	from := a.Status
	now := e.now().UTC().Format(time.RFC3339)
	a.Status = domain.StatusTodo
	clearBlocking(&a)
	a.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAction(ctx, tx, a); err != nil {
		return err
	}
	to := domain.StatusTodo
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   a.ID,
		ActorID:    actorID,
		UpdateType: "unblocked",
		Content:    "all dependencies complete",
		OldStatus:  &from,
		NewStatus:  &to,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// incompleteDependency returns the first direct dependency of actionID
// that still has work outstanding, or nil when none remain. Soft-deleted
// dependencies are treated as absent.
func (e Engine) incompleteDependency(ctx context.Context, actionID string) (*domain.Action, error) {
	edges, err := e.Repo.Dependencies(ctx, actionID)
	if err != nil {
		return nil, err
	}
	return e.firstIncomplete(ctx, nil, edges)
}

// incompleteDependencyTx is the in-transaction variant, used when edges
// written in the same transaction must be part of the check.
func (e Engine) incompleteDependencyTx(ctx context.Context, tx *sql.Tx, actionID string) (*domain.Action, error) {
	edges, err := e.Repo.DependenciesTx(ctx, tx, actionID)
	if err != nil {
		return nil, err
	}
	return e.firstIncomplete(ctx, tx, edges)
}

func (e Engine) firstIncomplete(ctx context.Context, tx *sql.Tx, edges []domain.Dependency) (*domain.Action, error) {
	for _, edge := range edges {
		var dep domain.Action
		var err error
		if tx != nil {
			dep, err = e.Repo.GetActionTx(ctx, tx, edge.DependsOnID)
		} else {
			dep, err = e.Repo.GetAction(ctx, edge.DependsOnID)
		}
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if dep.DeletedAt != nil {
			continue
		}
		if !dep.Finished() {
			return &dep, nil
		}
	}
	return nil, nil
}
