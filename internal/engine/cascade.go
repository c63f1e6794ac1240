package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"actionline/internal/domain"
	"actionline/internal/repo"
	"actionline/internal/schedule"
)

// CalculateEstimatedStart derives the earliest business day an action
// can start. The result is the latest of today, the action's target
// start, and the constraint each dependency imposes:
//
//	finish_to_start: dependency end + lag + 1 business days
//	start_to_start:  dependency start + lag business days
//	finish_to_finish: no start constraint
//
// A finished dependency constrains by its actual end date, an open one
// by its estimated end.
func (e Engine) CalculateEstimatedStart(ctx context.Context, a domain.Action) (time.Time, error) {
	start := e.today()
	if a.TargetStart != nil {
		if ts, err := schedule.ParseDate(*a.TargetStart); err == nil && ts.After(start) {
			start = ts
		}
	}
	deps, err := e.Repo.Dependencies(ctx, a.ID)
	if err != nil {
		return time.Time{}, err
	}
	for _, edge := range deps {
		dep, err := e.Repo.GetAction(ctx, edge.DependsOnID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return time.Time{}, err
		}
		if dep.DeletedAt != nil {
			continue
		}
		var candidate time.Time
		switch edge.Type {
		case domain.StartToStart:
			anchor := depStartDate(dep)
			if anchor == nil {
				continue
			}
			candidate = schedule.AddBusinessDays(*anchor, edge.LagDays)
		case domain.FinishToFinish:
			continue
		default: // finish_to_start
			anchor := depEndDate(dep)
			if anchor == nil {
				continue
			}
			candidate = schedule.AddBusinessDays(*anchor, edge.LagDays+1)
		}
		if candidate.After(start) {
			start = candidate
		}
	}
	return start, nil
}

// depEndDate picks the date a dependency finishes: the actual end for a
// finished action, the estimated end otherwise.
func depEndDate(dep domain.Action) *time.Time {
	if dep.Finished() && dep.ActualEnd != nil {
		if ts, err := time.Parse(time.RFC3339, *dep.ActualEnd); err == nil {
			d := schedule.Truncate(ts)
			return &d
		}
	}
	if dep.EstimatedEnd != nil {
		if d, err := schedule.ParseDate(*dep.EstimatedEnd); err == nil {
			return &d
		}
	}
	return nil
}

func depStartDate(dep domain.Action) *time.Time {
	if dep.ActualStart != nil {
		if ts, err := time.Parse(time.RFC3339, *dep.ActualStart); err == nil {
			d := schedule.Truncate(ts)
			return &d
		}
	}
	if dep.EstimatedStart != nil {
		if d, err := schedule.ParseDate(*dep.EstimatedStart); err == nil {
			return &d
		}
	}
	return nil
}

// CalculateEstimatedEnd derives the end date from a start date. An
// explicit target end wins unchanged; otherwise the end is start plus
// duration minus one business days, so a one-day action starts and ends
// on the same day.
func (e Engine) CalculateEstimatedEnd(a domain.Action, start time.Time) time.Time {
	if a.TargetEnd != nil {
		if te, err := schedule.ParseDate(*a.TargetEnd); err == nil {
			return te
		}
	}
	return schedule.AddBusinessDays(start, e.resolveDuration(a)-1)
}

// resolveDuration returns the working duration in business days: the
// explicit estimate first, then the parsed timeline text, then the
// configured default.
func (e Engine) resolveDuration(a domain.Action) int {
	if a.EstimatedDays != nil && *a.EstimatedDays > 0 {
		return *a.EstimatedDays
	}
	if a.Timeline != "" {
		if days, err := schedule.ParseTimeline(a.Timeline); err == nil && days > 0 {
			return days
		}
	}
	return e.defaultDurationDays()
}

// RecalculateActionDates recomputes and persists one action's estimated
// start and end. Closed and deleted actions keep their dates as a
// historical record.
func (e Engine) RecalculateActionDates(ctx context.Context, id string) (domain.Action, error) {
	a, err := e.Repo.GetAction(ctx, id)
	if err != nil {
		return domain.Action{}, err
	}
	if !a.Open() || a.DeletedAt != nil {
		return a, nil
	}
	start, err := e.CalculateEstimatedStart(ctx, a)
	if err != nil {
		return domain.Action{}, err
	}
	end := e.CalculateEstimatedEnd(a, start)
	startStr := schedule.FormatDate(start)
	endStr := schedule.FormatDate(end)
	if a.EstimatedStart != nil && *a.EstimatedStart == startStr &&
		a.EstimatedEnd != nil && *a.EstimatedEnd == endStr {
		return a, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Action{}, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateActionDates(ctx, tx, a.ID, &startStr, &endStr, now); err != nil {
		return domain.Action{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Action{}, err
	}
	a.EstimatedStart = &startStr
	a.EstimatedEnd = &endStr
	a.UpdatedAt = now
	return a, nil
}

// RecalculateDatesCascade recomputes the root action's dates and ripples
// the change through every transitive dependent. Dependents are ordered
// by their longest path from the root so an action with several inbound
// chains is recomputed only after all of them, and each action is
// written in its own transaction. Returns the ids recomputed, root
// first.
func (e Engine) RecalculateDatesCascade(ctx context.Context, rootID string) ([]string, error) {
	ordered, err := e.dependentsByDepth(ctx, rootID)
	if err != nil {
		return nil, err
	}
	var updated []string
	for _, id := range ordered {
		if _, err := e.RecalculateActionDates(ctx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return updated, err
		}
		updated = append(updated, id)
	}
	return updated, nil
}

// dependentsByDepth orders the root and its transitive dependents by
// longest-path depth from the root, relaxing depths until the bounded
// frontier is exhausted.
func (e Engine) dependentsByDepth(ctx context.Context, rootID string) ([]string, error) {
	maxDepth := e.maxGraphDepth()
	depths := map[string]int{rootID: 0}
	queue := []string{rootID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		depth := depths[current]
		if depth >= maxDepth {
			continue
		}
		edges, err := e.Repo.Dependents(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			next := depth + 1
			if prev, seen := depths[edge.ActionID]; !seen || next > prev {
				depths[edge.ActionID] = next
				queue = append(queue, edge.ActionID)
			}
		}
	}
	ordered := make([]string, 0, len(depths))
	for id := range depths {
		ordered = append(ordered, id)
	}
	// Ties broken by id to keep cascade order deterministic.
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if depths[a] != depths[b] {
			return depths[a] < depths[b]
		}
		return a < b
	})
	return ordered, nil
}

// RecalculateAllUserDates recomputes every open action of a user,
// cheapest-first by dependency count so leaves settle before the
// actions that depend on them.
func (e Engine) RecalculateAllUserDates(ctx context.Context, userID string) ([]string, error) {
	actions, err := e.Repo.ListOpenActionsByDepCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	var updated []string
	for _, a := range actions {
		if _, err := e.RecalculateActionDates(ctx, a.ID); err != nil {
			return updated, err
		}
		updated = append(updated, a.ID)
	}
	return updated, nil
}
