package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"actionline/internal/audit"
	"actionline/internal/domain"
	"actionline/internal/schedule"
)

// ReplanOptions are parameters for replanning a failed or abandoned
// action into a fresh attempt.
type ReplanOptions struct {
	OriginalID   string
	UserID       string
	NewSteps     []string
	NewTargetEnd *string
}

// Replan clones a failed or abandoned action into a new todo action in
// the same session, links the clone back to the original, and marks
// the original replanned. Both writes happen in one transaction with an
// audit record on each side.
func (e Engine) Replan(ctx context.Context, opts ReplanOptions) (domain.Action, error) {
	orig, err := e.getOwned(ctx, opts.OriginalID, opts.UserID)
	if err != nil {
		return domain.Action{}, err
	}
	if orig.Status != domain.StatusFailed && orig.Status != domain.StatusAbandoned {
		return domain.Action{}, fmt.Errorf("cannot replan %s action (only failed or abandoned)", orig.Status)
	}
	if err := validateDate(opts.NewTargetEnd); err != nil {
		return domain.Action{}, fmt.Errorf("target end: %w", err)
	}

	now := e.now().UTC().Format(time.RFC3339)
	today := schedule.FormatDate(e.today())
	clone := domain.Action{
		ID:              uuid.New().String(),
		UserID:          orig.UserID,
		SessionID:       orig.SessionID,
		ProjectID:       orig.ProjectID,
		Title:           orig.Title,
		Description:     orig.Description,
		StepsJSON:       orig.StepsJSON,
		SuccessCriteria: orig.SuccessCriteria,
		KillCriteria:    orig.KillCriteria,
		Status:          domain.StatusTodo,
		Priority:        orig.Priority,
		Category:        orig.Category,
		Timeline:        orig.Timeline,
		EstimatedDays:   orig.EstimatedDays,
		TargetStart:     &today,
		TargetEnd:       orig.TargetEnd,
		ReplannedFrom:   &orig.ID,
		Confidence:      orig.Confidence,
		SortOrder:       orig.SortOrder,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if len(opts.NewSteps) > 0 {
		stepsJSON, err := marshalStringSlice(opts.NewSteps)
		if err != nil {
			return domain.Action{}, err
		}
		clone.StepsJSON = stepsJSON
	}
	if opts.NewTargetEnd != nil {
		clone.TargetEnd = opts.NewTargetEnd
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Action{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAction(ctx, tx, clone); err != nil {
		return domain.Action{}, fmt.Errorf("insert replan: %w", err)
	}
	origFrom := orig.Status
	orig.Status = domain.StatusReplanned
	orig.UpdatedAt = now
	if err := e.Repo.UpdateAction(ctx, tx, orig); err != nil {
		return domain.Action{}, err
	}
	origTo := orig.Status
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   orig.ID,
		ActorID:    opts.UserID,
		UpdateType: "replanned",
		Content:    fmt.Sprintf("replanned as %s", clone.ID),
		OldStatus:  &origFrom,
		NewStatus:  &origTo,
	}); err != nil {
		return domain.Action{}, err
	}
	cloneStatus := clone.Status
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   clone.ID,
		ActorID:    opts.UserID,
		UpdateType: "created",
		Content:    fmt.Sprintf("replan of %s", orig.ID),
		NewStatus:  &cloneStatus,
	}); err != nil {
		return domain.Action{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Action{}, err
	}

	if _, err := e.RecalculateActionDates(ctx, clone.ID); err != nil {
		e.log().Warn("recalculate after replan failed", "action_id", clone.ID, "error", err)
	}
	return e.Repo.GetAction(ctx, clone.ID)
}
