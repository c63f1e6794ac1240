// Package engine implements the action scheduling and dependency engine.
// Every mutating operation runs inside one database transaction that also
// writes its audit record; cascade recomputation over dependents runs
// after commit as independent per-action transactions.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"actionline/internal/audit"
	"actionline/internal/config"
	"actionline/internal/domain"
	"actionline/internal/repo"
	"actionline/internal/schedule"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Config *config.Config
	Log    *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Config: cfg,
		Log:    slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e Engine) today() time.Time {
	return schedule.Truncate(e.now())
}

func (e Engine) maxGraphDepth() int {
	if e.Config != nil && e.Config.Scheduling.MaxGraphDepth > 0 {
		return e.Config.Scheduling.MaxGraphDepth
	}
	return 20
}

func (e Engine) defaultDurationDays() int {
	if e.Config != nil && e.Config.Scheduling.DefaultDurationDays > 0 {
		return e.Config.Scheduling.DefaultDurationDays
	}
	return 5
}

// ErrNotOwner is returned when an actor operates on another user's action.
var ErrNotOwner = errors.New("action not owned by actor")

// ActionCreateOptions are parameters for creating an action.
type ActionCreateOptions struct {
	ID              string
	UserID          string
	SessionID       string
	ProjectID       string
	Title           string
	Description     string
	Steps           []string
	SuccessCriteria string
	KillCriteria    string
	Priority        string
	Category        string
	Timeline        string
	EstimatedDays   *int
	TargetStart     *string
	TargetEnd       *string
	Confidence      *int
	SortOrder       *int
}

func (e Engine) CreateAction(ctx context.Context, opts ActionCreateOptions) (domain.Action, error) {
	if opts.Title == "" {
		return domain.Action{}, errors.New("title is required")
	}
	if opts.UserID == "" {
		return domain.Action{}, errors.New("user is required")
	}
	if opts.SessionID == "" {
		return domain.Action{}, errors.New("session is required")
	}
	s, err := e.Repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return domain.Action{}, fmt.Errorf("session %s: %w", opts.SessionID, err)
	}
	if s.UserID != opts.UserID {
		return domain.Action{}, errors.New("session belongs to a different user")
	}
	if opts.Priority != "" && e.Config != nil && !e.Config.HasPriority(opts.Priority) {
		return domain.Action{}, fmt.Errorf("unknown priority %s", opts.Priority)
	}
	if err := validateDate(opts.TargetStart); err != nil {
		return domain.Action{}, fmt.Errorf("target start: %w", err)
	}
	if err := validateDate(opts.TargetEnd); err != nil {
		return domain.Action{}, fmt.Errorf("target end: %w", err)
	}
	stepsJSON, err := marshalStringSlice(opts.Steps)
	if err != nil {
		return domain.Action{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Action{
		ID:              id,
		UserID:          opts.UserID,
		SessionID:       opts.SessionID,
		ProjectID:       optionalString(opts.ProjectID),
		Title:           opts.Title,
		Description:     opts.Description,
		StepsJSON:       stepsJSON,
		SuccessCriteria: optionalString(opts.SuccessCriteria),
		KillCriteria:    optionalString(opts.KillCriteria),
		Status:          domain.StatusTodo,
		Priority:        opts.Priority,
		Category:        opts.Category,
		Timeline:        opts.Timeline,
		EstimatedDays:   opts.EstimatedDays,
		TargetStart:     opts.TargetStart,
		TargetEnd:       opts.TargetEnd,
		Confidence:      opts.Confidence,
		SortOrder:       opts.SortOrder,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Action{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAction(ctx, tx, a); err != nil {
		return domain.Action{}, fmt.Errorf("insert action: %w", err)
	}
	newStatus := a.Status
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   a.ID,
		ActorID:    opts.UserID,
		UpdateType: "created",
		Content:    a.Title,
		NewStatus:  &newStatus,
	}); err != nil {
		return domain.Action{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Action{}, err
	}
	if _, err := e.RecalculateActionDates(ctx, a.ID); err != nil {
		e.log().Warn("recalculate after create failed", "action_id", a.ID, "error", err)
	}
	return e.Repo.GetAction(ctx, a.ID)
}

// ActionUpdateOptions encapsulates allowed content and schedule edits.
// Derived dates are never accepted here; status moves go through
// UpdateStatus.
type ActionUpdateOptions struct {
	ID              string
	UserID          string
	Title           *string
	Description     *string
	Steps           []string
	SuccessCriteria *string
	KillCriteria    *string
	Priority        *string
	Category        *string
	Timeline        *string
	EstimatedDays   *int
	TargetStart     *string
	TargetEnd       *string
	Confidence      *int
	SortOrder       *int
}

func (e Engine) UpdateAction(ctx context.Context, opts ActionUpdateOptions) (domain.Action, error) {
	a, err := e.getOwned(ctx, opts.ID, opts.UserID)
	if err != nil {
		return a, err
	}
	if a.Status.Terminal() {
		return a, fmt.Errorf("action %s is %s and can no longer change", a.ID, a.Status)
	}
	var oldDate, newDate *string
	scheduleChanged := false
	if opts.Title != nil && *opts.Title != "" {
		a.Title = *opts.Title
	}
	if opts.Description != nil {
		a.Description = *opts.Description
	}
	if opts.Steps != nil {
		stepsJSON, err := marshalStringSlice(opts.Steps)
		if err != nil {
			return a, err
		}
		a.StepsJSON = stepsJSON
	}
	if opts.SuccessCriteria != nil {
		a.SuccessCriteria = optionalString(*opts.SuccessCriteria)
	}
	if opts.KillCriteria != nil {
		a.KillCriteria = optionalString(*opts.KillCriteria)
	}
	if opts.Priority != nil {
		if *opts.Priority != "" && e.Config != nil && !e.Config.HasPriority(*opts.Priority) {
			return a, fmt.Errorf("unknown priority %s", *opts.Priority)
		}
		a.Priority = *opts.Priority
	}
	if opts.Category != nil {
		a.Category = *opts.Category
	}
	if opts.Timeline != nil {
		a.Timeline = *opts.Timeline
		scheduleChanged = true
	}
	if opts.EstimatedDays != nil {
		a.EstimatedDays = opts.EstimatedDays
		scheduleChanged = true
	}
	if opts.TargetStart != nil {
		if err := validateDate(opts.TargetStart); err != nil {
			return a, fmt.Errorf("target start: %w", err)
		}
		a.TargetStart = optionalString(*opts.TargetStart)
		scheduleChanged = true
	}
	if opts.TargetEnd != nil {
		if err := validateDate(opts.TargetEnd); err != nil {
			return a, fmt.Errorf("target end: %w", err)
		}
		oldDate = a.TargetEnd
		a.TargetEnd = optionalString(*opts.TargetEnd)
		newDate = a.TargetEnd
		scheduleChanged = true
	}
	if opts.Confidence != nil {
		a.Confidence = opts.Confidence
	}
	if opts.SortOrder != nil {
		a.SortOrder = opts.SortOrder
	}
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAction(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   a.ID,
		ActorID:    opts.UserID,
		UpdateType: "updated",
		Content:    a.Title,
		OldDate:    oldDate,
		NewDate:    newDate,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	if scheduleChanged {
		if _, err := e.RecalculateDatesCascade(ctx, a.ID); err != nil {
			e.log().Warn("cascade after update failed", "action_id", a.ID, "error", err)
		}
	}
	return e.Repo.GetAction(ctx, a.ID)
}

// DeleteAction soft-deletes a single action.
func (e Engine) DeleteAction(ctx context.Context, id, userID string) error {
	a, err := e.getOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	ts := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SoftDeleteAction(ctx, tx, a.ID, ts); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   a.ID,
		ActorID:    userID,
		UpdateType: "deleted",
		Content:    a.Title,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RestoreAction reverses a soft delete.
func (e Engine) RestoreAction(ctx context.Context, id, userID string) error {
	a, err := e.Repo.GetAction(ctx, id)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return ErrNotOwner
	}
	if a.DeletedAt == nil {
		return fmt.Errorf("action %s is not deleted", id)
	}
	ts := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RestoreAction(ctx, tx, a.ID, ts); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, audit.Record{
		ActionID:   a.ID,
		ActorID:    userID,
		UpdateType: "restored",
		Content:    a.Title,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteSessionActions soft-deletes a session and all of its live actions
// in one transaction. The cascade is explicit rather than a database
// trigger so it stays observable in the audit ledger.
func (e Engine) DeleteSessionActions(ctx context.Context, sessionID, userID string) ([]string, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, ErrNotOwner
	}
	ts := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	ids, err := e.Repo.SessionActionIDs(ctx, tx, sessionID, nil)
	if err != nil {
		return nil, err
	}
	if err := e.Repo.SoftDeleteSession(ctx, tx, sessionID, ts); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := e.Repo.SoftDeleteAction(ctx, tx, id, ts); err != nil {
			return nil, err
		}
		if err := e.Audit.Append(ctx, tx, audit.Record{
			ActionID:   id,
			ActorID:    userID,
			UpdateType: "deleted",
			Content:    "session " + sessionID + " deleted",
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// RestoreSessionActions restores a soft-deleted session and the actions
// that were removed by the same cascade.
func (e Engine) RestoreSessionActions(ctx context.Context, sessionID, userID string) ([]string, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, ErrNotOwner
	}
	if s.DeletedAt == nil {
		return nil, fmt.Errorf("session %s is not deleted", sessionID)
	}
	ts := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	ids, err := e.Repo.SessionActionIDs(ctx, tx, sessionID, s.DeletedAt)
	if err != nil {
		return nil, err
	}
	if err := e.Repo.RestoreSession(ctx, tx, sessionID); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := e.Repo.RestoreAction(ctx, tx, id, ts); err != nil {
			return nil, err
		}
		if err := e.Audit.Append(ctx, tx, audit.Record{
			ActionID:   id,
			ActorID:    userID,
			UpdateType: "restored",
			Content:    "session " + sessionID + " restored",
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// PurgeAction hard-deletes an action and its history. This bypasses soft
// delete and is intended for administrative cleanup only.
func (e Engine) PurgeAction(ctx context.Context, id, userID string) error {
	a, err := e.Repo.GetAction(ctx, id)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return ErrNotOwner
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.PurgeAction(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// getOwned loads a live action and checks ownership.
func (e Engine) getOwned(ctx context.Context, id, userID string) (domain.Action, error) {
	a, err := e.Repo.GetAction(ctx, id)
	if err != nil {
		return a, err
	}
	if a.DeletedAt != nil {
		return a, repo.ErrNotFound
	}
	if userID != "" && a.UserID != userID {
		return a, ErrNotOwner
	}
	return a, nil
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func validateDate(s *string) error {
	if s == nil || *s == "" {
		return nil
	}
	if _, err := schedule.ParseDate(*s); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", *s)
	}
	return nil
}
