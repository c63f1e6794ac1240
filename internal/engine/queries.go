package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"actionline/internal/domain"
	"actionline/internal/repo"
)

// GetAction returns one live action by id, enforcing ownership.
// Soft-deleted actions read as not found until restored.
func (e Engine) GetAction(ctx context.Context, id, userID string) (domain.Action, error) {
	return e.getOwned(ctx, id, userID)
}

// ListActions returns a filtered page of a user's actions.
func (e Engine) ListActions(ctx context.Context, f repo.ActionFilters) ([]domain.Action, error) {
	return e.Repo.ListActions(ctx, f)
}

// AuditTrail returns a page of audit records, newest first.
func (e Engine) AuditTrail(ctx context.Context, f repo.AuditFilters) ([]domain.AuditRecord, error) {
	return e.Repo.ListAuditRecords(ctx, f)
}

// AuditCount returns the total number of ledger entries for an action.
func (e Engine) AuditCount(ctx context.Context, actionID string) (int, error) {
	return e.Repo.CountAuditRecords(ctx, actionID)
}

// StatusCounts tallies a user's live actions per status.
func (e Engine) StatusCounts(ctx context.Context, userID string) (map[string]int, error) {
	return e.Repo.CountActionsByStatus(ctx, userID)
}

// CreateSession opens a new working session for a user.
func (e Engine) CreateSession(ctx context.Context, userID string) (domain.Session, error) {
	s := domain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    "active",
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertSession(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// GetSession returns one session by id.
func (e Engine) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return e.Repo.GetSession(ctx, id)
}

// SetSessionStatus records the outcome of a session. Actions keep their
// own lifecycle; this only moves the container.
func (e Engine) SetSessionStatus(ctx context.Context, id, userID, status string) (domain.Session, error) {
	switch status {
	case "active", "completed", "failed_acknowledged":
	default:
		return domain.Session{}, fmt.Errorf("unknown session status %s", status)
	}
	s, err := e.Repo.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if s.UserID != userID {
		return domain.Session{}, ErrNotOwner
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSessionStatus(ctx, tx, id, status); err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	s.Status = status
	return s, nil
}
