package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"actionline/internal/domain"
)

// Writer appends records to the audit ledger. Appends always run inside
// the caller's transaction so a mutation and its record commit together.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Record captures one logical mutation for Append.
type Record struct {
	ActionID   string
	ActorID    string
	UpdateType string
	Content    string
	OldStatus  *domain.Status
	NewStatus  *domain.Status
	OldDate    *string
	NewDate    *string
	Progress   *int
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if rec.ActionID == "" || rec.UpdateType == "" {
		return fmt.Errorf("audit record requires action id and update type")
	}
	ts := now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO audit_records(action_id,actor_id,update_type,content,old_status,new_status,old_date,new_date,progress,ts)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ActionID, rec.ActorID, rec.UpdateType, nullable(rec.Content),
		statusPtr(rec.OldStatus), statusPtr(rec.NewStatus),
		strPtr(rec.OldDate), strPtr(rec.NewDate), intPtr(rec.Progress), ts)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func statusPtr(s *domain.Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func strPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func intPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
