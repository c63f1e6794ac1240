package domain

// Action is a trackable unit of work with a status, optional schedule,
// and optional dependencies on other actions.
type Action struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
	ProjectID *string `json:"project_id,omitempty"`

	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	StepsJSON       *string `json:"steps_json,omitempty"`
	SuccessCriteria *string `json:"success_criteria,omitempty"`
	KillCriteria    *string `json:"kill_criteria,omitempty"`

	Status   Status `json:"status" enum:"todo,in_progress,blocked,in_review,done,cancelled,failed,abandoned,replanned"`
	Priority string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Category string `json:"category,omitempty"`

	Timeline       string  `json:"timeline,omitempty"`
	EstimatedDays  *int    `json:"estimated_duration_days,omitempty"`
	TargetStart    *string `json:"target_start,omitempty" format:"date"`
	TargetEnd      *string `json:"target_end,omitempty" format:"date"`
	EstimatedStart *string `json:"estimated_start,omitempty" format:"date"`
	EstimatedEnd   *string `json:"estimated_end,omitempty" format:"date"`
	ActualStart    *string `json:"actual_start,omitempty" format:"date-time"`
	ActualEnd      *string `json:"actual_end,omitempty" format:"date-time"`

	BlockedReason *string `json:"blocked_reason,omitempty"`
	BlockedAt     *string `json:"blocked_at,omitempty" format:"date-time"`
	AutoUnblock   bool    `json:"auto_unblock"`
	ClosureReason *string `json:"closure_reason,omitempty"`
	ClosedAt      *string `json:"closed_at,omitempty" format:"date-time"`
	ReplannedFrom *string `json:"replanned_from,omitempty"`

	Confidence *int    `json:"confidence,omitempty"`
	SortOrder  *int    `json:"sort_order,omitempty"`
	DeletedAt  *string `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

// Finished reports whether the action's schedule contribution should come
// from its actual dates rather than estimates.
func (a Action) Finished() bool {
	return a.Status == StatusDone || a.Status == StatusCancelled
}

// Open reports whether the action still participates in scheduling.
func (a Action) Open() bool {
	return !a.Status.Terminal() && a.Status != StatusFailed && a.Status != StatusAbandoned
}

// DependencyType describes how a dependency constrains scheduling.
type DependencyType string

const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
)

// Valid reports whether t is a known dependency type.
func (t DependencyType) Valid() bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish:
		return true
	}
	return false
}

// Dependency is a directed edge: ActionID depends on DependsOnID.
// The pair is unique; LagDays is measured in business days.
type Dependency struct {
	ActionID    string         `json:"action_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type" enum:"finish_to_start,start_to_start,finish_to_finish"`
	LagDays     int            `json:"lag_days"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
}

// DepthDependency annotates an edge with its distance from the traversal root.
type DepthDependency struct {
	Dependency
	Depth int `json:"depth"`
}

// AuditRecord is one append-only ledger entry. Records are written in the
// same transaction as the mutation they describe and never updated.
type AuditRecord struct {
	ID         int64   `json:"id"`
	ActionID   string  `json:"action_id"`
	ActorID    string  `json:"actor_id"`
	UpdateType string  `json:"update_type"`
	Content    string  `json:"content,omitempty"`
	OldStatus  *string `json:"old_status,omitempty"`
	NewStatus  *string `json:"new_status,omitempty"`
	OldDate    *string `json:"old_date,omitempty" format:"date"`
	NewDate    *string `json:"new_date,omitempty" format:"date"`
	Progress   *int    `json:"progress,omitempty"`
	TS         string  `json:"ts" format:"date-time"`
}

// Session is the originating container for extracted actions. Only its
// status and soft-delete lifecycle matter to this engine.
type Session struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Status    string  `json:"status" enum:"active,completed,failed_acknowledged"`
	DeletedAt *string `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}
