package domain

import "fmt"

// Status is the lifecycle state of an action.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusInReview   Status = "in_review"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
	StatusReplanned  Status = "replanned"
)

// transitions maps each status to the set of statuses it may move to.
// done, cancelled and replanned are terminal; failed and abandoned may
// only be replanned.
var transitions = map[Status][]Status{
	StatusTodo:       {StatusInProgress, StatusBlocked, StatusCancelled, StatusAbandoned},
	StatusBlocked:    {StatusTodo, StatusInProgress, StatusCancelled, StatusFailed, StatusAbandoned},
	StatusInProgress: {StatusTodo, StatusBlocked, StatusInReview, StatusDone, StatusCancelled, StatusFailed, StatusAbandoned},
	StatusInReview:   {StatusInProgress, StatusDone, StatusCancelled, StatusFailed},
	StatusDone:       {},
	StatusCancelled:  {},
	StatusReplanned:  {},
	StatusFailed:     {StatusReplanned},
	StatusAbandoned:  {StatusReplanned},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition out of s exists.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusReplanned
}

// ValidateTransition checks whether from may move to to. Same-status
// transitions are accepted as no-ops.
func ValidateTransition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("unknown status %q", from)
	}
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}
	if from == to {
		return nil
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	if from.Terminal() {
		return fmt.Errorf("status %s is terminal; no transition to %s allowed", from, to)
	}
	if from == StatusFailed || from == StatusAbandoned {
		return fmt.Errorf("status %s is closed; only replanned is allowed, not %s", from, to)
	}
	return fmt.Errorf("invalid status transition %s -> %s", from, to)
}
