package domain

import "testing"

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusTodo, StatusInProgress, true},
		{StatusTodo, StatusBlocked, true},
		{StatusTodo, StatusAbandoned, true},
		{StatusTodo, StatusDone, false},
		{StatusTodo, StatusInReview, false},
		{StatusBlocked, StatusTodo, true},
		{StatusBlocked, StatusFailed, true},
		{StatusBlocked, StatusDone, false},
		{StatusInProgress, StatusDone, true},
		{StatusInProgress, StatusInReview, true},
		{StatusInProgress, StatusBlocked, true},
		{StatusInReview, StatusInProgress, true},
		{StatusInReview, StatusDone, true},
		{StatusInReview, StatusAbandoned, false},
		{StatusDone, StatusTodo, false},
		{StatusCancelled, StatusTodo, false},
		{StatusReplanned, StatusTodo, false},
		{StatusFailed, StatusReplanned, true},
		{StatusFailed, StatusInProgress, false},
		{StatusAbandoned, StatusReplanned, true},
		{StatusAbandoned, StatusTodo, false},
		{StatusDone, StatusDone, true}, // same-status no-op
	}
	for _, c := range cases {
		err := ValidateTransition(c.from, c.to)
		if c.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", c.from, c.to, err)
		}
		if !c.ok && err == nil {
			t.Errorf("%s -> %s: expected error", c.from, c.to)
		}
	}
	if err := ValidateTransition("bogus", StatusTodo); err == nil {
		t.Error("unknown from status accepted")
	}
	if err := ValidateTransition(StatusTodo, "bogus"); err == nil {
		t.Error("unknown to status accepted")
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusDone, StatusCancelled, StatusReplanned} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusTodo, StatusBlocked, StatusFailed, StatusAbandoned} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
