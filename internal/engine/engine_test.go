package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"actionline/internal/config"
	"actionline/internal/db"
	"actionline/internal/domain"
	"actionline/internal/engine"
	"actionline/internal/migrate"
	"actionline/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Session string
}

// newTestEnv opens a fresh database with time frozen at Monday
// 2024-01-01 and one active session for user u1.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("u1"))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	s, err := eng.CreateSession(ctx, "u1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Session: s.ID}
}

func (env testEnv) mustCreate(t *testing.T, opts engine.ActionCreateOptions) domain.Action {
	t.Helper()
	if opts.UserID == "" {
		opts.UserID = "u1"
	}
	if opts.SessionID == "" {
		opts.SessionID = env.Session
	}
	a, err := env.Engine.CreateAction(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create action %q: %v", opts.Title, err)
	}
	return a
}

func (env testEnv) mustStatus(t *testing.T, id string, to domain.Status) domain.Action {
	t.Helper()
	a, err := env.Engine.UpdateStatus(env.Ctx, id, "u1", to, "")
	if err != nil {
		t.Fatalf("status %s -> %s: %v", id, to, err)
	}
	return a
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "ship it"})

	a = env.mustStatus(t, a.ID, domain.StatusInProgress)
	if a.ActualStart == nil {
		t.Fatal("in_progress should set actual_start")
	}
	a = env.mustStatus(t, a.ID, domain.StatusInReview)
	a = env.mustStatus(t, a.ID, domain.StatusDone)
	if a.ActualEnd == nil {
		t.Fatal("done should set actual_end")
	}
	// done is terminal
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, "u1", domain.StatusTodo, ""); err == nil {
		t.Fatal("expected terminal transition to fail")
	}
	// same-status move is a no-op, not an error
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, "u1", domain.StatusDone, ""); err != nil {
		t.Fatalf("same-status no-op: %v", err)
	}
}

func TestClosureReasonRecorded(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "doomed"})
	env.mustStatus(t, a.ID, domain.StatusInProgress)
	a, err := env.Engine.UpdateStatus(env.Ctx, a.ID, "u1", domain.StatusFailed, "vendor pulled out")
	if err != nil {
		t.Fatal(err)
	}
	if a.ClosureReason == nil || *a.ClosureReason != "vendor pulled out" {
		t.Fatalf("closure reason = %v", a.ClosureReason)
	}
	if a.ClosedAt == nil {
		t.Fatal("closed_at not set")
	}
	// failed only goes to replanned, and only through Replan
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, "u1", domain.StatusInProgress, ""); err == nil {
		t.Fatal("expected closed transition to fail")
	}
}

func TestAddDependencyAutoBlocks(t *testing.T) {
	env := newTestEnv(t)
	dep := env.mustCreate(t, engine.ActionCreateOptions{Title: "build API"})
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "launch"})

	res, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: dep.ID, UserID: "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created {
		t.Fatalf("edge not created: %s", res.Reason)
	}
	a, err = env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.StatusBlocked {
		t.Fatalf("status = %s, want blocked", a.Status)
	}
	if !a.AutoUnblock {
		t.Fatal("auto_unblock should be set")
	}
	if a.BlockedReason == nil || *a.BlockedReason != "waiting on build API" {
		t.Fatalf("blocked_reason = %v", a.BlockedReason)
	}
}

func TestCompletingDependencyUnblocksAndShiftsDates(t *testing.T) {
	env := newTestEnv(t)
	dep := env.mustCreate(t, engine.ActionCreateOptions{Title: "prep"})
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "follow-up"})
	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: dep.ID, UserID: "u1",
	}); err != nil {
		t.Fatal(err)
	}

	env.mustStatus(t, dep.ID, domain.StatusInProgress)
	env.mustStatus(t, dep.ID, domain.StatusDone)

	a, err := env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.StatusTodo {
		t.Fatalf("status = %s, want todo after dependency completed", a.Status)
	}
	if a.BlockedReason != nil || a.BlockedAt != nil {
		t.Fatal("blocking fields should be cleared")
	}
	// dep finished Monday 2024-01-01; finish_to_start pushes the
	// dependent to the next business day.
	if a.EstimatedStart == nil || *a.EstimatedStart != "2024-01-02" {
		t.Fatalf("estimated_start = %v, want 2024-01-02", a.EstimatedStart)
	}
	unblocks, err := env.Engine.AuditTrail(env.Ctx, repo.AuditFilters{ActionID: a.ID, UpdateType: "unblocked"})
	if err != nil {
		t.Fatal(err)
	}
	if len(unblocks) != 1 {
		t.Fatalf("unblocked records = %d, want exactly 1", len(unblocks))
	}
}

func TestManualBlockNotAutoUnblocked(t *testing.T) {
	env := newTestEnv(t)
	dep := env.mustCreate(t, engine.ActionCreateOptions{Title: "dep"})
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "main"})
	// block by hand before wiring the dependency: auto_unblock stays off
	env.mustStatus(t, a.ID, domain.StatusInProgress)
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, "u1", domain.StatusBlocked, "waiting on legal"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: dep.ID, UserID: "u1",
	}); err != nil {
		t.Fatal(err)
	}
	env.mustStatus(t, dep.ID, domain.StatusInProgress)
	env.mustStatus(t, dep.ID, domain.StatusDone)

	a, err := env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.StatusBlocked {
		t.Fatalf("manually blocked action was unblocked: %s", a.Status)
	}
}

func TestCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "a"})
	b := env.mustCreate(t, engine.ActionCreateOptions{Title: "b"})
	c := env.mustCreate(t, engine.ActionCreateOptions{Title: "c"})

	for _, edge := range [][2]string{{b.ID, a.ID}, {c.ID, b.ID}} {
		res, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
			ActionID: edge[0], DependsOnID: edge[1], UserID: "u1",
		})
		if err != nil || !res.Created {
			t.Fatalf("edge %v: %v %s", edge, err, res.Reason)
		}
	}
	// a -> c would close a cycle through b
	res, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: c.ID, UserID: "u1",
	})
	if err != nil {
		t.Fatalf("cycle must reject without error: %v", err)
	}
	if res.Created || res.Reason == "" {
		t.Fatalf("expected rejection with reason, got %+v", res)
	}
	deps, err := env.Engine.Dependencies(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 0 {
		t.Fatalf("graph changed by rejected edge: %v", deps)
	}
	// self-edge is a hard error
	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: a.ID, UserID: "u1",
	}); err == nil {
		t.Fatal("expected self-dependency error")
	}
}

func TestTimelineDerivedDates(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "campaign", Timeline: "2 weeks"})
	a, err := env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.EstimatedStart == nil || *a.EstimatedStart != "2024-01-01" {
		t.Fatalf("estimated_start = %v", a.EstimatedStart)
	}
	// 10 business days starting Monday 2024-01-01 end Friday 2024-01-12
	if a.EstimatedEnd == nil || *a.EstimatedEnd != "2024-01-12" {
		t.Fatalf("estimated_end = %v, want 2024-01-12", a.EstimatedEnd)
	}
}

func TestTargetEndWins(t *testing.T) {
	env := newTestEnv(t)
	te := "2024-02-16"
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "fixed deadline", Timeline: "1 week", TargetEnd: &te})
	a, err := env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.EstimatedEnd == nil || *a.EstimatedEnd != te {
		t.Fatalf("estimated_end = %v, want target %s", a.EstimatedEnd, te)
	}
}

func TestDependencyLagAndCascade(t *testing.T) {
	env := newTestEnv(t)
	days := 2
	dep := env.mustCreate(t, engine.ActionCreateOptions{Title: "stage one", EstimatedDays: &days})
	mid := env.mustCreate(t, engine.ActionCreateOptions{Title: "stage two", EstimatedDays: &days})
	last := env.mustCreate(t, engine.ActionCreateOptions{Title: "stage three"})

	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: mid.ID, DependsOnID: dep.ID, UserID: "u1", LagDays: 1,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: last.ID, DependsOnID: mid.ID, UserID: "u1",
	}); err != nil {
		t.Fatal(err)
	}

	// dep: Mon Jan 1 .. Tue Jan 2. lag 1 + finish_to_start gap moves
	// mid to Thu Jan 4 .. Fri Jan 5, so last starts Mon Jan 8.
	mid, err := env.Engine.GetAction(env.Ctx, mid.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if mid.EstimatedStart == nil || *mid.EstimatedStart != "2024-01-04" {
		t.Fatalf("mid estimated_start = %v, want 2024-01-04", mid.EstimatedStart)
	}
	last, err = env.Engine.GetAction(env.Ctx, last.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if last.EstimatedStart == nil || *last.EstimatedStart != "2024-01-08" {
		t.Fatalf("last estimated_start = %v, want 2024-01-08", last.EstimatedStart)
	}
}

func TestStartToStartDependency(t *testing.T) {
	env := newTestEnv(t)
	ts := "2024-01-10"
	dep := env.mustCreate(t, engine.ActionCreateOptions{Title: "kickoff", TargetStart: &ts})
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "parallel track"})
	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: dep.ID, UserID: "u1",
		Type: domain.StartToStart, LagDays: 2,
	}); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	// dep starts Wed Jan 10; +2 business days lag is Fri Jan 12
	if a.EstimatedStart == nil || *a.EstimatedStart != "2024-01-12" {
		t.Fatalf("estimated_start = %v, want 2024-01-12", a.EstimatedStart)
	}
}

func TestRemoveDependencyUnblocks(t *testing.T) {
	env := newTestEnv(t)
	dep := env.mustCreate(t, engine.ActionCreateOptions{Title: "dep"})
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "main"})
	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: dep.ID, UserID: "u1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.RemoveDependency(env.Ctx, a.ID, dep.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.StatusTodo {
		t.Fatalf("status = %s, want todo after last dependency removed", a.Status)
	}
}

func TestTransitiveDependencies(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "a"})
	b := env.mustCreate(t, engine.ActionCreateOptions{Title: "b"})
	c := env.mustCreate(t, engine.ActionCreateOptions{Title: "c"})
	for _, edge := range [][2]string{{a.ID, b.ID}, {b.ID, c.ID}} {
		if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
			ActionID: edge[0], DependsOnID: edge[1], UserID: "u1",
		}); err != nil {
			t.Fatal(err)
		}
	}
	edges, err := env.Engine.TransitiveDependencies(env.Ctx, a.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 2 {
		t.Fatalf("edges = %d, want 2", len(edges))
	}
	if edges[0].Depth != 1 || edges[1].Depth != 2 {
		t.Fatalf("depths = %d,%d", edges[0].Depth, edges[1].Depth)
	}
	// depth cap
	edges, err = env.Engine.TransitiveDependencies(env.Ctx, a.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("capped edges = %d, want 1", len(edges))
	}
}

func TestReplan(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "pitch", Timeline: "1 week"})
	env.mustStatus(t, a.ID, domain.StatusInProgress)
	env.mustStatus(t, a.ID, domain.StatusFailed)

	te := "2024-03-01"
	clone, err := env.Engine.Replan(env.Ctx, engine.ReplanOptions{
		OriginalID: a.ID, UserID: "u1",
		NewSteps:     []string{"warm intro first"},
		NewTargetEnd: &te,
	})
	if err != nil {
		t.Fatal(err)
	}
	if clone.Status != domain.StatusTodo {
		t.Fatalf("clone status = %s", clone.Status)
	}
	if clone.ReplannedFrom == nil || *clone.ReplannedFrom != a.ID {
		t.Fatalf("replanned_from = %v", clone.ReplannedFrom)
	}
	if clone.TargetEnd == nil || *clone.TargetEnd != te {
		t.Fatalf("target_end = %v", clone.TargetEnd)
	}
	orig, err := env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if orig.Status != domain.StatusReplanned {
		t.Fatalf("original status = %s", orig.Status)
	}
	// replanned original can never be replanned again
	if _, err := env.Engine.Replan(env.Ctx, engine.ReplanOptions{OriginalID: a.ID, UserID: "u1"}); err == nil {
		t.Fatal("expected replan of replanned action to fail")
	}
	// open actions cannot be replanned
	b := env.mustCreate(t, engine.ActionCreateOptions{Title: "active"})
	if _, err := env.Engine.Replan(env.Ctx, engine.ReplanOptions{OriginalID: b.ID, UserID: "u1"}); err == nil {
		t.Fatal("expected replan of open action to fail")
	}
}

func TestSessionCascadeDeleteRestore(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "one"})
	b := env.mustCreate(t, engine.ActionCreateOptions{Title: "two"})

	deleted, err := env.Engine.DeleteSessionActions(env.Ctx, env.Session, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted = %d, want 2", len(deleted))
	}
	if _, err := env.Engine.GetAction(env.Ctx, a.ID, "u1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted action still visible: %v", err)
	}

	restored, err := env.Engine.RestoreSessionActions(env.Ctx, env.Session, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 2 {
		t.Fatalf("restored = %d, want 2", len(restored))
	}
	if _, err := env.Engine.GetAction(env.Ctx, b.ID, "u1"); err != nil {
		t.Fatalf("restored action not visible: %v", err)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "mine"})
	if _, err := env.Engine.GetAction(env.Ctx, a.ID, "intruder"); !errors.Is(err, engine.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, "intruder", domain.StatusCancelled, ""); !errors.Is(err, engine.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if err := env.Engine.DeleteAction(env.Ctx, a.ID, "intruder"); !errors.Is(err, engine.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "tracked"})
	env.mustStatus(t, a.ID, domain.StatusInProgress)
	env.mustStatus(t, a.ID, domain.StatusDone)

	records, err := env.Engine.AuditTrail(env.Ctx, repo.AuditFilters{ActionID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	// newest first
	if records[0].UpdateType != "status_change" || records[len(records)-1].UpdateType != "created" {
		t.Fatalf("order wrong: %s .. %s", records[0].UpdateType, records[len(records)-1].UpdateType)
	}
	if records[0].NewStatus == nil || *records[0].NewStatus != string(domain.StatusDone) {
		t.Fatalf("last record new_status = %v", records[0].NewStatus)
	}
}

func TestSetSessionStatus(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.SetSessionStatus(env.Ctx, env.Session, "u1", "completed")
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != "completed" {
		t.Fatalf("status = %s, want completed", s.Status)
	}
	if _, err := env.Engine.SetSessionStatus(env.Ctx, env.Session, "u1", "bogus"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, err := env.Engine.SetSessionStatus(env.Ctx, env.Session, "intruder", "active"); !errors.Is(err, engine.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
}

func TestAddDependencyBlocksOnOtherIncompleteDependency(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, engine.ActionCreateOptions{Title: "ship"})
	draft := env.mustCreate(t, engine.ActionCreateOptions{Title: "draft"})
	spike := env.mustCreate(t, engine.ActionCreateOptions{Title: "spike"})
	env.mustStatus(t, spike.ID, domain.StatusInProgress)
	env.mustStatus(t, spike.ID, domain.StatusDone)

	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: draft.ID, UserID: "u1",
	}); err != nil {
		t.Fatal(err)
	}
	// manual revert to todo clears the automatic block
	if _, err := env.Engine.UpdateStatus(env.Ctx, a.ID, "u1", domain.StatusTodo, ""); err != nil {
		t.Fatal(err)
	}

	// the new edge points at a done action, but draft is still open
	if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
		ActionID: a.ID, DependsOnID: spike.ID, UserID: "u1",
	}); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.GetAction(env.Ctx, a.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusBlocked {
		t.Fatalf("status = %s, want blocked while draft is incomplete", got.Status)
	}
	if got.BlockedReason == nil || *got.BlockedReason != "waiting on draft" {
		t.Fatalf("blocked_reason = %v, want waiting on draft", got.BlockedReason)
	}
	if !got.AutoUnblock {
		t.Fatal("auto_unblock should be set")
	}
}

func TestDiamondCascadeVisitsEachDependentOnce(t *testing.T) {
	env := newTestEnv(t)
	one := 1
	root := env.mustCreate(t, engine.ActionCreateOptions{Title: "root", EstimatedDays: &one})
	b := env.mustCreate(t, engine.ActionCreateOptions{Title: "b", EstimatedDays: &one})
	c := env.mustCreate(t, engine.ActionCreateOptions{Title: "c", EstimatedDays: &one})
	d := env.mustCreate(t, engine.ActionCreateOptions{Title: "d", EstimatedDays: &one})
	for _, edge := range [][2]string{
		{b.ID, root.ID}, {c.ID, root.ID}, {c.ID, b.ID}, {d.ID, b.ID}, {d.ID, c.ID},
	} {
		if _, err := env.Engine.AddDependency(env.Ctx, engine.AddDependencyOptions{
			ActionID: edge[0], DependsOnID: edge[1], UserID: "u1",
		}); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := env.Engine.RecalculateDatesCascade(env.Ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{root.ID, b.ID, c.ID, d.ID}
	if len(ids) != len(want) {
		t.Fatalf("recomputed %d actions, want %d: %v", len(ids), len(want), ids)
	}
	seen := map[string]bool{}
	for i, id := range ids {
		if seen[id] {
			t.Fatalf("action %s recomputed twice", id)
		}
		seen[id] = true
		// longest-path order: root, then b, then c (behind root->b->c),
		// then d (behind root->b->c->d)
		if id != want[i] {
			t.Fatalf("ids[%d] = %s, want %s", i, id, want[i])
		}
	}

	got, err := env.Engine.GetAction(env.Ctx, d.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	// one-day chain root Jan 1, b Jan 2, c Jan 3 puts d on Thursday Jan 4
	if got.EstimatedStart == nil || *got.EstimatedStart != "2024-01-04" {
		t.Fatalf("d estimated_start = %v, want 2024-01-04", got.EstimatedStart)
	}
}
