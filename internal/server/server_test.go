package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"actionline/internal/config"
	"actionline/internal/db"
	"actionline/internal/domain"
	"actionline/internal/engine"
	"actionline/internal/migrate"
)

type testServer struct {
	URL     string
	Session string
	client  *http.Client
	token   string
	close   func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("u1"))
	s, err := e.CreateSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: "test-secret"}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Session: s.ID,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)

	res, body := ts.doJSON(t, http.MethodPost, "/v0/auth/dev/login", map[string]any{"user_id": "u1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(body))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	ts.token = login.Token
	return ts
}

func (s *testServer) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func (s *testServer) createAction(t *testing.T, title string) domain.Action {
	t.Helper()
	res, data := s.doJSON(t, http.MethodPost, "/v0/actions", map[string]any{
		"session_id": s.Session,
		"title":      title,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create action: %d %s", res.StatusCode, string(data))
	}
	var a domain.Action
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal action: %v", err)
	}
	return a
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token
	srv.token = ""
	res, body := srv.doJSON(t, http.MethodGet, "/v0/actions", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(body))
	}
	srv.token = "garbage"
	res, _ = srv.doJSON(t, http.MethodGet, "/v0/actions", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
	srv.token = token
	res, _ = srv.doJSON(t, http.MethodGet, "/v0/actions", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.StatusCode)
	}
}

func TestActionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createAction(t, "ship feature")

	res, data := srv.doJSON(t, http.MethodPost, "/v0/actions/"+a.ID+"/status", map[string]any{
		"status": "in_progress",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status update: %d %s", res.StatusCode, string(data))
	}
	var updated domain.Action
	_ = json.Unmarshal(data, &updated)
	if updated.Status != domain.StatusInProgress {
		t.Fatalf("status = %s", updated.Status)
	}

	// invalid transition maps to conflict
	res, data = srv.doJSON(t, http.MethodPost, "/v0/actions/"+a.ID+"/status", map[string]any{
		"status": "todo",
	})
	if res.StatusCode != http.StatusOK {
		// todo is a valid in_progress target; sanity-check the envelope path instead
		t.Fatalf("back to todo: %d %s", res.StatusCode, string(data))
	}
	res, data = srv.doJSON(t, http.MethodPost, "/v0/actions/"+a.ID+"/status", map[string]any{
		"status": "done",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for todo -> done, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("error code = %s", envelope.Error.Code)
	}
}

func TestDependencyCycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createAction(t, "a")
	b := srv.createAction(t, "b")

	res, data := srv.doJSON(t, http.MethodPost, "/v0/actions/"+b.ID+"/deps", map[string]any{
		"depends_on_id": a.ID,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add dep: %d %s", res.StatusCode, string(data))
	}
	var created DependencyResultResponse
	_ = json.Unmarshal(data, &created)
	if !created.Created {
		t.Fatalf("edge not created: %s", created.Reason)
	}

	res, data = srv.doJSON(t, http.MethodPost, "/v0/actions/"+a.ID+"/deps", map[string]any{
		"depends_on_id": b.ID,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cycle request must be 200: %d %s", res.StatusCode, string(data))
	}
	var rejected DependencyResultResponse
	_ = json.Unmarshal(data, &rejected)
	if rejected.Created || rejected.Reason == "" {
		t.Fatalf("expected rejection with reason: %+v", rejected)
	}
}

func TestAuditEndpoint(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createAction(t, "tracked")
	srv.doJSON(t, http.MethodPost, "/v0/actions/"+a.ID+"/status", map[string]any{"status": "in_progress"})

	res, data := srv.doJSON(t, http.MethodGet, "/v0/actions/"+a.ID+"/audit", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit: %d %s", res.StatusCode, string(data))
	}
	var page AuditPageResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(page.Records))
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
}

func TestSessionCascadeOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	srv.createAction(t, "one")
	srv.createAction(t, "two")

	res, data := srv.doJSON(t, http.MethodDelete, "/v0/sessions/"+srv.Session+"/actions", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete session actions: %d %s", res.StatusCode, string(data))
	}
	var deleted ActionIDsResponse
	_ = json.Unmarshal(data, &deleted)
	if len(deleted.ActionIDs) != 2 {
		t.Fatalf("deleted = %d, want 2", len(deleted.ActionIDs))
	}

	res, data = srv.doJSON(t, http.MethodPost, "/v0/sessions/"+srv.Session+"/actions/restore", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("restore session actions: %d %s", res.StatusCode, string(data))
	}
	var restored ActionIDsResponse
	_ = json.Unmarshal(data, &restored)
	if len(restored.ActionIDs) != 2 {
		t.Fatalf("restored = %d, want 2", len(restored.ActionIDs))
	}
}
