package actionlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Actionline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Action represents the API action model (partial).
type Action struct {
	ID             string  `json:"id"`
	SessionID      string  `json:"session_id"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	Priority       string  `json:"priority,omitempty"`
	Timeline       string  `json:"timeline,omitempty"`
	EstimatedStart *string `json:"estimated_start,omitempty"`
	EstimatedEnd   *string `json:"estimated_end,omitempty"`
	BlockedReason  *string `json:"blocked_reason,omitempty"`
	ReplannedFrom  *string `json:"replanned_from,omitempty"`
}

// Session represents a working session.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// DependencyResult reports the outcome of an add-dependency call. A
// rejected cycle comes back with Created=false and a Reason.
type DependencyResult struct {
	Created     bool   `json:"created"`
	Reason      string `json:"reason,omitempty"`
	ActionID    string `json:"action_id,omitempty"`
	DependsOnID string `json:"depends_on_id,omitempty"`
	Type        string `json:"type,omitempty"`
	LagDays     int    `json:"lag_days,omitempty"`
}

// AuditRecord represents one ledger entry.
type AuditRecord struct {
	ID         int64   `json:"id"`
	ActionID   string  `json:"action_id"`
	ActorID    string  `json:"actor_id"`
	UpdateType string  `json:"update_type"`
	Content    string  `json:"content,omitempty"`
	OldStatus  *string `json:"old_status,omitempty"`
	NewStatus  *string `json:"new_status,omitempty"`
	TS         string  `json:"ts"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login mints a dev JWT for userID and stores it on the client.
func (c *Client) Login(ctx context.Context, userID string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", map[string]any{"user_id": userID}, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// OpenSession opens a working session for the authenticated user.
func (c *Client) OpenSession(ctx context.Context) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "v0/sessions", nil, &resp)
	return resp, err
}

// CreateAction creates an action in a session.
func (c *Client) CreateAction(ctx context.Context, sessionID, title string, fields map[string]any) (Action, error) {
	body := map[string]any{
		"session_id": sessionID,
		"title":      title,
	}
	for k, v := range fields {
		body[k] = v
	}
	var resp Action
	err := c.do(ctx, http.MethodPost, "v0/actions", body, &resp)
	return resp, err
}

// GetAction fetches one action.
func (c *Client) GetAction(ctx context.Context, id string) (Action, error) {
	var resp Action
	err := c.do(ctx, http.MethodGet, "v0/actions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListActions returns the caller's actions, optionally filtered by status.
func (c *Client) ListActions(ctx context.Context, status string) ([]Action, error) {
	endpoint := "v0/actions"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Action
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateStatus moves an action through its lifecycle.
func (c *Client) UpdateStatus(ctx context.Context, id, status, reason string) (Action, error) {
	body := map[string]any{"status": status}
	if reason != "" {
		body["reason"] = reason
	}
	var resp Action
	err := c.do(ctx, http.MethodPost, "v0/actions/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// AddDependency adds a dependency edge. depType may be empty for
// finish_to_start.
func (c *Client) AddDependency(ctx context.Context, actionID, dependsOnID, depType string, lagDays int) (DependencyResult, error) {
	body := map[string]any{"depends_on_id": dependsOnID}
	if depType != "" {
		body["type"] = depType
	}
	if lagDays != 0 {
		body["lag_days"] = lagDays
	}
	var resp DependencyResult
	err := c.do(ctx, http.MethodPost, "v0/actions/"+url.PathEscape(actionID)+"/deps", body, &resp)
	return resp, err
}

// RemoveDependency removes a dependency edge.
func (c *Client) RemoveDependency(ctx context.Context, actionID, dependsOnID string) error {
	endpoint := fmt.Sprintf("v0/actions/%s/deps/%s", url.PathEscape(actionID), url.PathEscape(dependsOnID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Replan clones a failed or abandoned action into a fresh attempt.
func (c *Client) Replan(ctx context.Context, actionID string, steps []string, targetEnd string) (Action, error) {
	body := map[string]any{}
	if len(steps) > 0 {
		body["steps"] = steps
	}
	if targetEnd != "" {
		body["target_end"] = targetEnd
	}
	var resp Action
	err := c.do(ctx, http.MethodPost, "v0/actions/"+url.PathEscape(actionID)+"/replan", body, &resp)
	return resp, err
}

// AuditPage is one page of an action's audit trail plus the total
// number of ledger entries for that action.
type AuditPage struct {
	Records []AuditRecord `json:"records"`
	Total   int           `json:"total"`
}

// Audit returns the audit trail for one action.
func (c *Client) Audit(ctx context.Context, actionID string, limit int) (AuditPage, error) {
	endpoint := "v0/actions/" + url.PathEscape(actionID) + "/audit"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp AuditPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Recalculate recomputes estimated dates for every open action and
// returns the recomputed ids.
func (c *Client) Recalculate(ctx context.Context) ([]string, error) {
	var resp struct {
		ActionIDs []string `json:"action_ids"`
	}
	err := c.do(ctx, http.MethodPost, "v0/recalculate", nil, &resp)
	return resp.ActionIDs, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
