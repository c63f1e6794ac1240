package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"actionline/internal/domain"
	"actionline/internal/engine"
	"actionline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid status transition todo -> done"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Actionline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Actionline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerSessions(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerDependencies(group, cfg.Engine)
	registerReplan(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrNotOwner) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "transition") || strings.Contains(lowered, "terminal") || strings.Contains(lowered, "closed"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "cannot replan"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Actionline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Per-status action counts for the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := e.StatusCounts(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"user_id":       userID,
			"action_counts": counts,
		}}, nil
	})
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Open a session",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSession(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-session-actions",
		Method:      http.MethodDelete,
		Path:        "/sessions/{session_id}/actions",
		Summary:     "Soft-delete a session and all its actions",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body ActionIDsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ids, err := e.DeleteSessionActions(ctx, input.SessionID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionIDsResponse `json:"body"`
		}{Body: ActionIDsResponse{ActionIDs: ids}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-session-actions",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/actions/restore",
		Summary:     "Restore a soft-deleted session with its actions",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body ActionIDsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ids, err := e.RestoreSessionActions(ctx, input.SessionID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionIDsResponse `json:"body"`
		}{Body: ActionIDsResponse{ActionIDs: ids}}, nil
	})
}

func registerActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-action",
		Method:        http.MethodPost,
		Path:          "/actions",
		Summary:       "Create action",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateActionRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAction(ctx, engine.ActionCreateOptions{
			UserID:          userID,
			SessionID:       input.Body.SessionID,
			ProjectID:       strDeref(input.Body.ProjectID),
			Title:           input.Body.Title,
			Description:     strDeref(input.Body.Description),
			Steps:           input.Body.Steps,
			SuccessCriteria: strDeref(input.Body.SuccessCriteria),
			KillCriteria:    strDeref(input.Body.KillCriteria),
			Priority:        strDeref(input.Body.Priority),
			Category:        strDeref(input.Body.Category),
			Timeline:        strDeref(input.Body.Timeline),
			EstimatedDays:   input.Body.EstimatedDays,
			TargetStart:     input.Body.TargetStart,
			TargetEnd:       input.Body.TargetEnd,
			Confidence:      input.Body.Confidence,
			SortOrder:       input.Body.SortOrder,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "List actions",
	}, func(ctx context.Context, input *struct {
		SessionID       string `query:"session_id"`
		ProjectID       string `query:"project_id"`
		Status          string `query:"status"`
		IncludeDeleted  bool   `query:"include_deleted"`
		Limit           int    `query:"limit"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body []domain.Action `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListActions(ctx, repo.ActionFilters{
			UserID:          userID,
			SessionID:       input.SessionID,
			ProjectID:       input.ProjectID,
			Status:          input.Status,
			IncludeDeleted:  input.IncludeDeleted,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Action `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-action",
		Method:      http.MethodGet,
		Path:        "/actions/{action_id}",
		Summary:     "Get action",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAction(ctx, input.ActionID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-action",
		Method:      http.MethodPatch,
		Path:        "/actions/{action_id}",
		Summary:     "Update action content or schedule inputs",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ActionID string              `path:"action_id"`
		Body     UpdateActionRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateAction(ctx, engine.ActionUpdateOptions{
			ID:              input.ActionID,
			UserID:          userID,
			Title:           input.Body.Title,
			Description:     input.Body.Description,
			Steps:           input.Body.Steps,
			SuccessCriteria: input.Body.SuccessCriteria,
			KillCriteria:    input.Body.KillCriteria,
			Priority:        input.Body.Priority,
			Category:        input.Body.Category,
			Timeline:        input.Body.Timeline,
			EstimatedDays:   input.Body.EstimatedDays,
			TargetStart:     input.Body.TargetStart,
			TargetEnd:       input.Body.TargetEnd,
			Confidence:      input.Body.Confidence,
			SortOrder:       input.Body.SortOrder,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-action-status",
		Method:      http.MethodPost,
		Path:        "/actions/{action_id}/status",
		Summary:     "Move action through its lifecycle",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ActionID string              `path:"action_id"`
		Body     UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateStatus(ctx, input.ActionID, userID, domain.Status(input.Body.Status), input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-action",
		Method:      http.MethodDelete,
		Path:        "/actions/{action_id}",
		Summary:     "Soft-delete action",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAction(ctx, input.ActionID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-action",
		Method:      http.MethodPost,
		Path:        "/actions/{action_id}/restore",
		Summary:     "Restore soft-deleted action",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RestoreAction(ctx, input.ActionID, userID); err != nil {
			return nil, handleError(err)
		}
		a, err := e.GetAction(ctx, input.ActionID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recalculate",
		Method:      http.MethodPost,
		Path:        "/recalculate",
		Summary:     "Recompute estimated dates for all open actions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ActionIDsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ids, err := e.RecalculateAllUserDates(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionIDsResponse `json:"body"`
		}{Body: ActionIDsResponse{ActionIDs: ids}}, nil
	})
}

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "add-dependency",
		Method:      http.MethodPost,
		Path:        "/actions/{action_id}/deps",
		Summary:     "Add dependency edge",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ActionID string               `path:"action_id"`
		Body     AddDependencyRequest `json:"body"`
	}) (*struct {
		Body DependencyResultResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AddDependency(ctx, engine.AddDependencyOptions{
			ActionID:    input.ActionID,
			DependsOnID: input.Body.DependsOnID,
			UserID:      userID,
			Type:        domain.DependencyType(input.Body.Type),
			LagDays:     input.Body.LagDays,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := DependencyResultResponse{Created: res.Created, Reason: res.Reason}
		if res.Created {
			out.ActionID = res.Edge.ActionID
			out.DependsOnID = res.Edge.DependsOnID
			out.Type = string(res.Edge.Type)
			out.LagDays = res.Edge.LagDays
		}
		return &struct {
			Body DependencyResultResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-dependency",
		Method:      http.MethodDelete,
		Path:        "/actions/{action_id}/deps/{depends_on_id}",
		Summary:     "Remove dependency edge",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID    string `path:"action_id"`
		DependsOnID string `path:"depends_on_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveDependency(ctx, input.ActionID, input.DependsOnID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/actions/{action_id}/deps",
		Summary:     "List dependencies, optionally transitive",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID   string `path:"action_id"`
		Transitive bool   `query:"transitive"`
		MaxDepth   int    `query:"max_depth"`
	}) (*struct {
		Body []domain.DepthDependency `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetAction(ctx, input.ActionID, userID); err != nil {
			return nil, handleError(err)
		}
		var out []domain.DepthDependency
		if input.Transitive {
			edges, err := e.TransitiveDependencies(ctx, input.ActionID, input.MaxDepth)
			if err != nil {
				return nil, handleError(err)
			}
			out = edges
		} else {
			edges, err := e.Dependencies(ctx, input.ActionID)
			if err != nil {
				return nil, handleError(err)
			}
			for _, edge := range edges {
				out = append(out, domain.DepthDependency{Dependency: edge, Depth: 1})
			}
		}
		return &struct {
			Body []domain.DepthDependency `json:"body"`
		}{Body: out}, nil
	})
}

func registerReplan(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "replan-action",
		Method:        http.MethodPost,
		Path:          "/actions/{action_id}/replan",
		Summary:       "Replan a failed or abandoned action",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ActionID string        `path:"action_id"`
		Body     ReplanRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Replan(ctx, engine.ReplanOptions{
			OriginalID:   input.ActionID,
			UserID:       userID,
			NewSteps:     input.Body.Steps,
			NewTargetEnd: input.Body.TargetEnd,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "action-audit",
		Method:      http.MethodGet,
		Path:        "/actions/{action_id}/audit",
		Summary:     "Audit trail for one action",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
		Limit    int    `query:"limit"`
		Cursor   int64  `query:"cursor"`
	}) (*struct {
		Body AuditPageResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetAction(ctx, input.ActionID, userID); err != nil {
			return nil, handleError(err)
		}
		records, err := e.AuditTrail(ctx, repo.AuditFilters{
			ActionID: input.ActionID,
			Limit:    input.Limit,
			CursorID: input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		total, err := e.AuditCount(ctx, input.ActionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuditPageResponse `json:"body"`
		}{Body: AuditPageResponse{Records: records, Total: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Audit trail for the caller",
	}, func(ctx context.Context, input *struct {
		UpdateType string `query:"update_type"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []domain.AuditRecord `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		records, err := e.AuditTrail(ctx, repo.AuditFilters{
			ActorID:    userID,
			UpdateType: input.UpdateType,
			Limit:      input.Limit,
			CursorID:   input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditRecord `json:"body"`
		}{Body: records}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := signToken(authCfg.JWTSecret, userID, 24*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
