// Package mcpapi exposes the step workflow to agents as MCP tools over streamable HTTP.
package mcpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/mylabook/opsflow/internal/application/services"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/pkg/auth"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// TemplateLister lists templates, optionally by category.
type TemplateLister interface {
	ListTemplates(ctx context.Context) ([]*models.Template, error)
	ListTemplatesByCategory(ctx context.Context, categoryID int64) ([]*models.Template, error)
}

// StepOperator is the subset of step operations offered as tools.
type StepOperator interface {
	ListSteps(ctx context.Context, kind models.EntityKind, entityID int64) ([]models.StepView, error)
	SetStatus(ctx context.Context, kind models.EntityKind, stepID int64, change models.StatusChange, user *auth.UserSession) (*models.StepView, error)
	Reorder(ctx context.Context, kind models.EntityKind, entityID int64, orderedIDs []int64, user *auth.UserSession) error
	Completion(ctx context.Context, kind models.EntityKind, entityID int64) (int, error)
}

// NotificationReader derives the caller's notifications.
type NotificationReader interface {
	GetMyNotifications(ctx context.Context, userName string) []models.Notification
}

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds the MCP adapter over the given services.
func NewHandler(cfg Config, templates TemplateLister, steps StepOperator, notifications NotificationReader) (*Handler, error) {
	if templates == nil || steps == nil || notifications == nil {
		return nil, fmt.Errorf("templates, steps and notifications services are required")
	}
	cfg = normalizeConfig(cfg)

	srv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerTemplateTools(srv, templates)
	registerStepTools(srv, steps)
	registerNotificationTools(srv, notifications)

	streamable := mcpserver.NewStreamableHTTPServer(
		srv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

type userKey struct{}

// WithUser attaches the authenticated caller to ctx for tool handlers.
func WithUser(ctx context.Context, user *auth.UserSession) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the caller attached by WithUser.
func UserFromContext(ctx context.Context) *auth.UserSession {
	user, _ := ctx.Value(userKey{}).(*auth.UserSession)
	return user
}

func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "opsflow"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

func kindOption() mcp.ToolOption {
	kinds := make([]string, 0, 3)
	for _, k := range models.AllEntityKinds() {
		kinds = append(kinds, string(k))
	}
	return mcp.WithString("kind", mcp.Required(), mcp.Description("Entity kind"), mcp.Enum(kinds...))
}

func registerTemplateTools(srv *mcpserver.MCPServer, templates TemplateLister) {
	srv.AddTool(
		mcp.NewTool(
			"opsflow.list_templates",
			mcp.WithDescription("List step templates with their ordered steps."),
			mcp.WithNumber("category_id", mcp.Description("Only templates of this category")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var (
				list []*models.Template
				err  error
			)
			if categoryID := req.GetInt("category_id", 0); categoryID > 0 {
				list, err = templates.ListTemplatesByCategory(ctx, int64(categoryID))
			} else {
				list, err = templates.ListTemplates(ctx)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_templates", map[string]any{"templates": list})
		},
	)
}

func registerStepTools(srv *mcpserver.MCPServer, steps StepOperator) {
	srv.AddTool(
		mcp.NewTool(
			"opsflow.list_steps",
			mcp.WithDescription("List an entity's steps in order with effective status and SLA state."),
			kindOption(),
			mcp.WithNumber("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			kind, entityID, errResult := entityArgs(req)
			if errResult != nil {
				return errResult, nil
			}
			views, err := steps.ListSteps(ctx, kind, entityID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_steps", map[string]any{"steps": views})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"opsflow.set_step_status",
			mcp.WithDescription("Move a step to a new status. delayed requires a delay_reason."),
			kindOption(),
			mcp.WithNumber("step_id", mcp.Required(), mcp.Description("Step identifier")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Target status"),
				mcp.Enum("pending", "in_progress", "completed", "delayed", "overdue")),
			mcp.WithString("delay_reason", mcp.Description("Required when status is delayed"),
				mcp.Enum(delayReasonValues()...)),
			mcp.WithString("delay_notes", mcp.Description("Free-text delay notes")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			kind, err := models.ParseEntityKind(req.GetString("kind", ""))
			if err != nil {
				return mcp.NewToolResultError("invalid_request: " + err.Error()), nil
			}
			stepID, errResult := idArg(req, "step_id")
			if errResult != nil {
				return errResult, nil
			}
			status, err := req.RequireString("status")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			view, err := steps.SetStatus(ctx, kind, stepID, models.StatusChange{
				Status:      status,
				DelayReason: req.GetString("delay_reason", ""),
				DelayNotes:  req.GetString("delay_notes", ""),
			}, UserFromContext(ctx))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("set_step_status", view)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"opsflow.reorder_steps",
			mcp.WithDescription("Reorder an entity's steps. ordered_ids must list every step id exactly once."),
			kindOption(),
			mcp.WithNumber("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
			mcp.WithArray("ordered_ids", mcp.Required(), mcp.Description("Step ids in the new order"),
				mcp.Items(map[string]any{"type": "integer"})),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			kind, entityID, errResult := entityArgs(req)
			if errResult != nil {
				return errResult, nil
			}
			ids, err := idList(req.GetArguments()["ordered_ids"])
			if err != nil {
				return mcp.NewToolResultError("invalid_request: " + err.Error()), nil
			}
			if err := steps.Reorder(ctx, kind, entityID, ids, UserFromContext(ctx)); err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("reorder_steps", map[string]any{"ordered_ids": ids})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"opsflow.get_completion",
			mcp.WithDescription("Return an entity's completion percentage (0-100)."),
			kindOption(),
			mcp.WithNumber("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			kind, entityID, errResult := entityArgs(req)
			if errResult != nil {
				return errResult, nil
			}
			completion, err := steps.Completion(ctx, kind, entityID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_completion", map[string]any{"completion": completion})
		},
	)
}

func registerNotificationTools(srv *mcpserver.MCPServer, notifications NotificationReader) {
	srv.AddTool(
		mcp.NewTool(
			"opsflow.list_notifications",
			mcp.WithDescription("List the caller's assigned and overdue notifications, most recent first."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			user := UserFromContext(ctx)
			if user == nil {
				return mcp.NewToolResultError("unauthorized: no authenticated user"), nil
			}
			list := notifications.GetMyNotifications(ctx, user.Name)
			return jsonResult("list_notifications", map[string]any{
				"notifications": list,
				"unread":        services.UnreadCount(list),
			})
		},
	)
}

func entityArgs(req mcp.CallToolRequest) (models.EntityKind, int64, *mcp.CallToolResult) {
	kind, err := models.ParseEntityKind(req.GetString("kind", ""))
	if err != nil {
		return "", 0, mcp.NewToolResultError("invalid_request: " + err.Error())
	}
	id, errResult := idArg(req, "entity_id")
	if errResult != nil {
		return "", 0, errResult
	}
	return kind, id, nil
}

func idArg(req mcp.CallToolRequest, name string) (int64, *mcp.CallToolResult) {
	ids, err := idList([]any{req.GetArguments()[name]})
	if err != nil {
		return 0, mcp.NewToolResultError(fmt.Sprintf("invalid_request: %s: %v", name, err))
	}
	return ids[0], nil
}

// idList accepts JSON numbers or numeric strings.
func idList(raw any) ([]int64, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of ids")
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		var (
			id    int64
			valid bool
		)
		switch v := item.(type) {
		case float64:
			id, valid = int64(v), v > 0 && v == float64(int64(v))
		case int:
			id, valid = int64(v), v > 0
		case int64:
			id, valid = v, v > 0
		case string:
			id, valid = utils.ParseID(v)
		}
		if !valid {
			return nil, fmt.Errorf("invalid id %v", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func delayReasonValues() []string {
	reasons := models.DelayReasons()
	values := make([]string, len(reasons))
	for i, r := range reasons {
		values[i] = string(r)
	}
	return values
}

func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("unknown error")
	}
	message := err.Error()
	if id := appErrors.GetOffendingID(err); id != "" {
		message += " (id " + id + ")"
	}
	switch {
	case appErrors.IsValidation(err):
		return mcp.NewToolResultError("invalid_request: " + message)
	case appErrors.IsNotFound(err):
		return mcp.NewToolResultError("not_found: " + message)
	case appErrors.IsConflict(err):
		return mcp.NewToolResultError("conflict: " + message)
	case appErrors.IsTransient(err):
		return mcp.NewToolResultError("unavailable: " + message)
	default:
		return mcp.NewToolResultError("internal_error: " + message)
	}
}
