package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/pkg/auth"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// TemplateService defines the template store operations the API exposes
type TemplateService interface {
	GetTemplate(ctx context.Context, id int64) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)
	ListTemplatesByCategory(ctx context.Context, categoryID int64) ([]*models.Template, error)
	CreateTemplate(ctx context.Context, input models.TemplateInput, user *auth.UserSession) (*models.Template, error)
	UpdateTemplate(ctx context.Context, id int64, input models.TemplateInput, user *auth.UserSession) (*models.Template, error)
	DuplicateTemplate(ctx context.Context, id int64, newName string, user *auth.UserSession) (*models.Template, error)
	DeleteTemplate(ctx context.Context, id int64, user *auth.UserSession) error
}

// TemplateHandler handles template endpoints
type TemplateHandler struct {
	svc TemplateService
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(svc TemplateService) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

// DuplicateRequest optionally names the copy.
type DuplicateRequest struct {
	Name string `json:"name"`
}

// ListTemplates handles GET /api/templates[?category_id=]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	raw, filtered := c.GetQuery("category_id")
	if !filtered {
		HandleGetEnvelope(c, "templates", func() (interface{}, error) {
			return h.svc.ListTemplates(c.Request.Context())
		})
		return
	}

	categoryID, ok := utils.ParseID(raw)
	if !ok {
		RespondAppError(c, appErrors.NewValidationError("category_id", "must be a positive integer").WithID(raw))
		return
	}
	HandleGetEnvelope(c, "templates", func() (interface{}, error) {
		return h.svc.ListTemplatesByCategory(c.Request.Context(), categoryID)
	})
}

// GetTemplate handles GET /api/templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	HandleGetEnvelope(c, "template", func() (interface{}, error) {
		return h.svc.GetTemplate(c.Request.Context(), id)
	})
}

// CreateTemplate handles POST /api/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var input models.TemplateInput
	if !BindJSON(c, &input) {
		return
	}
	HandleWriteEnvelope(c, http.StatusCreated, "template", "Template created successfully", func() (interface{}, error) {
		return h.svc.CreateTemplate(c.Request.Context(), input, GetUserFromContext(c))
	})
}

// UpdateTemplate handles PUT /api/templates/:id
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var input models.TemplateInput
	if !BindJSON(c, &input) {
		return
	}
	HandleWriteEnvelope(c, http.StatusOK, "template", "Template updated successfully", func() (interface{}, error) {
		return h.svc.UpdateTemplate(c.Request.Context(), id, input, GetUserFromContext(c))
	})
}

// DuplicateTemplate handles POST /api/templates/:id/duplicate
func (h *TemplateHandler) DuplicateTemplate(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req DuplicateRequest
	// the body is optional
	if c.Request.ContentLength > 0 && !BindJSON(c, &req) {
		return
	}
	HandleWriteEnvelope(c, http.StatusCreated, "template", "Template duplicated successfully", func() (interface{}, error) {
		return h.svc.DuplicateTemplate(c.Request.Context(), id, req.Name, GetUserFromContext(c))
	})
}

// DeleteTemplate handles DELETE /api/templates/:id
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Template deleted successfully", func() error {
		return h.svc.DeleteTemplate(c.Request.Context(), id, GetUserFromContext(c))
	})
}
