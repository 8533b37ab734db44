package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mylabook/opsflow/internal/application/services"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/pkg/auth"
)

// EntityService defines entity lifecycle operations
type EntityService interface {
	CreateEntity(ctx context.Context, kind models.EntityKind, input models.EntityInput, user *auth.UserSession) (*models.EntityDetail, error)
	GetEntity(ctx context.Context, kind models.EntityKind, id int64) (*models.EntityDetail, error)
	ListEntities(ctx context.Context, kind models.EntityKind) ([]*models.Entity, error)
	DeleteEntity(ctx context.Context, kind models.EntityKind, id int64) error
}

// StepService defines step collection and status operations
type StepService interface {
	InstantiateFromTemplate(ctx context.Context, kind models.EntityKind, entityID, templateID int64, opts services.InstantiateOptions, user *auth.UserSession) ([]models.StepInstance, error)
	AddStep(ctx context.Context, kind models.EntityKind, entityID int64, input models.StepInput, user *auth.UserSession) (*models.StepInstance, error)
	Reorder(ctx context.Context, kind models.EntityKind, entityID int64, orderedIDs []int64, user *auth.UserSession) error
	DeleteStep(ctx context.Context, kind models.EntityKind, entityID, stepID int64, user *auth.UserSession) error
	SetStatus(ctx context.Context, kind models.EntityKind, stepID int64, change models.StatusChange, user *auth.UserSession) (*models.StepView, error)
	ListSteps(ctx context.Context, kind models.EntityKind, entityID int64) ([]models.StepView, error)
	Completion(ctx context.Context, kind models.EntityKind, entityID int64) (int, error)
}

// EntityHandler serves one entity kind: leads, fundraises or FinOps tasks, and their steps.
type EntityHandler struct {
	kind     models.EntityKind
	entities EntityService
	steps    StepService
}

// NewEntityHandler creates a handler bound to kind
func NewEntityHandler(kind models.EntityKind, entities EntityService, steps StepService) *EntityHandler {
	return &EntityHandler{kind: kind, entities: entities, steps: steps}
}

func (h *EntityHandler) noun() string {
	switch h.kind {
	case models.EntityKindFundRaise:
		return "Fundraise"
	case models.EntityKindFinOps:
		return "FinOps task"
	}
	return "Lead"
}

// InstantiateRequest selects the template to copy and the date due dates count from.
type InstantiateRequest struct {
	TemplateID int64      `json:"template_id" binding:"required"`
	StartDate  *time.Time `json:"start_date"`
}

// ReorderRequest lists every step id of the entity in the new order.
type ReorderRequest struct {
	OrderedIDs []int64 `json:"ordered_ids" binding:"required"`
}

// ListEntities handles GET /api/{kind}
func (h *EntityHandler) ListEntities(c *gin.Context) {
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.entities.ListEntities(c.Request.Context(), h.kind)
	})
}

// CreateEntity handles POST /api/{kind}
func (h *EntityHandler) CreateEntity(c *gin.Context) {
	var input models.EntityInput
	if !BindJSON(c, &input) {
		return
	}
	HandleWriteEnvelope(c, http.StatusCreated, "data", h.noun()+" created successfully", func() (interface{}, error) {
		return h.entities.CreateEntity(c.Request.Context(), h.kind, input, GetUserFromContext(c))
	})
}

// GetEntity handles GET /api/{kind}/:id
func (h *EntityHandler) GetEntity(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	HandleGetEnvelope(c, "data", func() (interface{}, error) {
		return h.entities.GetEntity(c.Request.Context(), h.kind, id)
	})
}

// DeleteEntity handles DELETE /api/{kind}/:id
func (h *EntityHandler) DeleteEntity(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, h.noun()+" deleted successfully", func() error {
		return h.entities.DeleteEntity(c.Request.Context(), h.kind, id)
	})
}

// ListSteps handles GET /api/{kind}/:id/steps
func (h *EntityHandler) ListSteps(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	HandleGetEnvelope(c, "steps", func() (interface{}, error) {
		return h.steps.ListSteps(c.Request.Context(), h.kind, id)
	})
}

// AddStep handles POST /api/{kind}/:id/steps
func (h *EntityHandler) AddStep(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var input models.StepInput
	if !BindJSON(c, &input) {
		return
	}
	HandleWriteEnvelope(c, http.StatusCreated, "step", "Step added successfully", func() (interface{}, error) {
		return h.steps.AddStep(c.Request.Context(), h.kind, id, input, GetUserFromContext(c))
	})
}

// Instantiate handles POST /api/{kind}/:id/steps/instantiate
func (h *EntityHandler) Instantiate(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req InstantiateRequest
	if !BindJSON(c, &req) {
		return
	}
	HandleWriteEnvelope(c, http.StatusCreated, "steps", "Steps created from template", func() (interface{}, error) {
		return h.steps.InstantiateFromTemplate(c.Request.Context(), h.kind, id, req.TemplateID,
			services.InstantiateOptions{StartDate: req.StartDate}, GetUserFromContext(c))
	})
}

// Reorder handles PUT /api/{kind}/:id/steps/reorder
func (h *EntityHandler) Reorder(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req ReorderRequest
	if !BindJSON(c, &req) {
		return
	}
	HandleWriteEnvelope(c, http.StatusOK, "", "Steps reordered successfully", func() (interface{}, error) {
		return nil, h.steps.Reorder(c.Request.Context(), h.kind, id, req.OrderedIDs, GetUserFromContext(c))
	})
}

// Completion handles GET /api/{kind}/:id/completion
func (h *EntityHandler) Completion(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	HandleGetEnvelope(c, "completion", func() (interface{}, error) {
		return h.steps.Completion(c.Request.Context(), h.kind, id)
	})
}

// SetStatus handles PUT /api/{kind}/steps/:stepId/status
func (h *EntityHandler) SetStatus(c *gin.Context) {
	stepID, ok := ParamID(c, "stepId")
	if !ok {
		return
	}
	var change models.StatusChange
	if !BindJSON(c, &change) {
		return
	}
	HandleWriteEnvelope(c, http.StatusOK, "step", "Step status updated", func() (interface{}, error) {
		return h.steps.SetStatus(c.Request.Context(), h.kind, stepID, change, GetUserFromContext(c))
	})
}

// DeleteStep handles DELETE /api/{kind}/:id/steps/:stepId
func (h *EntityHandler) DeleteStep(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	stepID, ok := ParamID(c, "stepId")
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Step deleted successfully", func() error {
		return h.steps.DeleteStep(c.Request.Context(), h.kind, id, stepID, GetUserFromContext(c))
	})
}
