package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mylabook/opsflow/internal/domain/models"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Templates     *TemplateHandler
	Entities      []*EntityHandler
	Notifications *NotificationHandler
}

// NewHandlers builds one entity handler per kind over shared services.
func NewHandlers(templates TemplateService, entities EntityService, steps StepService, notifications NotificationService, tracker NotificationTracker) Handlers {
	h := Handlers{
		Templates:     NewTemplateHandler(templates),
		Notifications: NewNotificationHandler(notifications, tracker),
	}
	for _, kind := range models.AllEntityKinds() {
		h.Entities = append(h.Entities, NewEntityHandler(kind, entities, steps))
	}
	return h
}

// RegisterRoutes mounts the API under api. Authentication is applied by the caller.
func RegisterRoutes(api *gin.RouterGroup, h Handlers) {
	templates := api.Group("/templates")
	{
		templates.GET("", h.Templates.ListTemplates)
		templates.POST("", h.Templates.CreateTemplate)
		templates.GET("/:id", h.Templates.GetTemplate)
		templates.PUT("/:id", h.Templates.UpdateTemplate)
		templates.DELETE("/:id", h.Templates.DeleteTemplate)
		templates.POST("/:id/duplicate", h.Templates.DuplicateTemplate)
	}

	for _, eh := range h.Entities {
		group := api.Group("/" + eh.kind.RouteSegment())
		group.GET("", eh.ListEntities)
		group.POST("", eh.CreateEntity)
		group.GET("/:id", eh.GetEntity)
		group.DELETE("/:id", eh.DeleteEntity)
		group.GET("/:id/steps", eh.ListSteps)
		group.POST("/:id/steps", eh.AddStep)
		group.POST("/:id/steps/instantiate", eh.Instantiate)
		group.PUT("/:id/steps/reorder", eh.Reorder)
		group.DELETE("/:id/steps/:stepId", eh.DeleteStep)
		group.GET("/:id/completion", eh.Completion)
		group.PUT("/steps/:stepId/status", eh.SetStatus)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", h.Notifications.GetNotifications)
		notifications.GET("/summary", h.Notifications.GetSummary)
		notifications.PUT("/:id/read", h.Notifications.MarkAsRead)
	}
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
