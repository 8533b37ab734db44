package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mylabook/opsflow/internal/application/services"
	"github.com/mylabook/opsflow/internal/domain/models"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// NotificationService defines the per-user notification feed
type NotificationService interface {
	GetMyNotifications(ctx context.Context, userName string) []models.Notification
	MarkAsRead(ctx context.Context, userName string, id int64, kind models.NotificationType) (*models.Notification, error)
}

// NotificationTracker is the background poller's view of tracked users.
type NotificationTracker interface {
	Track(userName string)
	Snapshot(userName string) (services.NotificationSnapshot, bool)
	RefreshUser(ctx context.Context, userName string)
}

type NotificationHandler struct {
	svc     NotificationService
	tracker NotificationTracker
}

// NewNotificationHandler creates a handler. tracker may be nil when polling is disabled.
func NewNotificationHandler(svc NotificationService, tracker NotificationTracker) *NotificationHandler {
	return &NotificationHandler{svc: svc, tracker: tracker}
}

// GetNotifications handles GET /api/notifications
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	user := GetUserFromContext(c)
	if user == nil {
		RespondAppError(c, appErrors.NewUnauthorizedError("user not authenticated"))
		return
	}
	if h.tracker != nil {
		h.tracker.Track(user.Name)
	}

	list := h.svc.GetMyNotifications(c.Request.Context(), user.Name)
	c.JSON(http.StatusOK, gin.H{
		"data":   list,
		"unread": services.UnreadCount(list),
	})
}

// GetSummary handles GET /api/notifications/summary, served from the last poll.
func (h *NotificationHandler) GetSummary(c *gin.Context) {
	user := GetUserFromContext(c)
	if user == nil {
		RespondAppError(c, appErrors.NewUnauthorizedError("user not authenticated"))
		return
	}

	if h.tracker != nil {
		h.tracker.Track(user.Name)
		if snap, ok := h.tracker.Snapshot(user.Name); ok {
			c.JSON(http.StatusOK, gin.H{"unread": snap.Unread, "refreshed_at": snap.RefreshedAt})
			return
		}
	}

	// not polled yet
	list := h.svc.GetMyNotifications(c.Request.Context(), user.Name)
	c.JSON(http.StatusOK, gin.H{"unread": services.UnreadCount(list), "refreshed_at": nil})
}

// MarkAsRead handles PUT /api/notifications/:id/read[?type=assigned|overdue]
// The type is required only when the id is shared by an assigned and an overdue notification.
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	user := GetUserFromContext(c)
	if user == nil {
		RespondAppError(c, appErrors.NewUnauthorizedError("user not authenticated"))
		return
	}
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var kind models.NotificationType
	if raw := c.Query("type"); raw != "" {
		parsed, err := models.ParseNotificationType(raw)
		if err != nil {
			RespondAppError(c, appErrors.NewValidationError("type", err.Error()).WithID(utils.FormatID(id)))
			return
		}
		kind = parsed
	}

	HandleWriteEnvelope(c, http.StatusOK, "data", "Notification marked as read", func() (interface{}, error) {
		notification, err := h.svc.MarkAsRead(c.Request.Context(), user.Name, id, kind)
		if err != nil {
			return nil, err
		}
		if h.tracker != nil {
			h.tracker.RefreshUser(c.Request.Context(), user.Name)
		}
		return notification, nil
	})
}
