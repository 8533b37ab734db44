package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/pkg/constants"
)

// Notification titles
const (
	TitleAssigned = "Follow-up Assigned"
	TitleOverdue  = "Follow-up Overdue"
)

// OverdueNotificationID keeps the overdue notification of a step clear of its assigned one.
func OverdueNotificationID(stepID int64) int64 {
	return stepID + constants.NotificationOverdueIDShift
}

// DeriveNotifications projects steps into notifications for one user, most recent first.
// Each step contributes at most one assigned and one overdue notification. It never fails;
// steps with missing fields simply produce nothing.
func DeriveNotifications(steps []models.StepInstance, currentUserName string, now time.Time) []models.Notification {
	user := strings.TrimSpace(currentUserName)
	notifications := make([]models.Notification, 0)
	if user == "" {
		return notifications
	}

	for i := range steps {
		step := &steps[i]
		if strings.TrimSpace(step.AssignedTo) != user {
			continue
		}

		if step.Status == models.StepStatusPending {
			notifications = append(notifications, models.Notification{
				ID:         step.ID,
				Type:       models.NotificationAssigned,
				Title:      TitleAssigned,
				Message:    fmt.Sprintf("You have been assigned %q", step.Name),
				EntityKind: step.EntityKind,
				EntityID:   step.EntityID,
				StepID:     step.ID,
				CreatedAt:  step.CreatedAt,
			})
		}

		if IsPastDue(step, now) {
			notifications = append(notifications, models.Notification{
				ID:         OverdueNotificationID(step.ID),
				Type:       models.NotificationOverdue,
				Title:      TitleOverdue,
				Message:    fmt.Sprintf("%q was due %s", step.Name, step.DueDate.Format("2006-01-02 15:04")),
				EntityKind: step.EntityKind,
				EntityID:   step.EntityID,
				StepID:     step.ID,
				CreatedAt:  *step.DueDate,
			})
		}
	}

	sort.SliceStable(notifications, func(i, j int) bool {
		if notifications[i].CreatedAt.Equal(notifications[j].CreatedAt) {
			return notifications[i].ID > notifications[j].ID
		}
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications
}
