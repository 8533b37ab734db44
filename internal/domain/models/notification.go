package models

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType distinguishes derived notifications.
type NotificationType string

const (
	NotificationAssigned NotificationType = "assigned"
	NotificationOverdue  NotificationType = "overdue"
)

// ParseNotificationType accepts "assigned" or "overdue".
func ParseNotificationType(raw string) (NotificationType, error) {
	switch t := NotificationType(strings.ToLower(strings.TrimSpace(raw))); t {
	case NotificationAssigned, NotificationOverdue:
		return t, nil
	}
	return "", fmt.Errorf("unknown notification type %q", raw)
}

// Notification is an ephemeral projection of step state for one user. It is never persisted.
type Notification struct {
	ID         int64            `json:"id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	EntityKind EntityKind       `json:"entity_kind"`
	EntityID   int64            `json:"entity_id"`
	StepID     int64            `json:"step_id"`
	CreatedAt  time.Time        `json:"created_at"`
	Read       bool             `json:"read"`
}

// NotificationKey identifies a notification across steps. The display id alone does
// not: step 5's overdue id and step 1005's assigned id are both 1005.
type NotificationKey struct {
	Type   NotificationType
	StepID int64
}

// Key returns the notification's unambiguous identity.
func (n Notification) Key() NotificationKey {
	return NotificationKey{Type: n.Type, StepID: n.StepID}
}
