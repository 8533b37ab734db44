package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/pkg/constants"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// NotificationService derives a user's notifications from the steps assigned to them.
// Read flags live in memory only, keyed by (type, step), and are lost on restart.
type NotificationService struct {
	steps       ports.StepRepository
	readTimeout time.Duration
	now         Clock

	mu   sync.RWMutex
	read map[string]map[models.NotificationKey]bool
}

// NewNotificationService creates a NotificationService. A non-positive readTimeout uses the default.
func NewNotificationService(steps ports.StepRepository, readTimeout time.Duration) *NotificationService {
	if readTimeout <= 0 {
		readTimeout = constants.NotificationReadTimeout
	}
	return &NotificationService{
		steps:       steps,
		readTimeout: readTimeout,
		now:         systemClock,
		read:        make(map[string]map[models.NotificationKey]bool),
	}
}

// GetMyNotifications returns the user's notifications, most recent first. The store
// read is bounded by the read timeout; a failure or timeout yields an empty list.
func (s *NotificationService) GetMyNotifications(ctx context.Context, userName string) []models.Notification {
	user := strings.TrimSpace(userName)
	if user == "" {
		return []models.Notification{}
	}

	notifications, err := s.derive(ctx, user)
	if err != nil {
		log.Warn("⚠️  Notification read failed, returning none", "user", user, "err", err)
		return []models.Notification{}
	}

	s.mu.RLock()
	flags := s.read[user]
	for i := range notifications {
		notifications[i].Read = flags[notifications[i].Key()]
	}
	s.mu.RUnlock()
	return notifications
}

// MarkAsRead flags one of the user's current notifications as read. An overdue id can
// equal another step's assigned id; when id matches both, kind must say which one.
// An empty kind matches either type.
func (s *NotificationService) MarkAsRead(ctx context.Context, userName string, id int64, kind models.NotificationType) (*models.Notification, error) {
	user := strings.TrimSpace(userName)
	if user == "" {
		return nil, appErrors.NewUnauthorizedError("user not authenticated")
	}

	notifications, err := s.derive(ctx, user)
	if err != nil {
		return nil, appErrors.Classify("read notifications", err)
	}

	var matches []models.Notification
	for _, n := range notifications {
		if n.ID == id && (kind == "" || n.Type == kind) {
			matches = append(matches, n)
		}
	}
	switch len(matches) {
	case 0:
		return nil, appErrors.NewNotFoundError("notification", utils.FormatID(id))
	case 1:
	default:
		return nil, appErrors.NewValidationError("type",
			"notification id is shared by an assigned and an overdue notification; specify the type").WithID(utils.FormatID(id))
	}

	target := matches[0]
	s.mu.Lock()
	if s.read[user] == nil {
		s.read[user] = make(map[models.NotificationKey]bool)
	}
	s.read[user][target.Key()] = true
	s.mu.Unlock()

	target.Read = true
	return &target, nil
}

// derive reads the user's steps within the read timeout and projects them.
func (s *NotificationService) derive(ctx context.Context, user string) ([]models.Notification, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	steps, err := s.steps.ListByAssignee(readCtx, user)
	if err != nil {
		return nil, err
	}
	return domain.DeriveNotifications(steps, user, s.now()), nil
}

// UnreadCount is the number of unread notifications in the list.
func UnreadCount(notifications []models.Notification) int {
	n := 0
	for _, notification := range notifications {
		if !notification.Read {
			n++
		}
	}
	return n
}
