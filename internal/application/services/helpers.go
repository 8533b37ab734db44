package services

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain/events"
	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/pkg/auth"
)

// Clock returns the current time. Services truncate to whole seconds since
// timestamps are stored at second precision.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// actorName returns the session's display name, or "" for system calls.
func actorName(user *auth.UserSession) string {
	if user == nil {
		return ""
	}
	return strings.TrimSpace(user.Name)
}

// publish dispatches an event after the write it describes has committed.
// Subscriber failures are logged; they never undo the mutation.
func publish(ctx context.Context, bus ports.EventPublisher, eventType events.EventType, payload interface{}) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, eventType, payload); err != nil {
		log.Warn("⚠️  Event subscriber failed", "type", eventType, "err", err)
	}
}
