package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/logging"
	"github.com/mylabook/opsflow/pkg/constants"
	"github.com/robfig/cron/v3"
)

// NotificationSource is what the poller refreshes from.
type NotificationSource interface {
	GetMyNotifications(ctx context.Context, userName string) []models.Notification
}

// NotificationSnapshot is the last polled state for one user.
type NotificationSnapshot struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
	RefreshedAt   time.Time             `json:"refreshed_at"`
}

// NotificationPoller refreshes tracked users' notifications on a fixed interval.
// Start and Stop are idempotent; Stop waits for an in-flight refresh. Users not seen
// for constants.NotificationTrackIdle are dropped on the next refresh.
type NotificationPoller struct {
	source   NotificationSource
	interval time.Duration
	now      Clock

	mu        sync.Mutex
	scheduler *cron.Cron
	users     map[string]time.Time // last seen
	snapshots map[string]NotificationSnapshot

	// serializes refreshes started by the schedule and by RefreshNow
	refreshMu sync.Mutex
}

// NewNotificationPoller creates a poller. The interval must lie within the allowed polling window.
func NewNotificationPoller(source NotificationSource, interval time.Duration) (*NotificationPoller, error) {
	if interval < constants.NotificationMinPollPeriod || interval > constants.NotificationMaxPollPeriod {
		return nil, fmt.Errorf("poll interval %s outside %s..%s", interval,
			constants.NotificationMinPollPeriod, constants.NotificationMaxPollPeriod)
	}
	return &NotificationPoller{
		source:    source,
		interval:  interval,
		now:       systemClock,
		users:     make(map[string]time.Time),
		snapshots: make(map[string]NotificationSnapshot),
	}, nil
}

// Start schedules the periodic refresh. Calling Start on a running poller does nothing.
func (p *NotificationPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scheduler != nil {
		return
	}

	cronLog := logging.CronLogger{}
	p.scheduler = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	p.scheduler.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		p.RefreshNow(context.Background())
	}))
	p.scheduler.Start()

	log.Info("⏰ Notification poller started", "interval", p.interval)
}

// Stop cancels the schedule and blocks until a running refresh returns or ctx ends.
func (p *NotificationPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	scheduler := p.scheduler
	p.scheduler = nil
	p.mu.Unlock()

	if scheduler == nil {
		return nil
	}

	done := scheduler.Stop()
	select {
	case <-done.Done():
		log.Info("⏰ Notification poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the schedule is active.
func (p *NotificationPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduler != nil
}

// Track adds a user to the refresh set, or marks a tracked user as recently seen.
func (p *NotificationPoller) Track(userName string) {
	if userName == "" {
		return
	}
	seen := p.now()
	p.mu.Lock()
	p.users[userName] = seen
	p.mu.Unlock()
}

// Untrack removes a user and drops their snapshot.
func (p *NotificationPoller) Untrack(userName string) {
	p.mu.Lock()
	delete(p.users, userName)
	delete(p.snapshots, userName)
	p.mu.Unlock()
}

// Snapshot returns the last refreshed state for the user.
func (p *NotificationPoller) Snapshot(userName string) (NotificationSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.snapshots[userName]
	return snap, ok
}

// RefreshNow drops idle users, then refreshes every remaining tracked user.
func (p *NotificationPoller) RefreshNow(ctx context.Context) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	cutoff := p.now().Add(-constants.NotificationTrackIdle)
	var users, idle []string
	p.mu.Lock()
	for u, seen := range p.users {
		if seen.Before(cutoff) {
			idle = append(idle, u)
			continue
		}
		users = append(users, u)
	}
	p.mu.Unlock()

	for _, u := range idle {
		p.Untrack(u)
	}
	if len(idle) > 0 {
		log.Debug("⏰ Dropped idle notification users", "users", len(idle))
	}

	sort.Strings(users)
	for _, user := range users {
		if ctx.Err() != nil {
			return
		}
		p.refreshUser(ctx, user)
	}
	log.Debug("⏰ Notifications refreshed", "users", len(users))
}

// RefreshUser recomputes one tracked user's snapshot right away, so the summary
// reflects a change such as a notification being marked read.
func (p *NotificationPoller) RefreshUser(ctx context.Context, userName string) {
	p.mu.Lock()
	_, tracked := p.users[userName]
	p.mu.Unlock()
	if !tracked {
		return
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()
	p.refreshUser(ctx, userName)
}

func (p *NotificationPoller) refreshUser(ctx context.Context, user string) {
	notifications := p.source.GetMyNotifications(ctx, user)
	snap := NotificationSnapshot{
		Notifications: notifications,
		Unread:        UnreadCount(notifications),
		RefreshedAt:   p.now(),
	}

	p.mu.Lock()
	if _, tracked := p.users[user]; tracked {
		p.snapshots[user] = snap
	}
	p.mu.Unlock()
}
