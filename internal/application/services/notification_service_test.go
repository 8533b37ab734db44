package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mylabook/opsflow/internal/domain"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/testutil"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_DerivesAndFlagsRead(t *testing.T) {
	sm, conn := newTestManager(t)
	ctx := context.Background()

	lead := testutil.CreateEntity(t, conn, models.EntityKindLead, "Acme")
	yesterday := testutil.Now.Add(-24 * time.Hour)
	steps := testutil.CreateSteps(t, conn, lead,
		models.StepInstance{Name: "Call back", AssignedTo: "sam", DueDate: &yesterday},
		models.StepInstance{Name: "Send deck", AssignedTo: "sam", Status: models.StepStatusCompleted, DueDate: &yesterday},
		models.StepInstance{Name: "Legal review", AssignedTo: "alex"},
	)

	list := sm.Notifications.GetMyNotifications(ctx, "sam")
	require.Len(t, list, 2)
	assert.Equal(t, steps[0].ID, list[0].ID, "assigned notification is newer than the due date")
	assert.Equal(t, models.NotificationAssigned, list[0].Type)
	assert.Equal(t, domain.OverdueNotificationID(steps[0].ID), list[1].ID)
	assert.Equal(t, models.NotificationOverdue, list[1].Type)
	assert.Equal(t, 2, UnreadCount(list))

	marked, err := sm.Notifications.MarkAsRead(ctx, "sam", list[1].ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationOverdue, marked.Type)
	assert.True(t, marked.Read)
	list = sm.Notifications.GetMyNotifications(ctx, "sam")
	assert.False(t, list[0].Read)
	assert.True(t, list[1].Read)
	assert.Equal(t, 1, UnreadCount(list))

	// flags are per user
	other := sm.Notifications.GetMyNotifications(ctx, "alex")
	require.Len(t, other, 1)
	assert.False(t, other[0].Read)
}

func TestNotificationService_EmptyUser(t *testing.T) {
	svc := NewNotificationService(new(mockStepRepository), 0)
	list := svc.GetMyNotifications(context.Background(), "  ")
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestNotificationService_ReadFailureYieldsEmpty(t *testing.T) {
	steps := new(mockStepRepository)
	steps.On("ListByAssignee", mock.Anything, "sam").Return(nil, errors.New("connection reset"))

	svc := NewNotificationService(steps, time.Second)
	list := svc.GetMyNotifications(context.Background(), "sam")
	assert.NotNil(t, list)
	assert.Empty(t, list)
	steps.AssertExpectations(t)
}

func TestNotificationService_ReadIsBounded(t *testing.T) {
	steps := new(mockStepRepository)
	steps.On("ListByAssignee", mock.Anything, "sam").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	svc := NewNotificationService(steps, 20*time.Millisecond)

	started := time.Now()
	list := svc.GetMyNotifications(context.Background(), "sam")
	assert.Empty(t, list)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestNotificationService_SharedIDNeedsType(t *testing.T) {
	ctx := context.Background()
	pastDue := testutil.Now.Add(-time.Hour)
	steps := new(mockStepRepository)
	steps.On("ListByAssignee", mock.Anything, "alice").Return([]models.StepInstance{
		{ID: 5, Name: "Chase invoice", Status: models.StepStatusInProgress, AssignedTo: "alice", DueDate: &pastDue, CreatedAt: testutil.Now.Add(-2 * time.Hour)},
		{ID: 1005, Name: "Book call", Status: models.StepStatusPending, AssignedTo: "alice", CreatedAt: testutil.Now.Add(-3 * time.Hour)},
	}, nil)

	svc := NewNotificationService(steps, time.Second)
	svc.now = fixedClock(testutil.Now)

	list := svc.GetMyNotifications(ctx, "alice")
	require.Len(t, list, 2)
	assert.Equal(t, list[0].ID, list[1].ID, "overdue id of step 5 equals assigned id of step 1005")

	_, err := svc.MarkAsRead(ctx, "alice", 1005, "")
	var ve *appErrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "type", ve.Field)
	assert.Equal(t, "1005", ve.ID)

	marked, err := svc.MarkAsRead(ctx, "alice", 1005, models.NotificationOverdue)
	require.NoError(t, err)
	assert.Equal(t, int64(5), marked.StepID)

	for _, n := range svc.GetMyNotifications(ctx, "alice") {
		switch n.StepID {
		case 5:
			assert.True(t, n.Read, "overdue notification of step 5")
		case 1005:
			assert.False(t, n.Read, "assigned notification of step 1005")
		}
	}
}

func TestNotificationService_MarkAsReadErrors(t *testing.T) {
	ctx := context.Background()
	steps := new(mockStepRepository)
	steps.On("ListByAssignee", mock.Anything, "sam").Return([]models.StepInstance{
		{ID: 3, Status: models.StepStatusPending, AssignedTo: "sam"},
	}, nil).Once()
	steps.On("ListByAssignee", mock.Anything, "sam").Return(nil, errors.New("connection reset")).Once()

	svc := NewNotificationService(steps, time.Second)

	_, err := svc.MarkAsRead(ctx, "sam", 4, "")
	assert.True(t, appErrors.IsNotFound(err))

	_, err = svc.MarkAsRead(ctx, "sam", 3, "")
	assert.True(t, appErrors.IsTransient(err))

	_, err = svc.MarkAsRead(ctx, " ", 3, "")
	assert.Error(t, err)
	steps.AssertExpectations(t)
}
