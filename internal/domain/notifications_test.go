package domain

import (
	"testing"
	"time"

	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveNotifications_Rules(t *testing.T) {
	steps := []models.StepInstance{
		{ID: 1, EntityKind: models.EntityKindLead, EntityID: 10, Name: "Intro call", Status: models.StepStatusPending,
			AssignedTo: "alice", CreatedAt: fixedNow.Add(-3 * time.Hour)},
		{ID: 2, EntityKind: models.EntityKindLead, EntityID: 10, Name: "Proposal", Status: models.StepStatusInProgress,
			AssignedTo: "alice", DueDate: timePtr(fixedNow.Add(-time.Hour)), CreatedAt: fixedNow.Add(-5 * time.Hour)},
		{ID: 3, EntityKind: models.EntityKindLead, EntityID: 10, Name: "Contract", Status: models.StepStatusCompleted,
			AssignedTo: "alice", DueDate: timePtr(fixedNow.Add(-time.Hour))},
		{ID: 4, EntityKind: models.EntityKindLead, EntityID: 10, Name: "Someone else", Status: models.StepStatusPending,
			AssignedTo: "bob", CreatedAt: fixedNow},
		{ID: 5, EntityKind: models.EntityKindFinOps, EntityID: 11, Name: "Close books", Status: models.StepStatusInProgress,
			AssignedTo: "alice", DueDate: timePtr(fixedNow.Add(time.Hour))},
	}

	got := DeriveNotifications(steps, "alice", fixedNow)
	require.Len(t, got, 2)

	// most recent first: overdue (due 1h ago) before assigned (created 3h ago)
	assert.Equal(t, models.NotificationOverdue, got[0].Type)
	assert.Equal(t, int64(1002), got[0].ID)
	assert.Equal(t, int64(2), got[0].StepID)
	assert.Equal(t, TitleOverdue, got[0].Title)

	assert.Equal(t, models.NotificationAssigned, got[1].Type)
	assert.Equal(t, int64(1), got[1].ID)
	assert.Equal(t, TitleAssigned, got[1].Title)
	assert.Equal(t, int64(10), got[1].EntityID)
	assert.False(t, got[1].Read)
}

func TestDeriveNotifications_PendingAndPastDueFiresBoth(t *testing.T) {
	steps := []models.StepInstance{
		{ID: 9, Name: "Send deck", Status: models.StepStatusPending, AssignedTo: "alice",
			CreatedAt: fixedNow.Add(-48 * time.Hour), DueDate: timePtr(fixedNow.Add(-24 * time.Hour))},
	}

	got := DeriveNotifications(steps, "alice", fixedNow)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.Equal(t, OverdueNotificationID(9), got[0].ID)
	assert.Equal(t, int64(9), got[1].ID)
}

func TestDeriveNotifications_IDsUniqueWithinShiftRange(t *testing.T) {
	var steps []models.StepInstance
	for i := int64(1); i <= 20; i++ {
		status := models.StepStatusInProgress
		if i%2 == 0 {
			status = models.StepStatusPending
		}
		steps = append(steps, models.StepInstance{
			ID: i, Status: status, AssignedTo: "alice",
			CreatedAt: fixedNow.Add(-time.Duration(i) * time.Minute),
			DueDate:   timePtr(fixedNow.Add(-time.Duration(i) * time.Second)),
		})
	}

	got := DeriveNotifications(steps, "alice", fixedNow)
	seen := map[int64]bool{}
	for _, n := range got {
		assert.False(t, seen[n.ID], "duplicate id %d", n.ID)
		seen[n.ID] = true
		if n.Type == models.NotificationOverdue {
			assert.Equal(t, n.StepID+1000, n.ID)
		}
	}
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.After(got[i-1].CreatedAt), "sorted newest first")
	}
}

func TestDeriveNotifications_KeysSeparateSharedIDs(t *testing.T) {
	steps := []models.StepInstance{
		{ID: 5, Status: models.StepStatusInProgress, AssignedTo: "alice", DueDate: timePtr(fixedNow.Add(-time.Hour))},
		{ID: 1005, Status: models.StepStatusPending, AssignedTo: "alice", CreatedAt: fixedNow.Add(-time.Minute)},
	}

	got := DeriveNotifications(steps, "alice", fixedNow)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1005), got[0].ID)
	assert.Equal(t, int64(1005), got[1].ID)
	assert.NotEqual(t, got[0].Key(), got[1].Key())
}

func TestDeriveNotifications_DegradesGracefully(t *testing.T) {
	assert.Empty(t, DeriveNotifications(nil, "alice", fixedNow))
	assert.NotNil(t, DeriveNotifications(nil, "alice", fixedNow))

	steps := []models.StepInstance{{ID: 1, Status: models.StepStatusPending}}
	assert.Empty(t, DeriveNotifications(steps, "", fixedNow), "no user, no notifications")
	assert.Empty(t, DeriveNotifications(steps, "alice", fixedNow), "unassigned step")
}
