package services

import (
	"context"
	"testing"
	"time"

	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/testutil"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityService_CreateWithInstantiate(t *testing.T) {
	sm, conn := newTestManager(t)
	ctx := context.Background()

	tmpl := testutil.CreateTemplate(t, conn, "Month end", 25, 25, 50)
	start := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	detail, err := sm.Entities.CreateEntity(ctx, models.EntityKindFinOps, models.EntityInput{
		Name:        " March close ",
		Owner:       "controller",
		TemplateID:  &tmpl.ID,
		Instantiate: true,
		StartDate:   &start,
	}, testUser)
	require.NoError(t, err)
	assert.Equal(t, "March close", detail.Entity.Name)
	assert.Equal(t, "sam", detail.Entity.CreatedBy)
	require.Len(t, detail.Steps, 3)
	assert.Equal(t, 0, detail.Completion)
	assert.Equal(t, start.AddDate(0, 0, 1), *detail.Steps[0].DueDate)

	loaded, err := sm.Entities.GetEntity(ctx, models.EntityKindFinOps, detail.Entity.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 3)
	// due dates are in the past relative to the fixed clock
	assert.True(t, loaded.Steps[0].IsOverdue)
	assert.Equal(t, models.StepStatusOverdue, loaded.Steps[0].EffectiveStatus)
	assert.Contains(t, loaded.Steps[0].AllowedTransitions, models.StepStatusInProgress)
	assert.Contains(t, detail.Steps[0].AllowedTransitions, models.StepStatusOverdue)
}

func TestEntityService_CreateValidation(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	_, err := sm.Entities.CreateEntity(ctx, models.EntityKindLead, models.EntityInput{Name: ""}, testUser)
	assert.True(t, appErrors.IsValidation(err))

	tooHigh := 140.0
	_, err = sm.Entities.CreateEntity(ctx, models.EntityKindLead, models.EntityInput{Name: "x", Probability: &tooHigh}, testUser)
	assert.True(t, appErrors.IsValidation(err))

	_, err = sm.Entities.CreateEntity(ctx, models.EntityKindLead, models.EntityInput{Name: "x", Instantiate: true}, testUser)
	assert.True(t, appErrors.IsValidation(err))
}

func TestEntityService_CreateRollsBackOnMissingTemplate(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	missing := int64(404)
	_, err := sm.Entities.CreateEntity(ctx, models.EntityKindLead, models.EntityInput{
		Name: "Acme", TemplateID: &missing, Instantiate: true,
	}, testUser)
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))

	leads, err := sm.Entities.ListEntities(ctx, models.EntityKindLead)
	require.NoError(t, err)
	assert.Empty(t, leads, "the entity insert is rolled back with the failed instantiation")
}

func TestEntityService_CompletionFallsBackToProbability(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	p := 35.4
	detail, err := sm.Entities.CreateEntity(ctx, models.EntityKindLead, models.EntityInput{Name: "Globex", Probability: &p}, testUser)
	require.NoError(t, err)
	assert.Equal(t, 35, detail.Completion)

	completion, err := sm.Steps.Completion(ctx, models.EntityKindLead, detail.Entity.ID)
	require.NoError(t, err)
	assert.Equal(t, 35, completion)
}

func TestEntityService_ListIsPerKind(t *testing.T) {
	sm, conn := newTestManager(t)
	ctx := context.Background()

	testutil.CreateEntity(t, conn, models.EntityKindLead, "Acme")
	testutil.CreateEntity(t, conn, models.EntityKindLead, "Globex")
	testutil.CreateEntity(t, conn, models.EntityKindFundRaise, "Series A")

	leads, err := sm.Entities.ListEntities(ctx, models.EntityKindLead)
	require.NoError(t, err)
	assert.Len(t, leads, 2)

	_, err = sm.Entities.GetEntity(ctx, models.EntityKindFinOps, leads[0].ID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestEntityService_DeleteCascadesSteps(t *testing.T) {
	sm, conn := newTestManager(t)
	ctx := context.Background()

	lead := testutil.CreateEntity(t, conn, models.EntityKindLead, "Acme")
	other := testutil.CreateEntity(t, conn, models.EntityKindLead, "Globex")
	testutil.CreateSteps(t, conn, lead, models.StepInstance{Name: "a"}, models.StepInstance{Name: "b"})
	testutil.CreateSteps(t, conn, other, models.StepInstance{Name: "c"})

	require.NoError(t, sm.Entities.DeleteEntity(ctx, models.EntityKindLead, lead.ID))

	_, err := sm.Entities.GetEntity(ctx, models.EntityKindLead, lead.ID)
	assert.True(t, appErrors.IsNotFound(err))

	var remaining int
	require.NoError(t, conn.DB().QueryRow("SELECT COUNT(*) FROM workflow_step_instances").Scan(&remaining))
	assert.Equal(t, 1, remaining)

	err = sm.Entities.DeleteEntity(ctx, models.EntityKindLead, lead.ID)
	assert.True(t, appErrors.IsNotFound(err))
}
