// Package testutil provides an in-memory store with the workflow schema applied,
// plus fixture helpers, for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mylabook/opsflow/internal/bootstrap"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/infrastructure/database"
	"github.com/mylabook/opsflow/internal/infrastructure/persistence"
	"github.com/stretchr/testify/require"
)

// Now is a fixed clock value for deterministic tests.
var Now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

// NewTestDB opens a fresh in-memory SQLite store with the schema applied.
// It is closed when the test ends.
func NewTestDB(t testing.TB) *database.Connection {
	t.Helper()

	conn, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, bootstrap.InitializeSchema(context.Background(), conn))
	return conn
}

// CreateEntity inserts an entity of the given kind.
func CreateEntity(t testing.TB, conn *database.Connection, kind models.EntityKind, name string) *models.Entity {
	t.Helper()

	entity := &models.Entity{Kind: kind, Name: name, CreatedAt: Now, UpdatedAt: Now}
	require.NoError(t, persistence.NewEntityRepository(conn.DB()).Create(context.Background(), entity))
	return entity
}

// CreateTemplate inserts a template with one step per weight, named "Step 1".."Step n".
func CreateTemplate(t testing.TB, conn *database.Connection, name string, weights ...float64) *models.Template {
	t.Helper()

	tmpl := &models.Template{Name: name, IsActive: true, CreatedAt: Now, UpdatedAt: Now}
	for i, w := range weights {
		tmpl.Steps = append(tmpl.Steps, models.TemplateStep{
			StepOrder:          i + 1,
			Name:               fmt.Sprintf("Step %d", i+1),
			DefaultETADays:     i + 1,
			ProbabilityPercent: w,
			RequiredDocuments:  []string{},
		})
	}
	require.NoError(t, persistence.NewTemplateRepository(conn.DB()).Create(context.Background(), tmpl))
	return tmpl
}

// CreateSteps inserts steps for an entity with contiguous orders starting at 1.
func CreateSteps(t testing.TB, conn *database.Connection, entity *models.Entity, steps ...models.StepInstance) []*models.StepInstance {
	t.Helper()

	batch := make([]*models.StepInstance, len(steps))
	for i := range steps {
		step := steps[i]
		step.EntityKind = entity.Kind
		step.EntityID = entity.ID
		step.StepOrder = i + 1
		if step.Status == "" {
			step.Status = models.StepStatusPending
		}
		if step.CreatedAt.IsZero() {
			step.CreatedAt = Now
		}
		step.UpdatedAt = step.CreatedAt
		batch[i] = &step
	}
	require.NoError(t, persistence.NewStepRepository(conn.DB()).CreateBatch(context.Background(), batch))
	return batch
}
