package bootstrap

import (
	"context"
	"testing"

	"github.com/mylabook/opsflow/internal/infrastructure/database"
	"github.com/mylabook/opsflow/internal/infrastructure/persistence"
	"github.com/mylabook/opsflow/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *database.Connection {
	t.Helper()
	conn, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGetWorkflowTableDefinitions(t *testing.T) {
	defs, err := GetWorkflowTableDefinitions()
	require.NoError(t, err)

	var names []string
	for _, def := range defs {
		names = append(names, def.TableName)
		for _, col := range def.Columns {
			assert.NoError(t, persistence.ValidateColumnDefinition(col), "%s.%s", def.TableName, col.Name)
		}
	}
	assert.Equal(t, constants.AllTables(), names)
}

func TestWorkflowTables_MySQLDDLPassesParser(t *testing.T) {
	defs, err := GetWorkflowTableDefinitions()
	require.NoError(t, err)

	repo := persistence.NewSchemaRepository(database.NewConnection(nil, database.DialectMySQL))
	validator := persistence.NewDDLValidator()
	for _, def := range defs {
		stmts, err := repo.BuildCreateTableDDL(def)
		require.NoError(t, err)
		assert.NoError(t, validator.ValidateCreateTable(stmts[0], def), def.TableName)
	}
}

func TestInitializeSchema_Idempotent(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()

	require.NoError(t, InitializeSchema(ctx, conn))
	require.NoError(t, InitializeSchema(ctx, conn))

	repo := persistence.NewSchemaRepository(conn)
	for _, table := range constants.AllTables() {
		assert.True(t, repo.TableExists(ctx, table), table)
	}
}

func TestRunAssertions(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()
	require.NoError(t, InitializeSchema(ctx, conn))

	result, err := RunAssertions(ctx, conn, true)
	require.NoError(t, err)
	assert.True(t, result.Passed)

	db := conn.DB()
	_, err = db.Exec(`INSERT INTO workflow_entities (kind, name, created_at, updated_at) VALUES ('finops', 'Close', 'x', 'x')`)
	require.NoError(t, err)
	// completed without completed_at, and delayed without a reason, and order gap 1,3
	_, err = db.Exec(`INSERT INTO workflow_step_instances (entity_kind, entity_id, name, step_order, status, started_at, created_at, updated_at)
		VALUES ('finops', 1, 'a', 1, 'completed', '2026-04-10T10:00:00Z', 'x', 'x'),
		       ('finops', 1, 'b', 3, 'delayed', '2026-04-10T10:00:00Z', 'x', 'x')`)
	require.NoError(t, err)

	result, err = RunAssertions(ctx, conn, false)
	require.NoError(t, err)
	assert.False(t, result.Passed)

	categories := map[string]bool{}
	for _, v := range result.Violations {
		categories[v.Category] = true
	}
	assert.True(t, categories["CompletedAt"])
	assert.True(t, categories["DelayReason"])
	assert.True(t, categories["StepOrder"])
	assert.False(t, categories["StartedAt"])

	_, err = RunAssertions(ctx, conn, true)
	assert.Error(t, err)
}
