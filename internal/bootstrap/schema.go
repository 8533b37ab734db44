package bootstrap

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/infrastructure/database"
	"github.com/mylabook/opsflow/internal/infrastructure/persistence"
)

// InitializeSchema creates the workflow tables. It is idempotent.
func InitializeSchema(ctx context.Context, conn *database.Connection) error {
	log.Info("🔧 Initializing workflow schema...", "dialect", conn.Dialect())

	defs, err := GetWorkflowTableDefinitions()
	if err != nil {
		return err
	}

	repo := persistence.NewSchemaRepository(conn)
	for _, def := range defs {
		if err := repo.CreatePhysicalTable(ctx, def); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}

	log.Info("✅ Workflow schema ready", "tables", len(defs))
	return nil
}
