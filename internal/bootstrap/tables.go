package bootstrap

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/mylabook/opsflow/internal/domain/schema"
)

//go:embed workflow_tables.json
var workflowTablesJSON []byte

// GetWorkflowTableDefinitions returns the table definitions in creation order.
// Referenced tables come before the tables that point at them.
func GetWorkflowTableDefinitions() ([]schema.TableDefinition, error) {
	var definitions []schema.TableDefinition
	if err := json.Unmarshal(workflowTablesJSON, &definitions); err != nil {
		return nil, fmt.Errorf("failed to parse workflow_tables.json: %w", err)
	}
	return definitions, nil
}
