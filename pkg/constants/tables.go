package constants

// Table names
const (
	TableTemplate     = "workflow_templates"
	TableTemplateStep = "workflow_template_steps"
	TableEntity       = "workflow_entities"
	TableStep         = "workflow_step_instances"
)

// AllTables lists every table in creation order (parents first).
func AllTables() []string {
	return []string{TableTemplate, TableTemplateStep, TableEntity, TableStep}
}
