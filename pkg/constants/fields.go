package constants

// Column names shared by several tables.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldCreatedBy   = "created_by"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"
	FieldProbability = "probability_percent"
)

// Template columns
const (
	FieldCategoryID = "category_id"
	FieldIsActive   = "is_active"
	FieldUsageCount = "usage_count"
)

// Template step columns
const (
	FieldTemplateID        = "template_id"
	FieldStepOrder         = "step_order"
	FieldDefaultETADays    = "default_eta_days"
	FieldSLAHours          = "sla_hours"
	FieldSLAMinutes        = "sla_minutes"
	FieldAssignedRole      = "assigned_role"
	FieldRequiredDocuments = "required_documents"
	FieldApprovalRequired  = "approval_required"
	FieldParallelExecution = "parallel_execution"
	FieldEntryCondition    = "entry_condition"
)

// Entity columns
const (
	FieldKind              = "kind"
	FieldOwner             = "owner"
	FieldEntityProbability = "probability"
	FieldStartDate         = "start_date"
	FieldAttributes        = "attributes"
)

// Step instance columns
const (
	FieldEntityKind     = "entity_kind"
	FieldEntityID       = "entity_id"
	FieldTemplateStepID = "template_step_id"
	FieldDueDate        = "due_date"
	FieldStartedAt      = "started_at"
	FieldCompletedAt    = "completed_at"
	FieldEstimatedDays  = "estimated_days"
	FieldAssignedTo     = "assigned_to"
	FieldDelayReason    = "delay_reason"
	FieldDelayNotes     = "delay_notes"
	FieldAlertsSent     = "alerts_sent"
)
