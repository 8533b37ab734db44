package events

// EventType defines the type of event in the system
type EventType string

const (
	// Step Events
	StepStatusChanged EventType = "step.status_changed"
	StepDelayed       EventType = "step.delayed"
	StepCreated       EventType = "step.created"
	StepDeleted       EventType = "step.deleted"
	StepsInstantiated EventType = "steps.instantiated"
	StepsReordered    EventType = "steps.reordered"

	// Template Events
	TemplateSaved   EventType = "template.saved"
	TemplateDeleted EventType = "template.deleted"

	// System Events
	SystemStartup EventType = "system.startup"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}
