package models

import "time"

// Template is a reusable ordered blueprint of steps.
type Template struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CategoryID  *int64         `json:"category_id,omitempty"`
	IsActive    bool           `json:"is_active"`
	UsageCount  int            `json:"usage_count"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Steps       []TemplateStep `json:"steps"`
}

// ProbabilityTotal sums the step weights. A total other than 100 is allowed and only surfaced as a hint.
func (t *Template) ProbabilityTotal() float64 {
	var total float64
	for _, s := range t.Steps {
		total += s.ProbabilityPercent
	}
	return total
}

// TemplateStep is one blueprint inside a Template.
type TemplateStep struct {
	ID                 int64    `json:"id"`
	TemplateID         int64    `json:"template_id"`
	StepOrder          int      `json:"step_order"`
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	DefaultETADays     int      `json:"default_eta_days"`
	SLAHours           *int     `json:"sla_hours,omitempty"`
	SLAMinutes         *int     `json:"sla_minutes,omitempty"`
	AssignedRole       string   `json:"assigned_role,omitempty"`
	RequiredDocuments  []string `json:"required_documents"`
	ApprovalRequired   bool     `json:"approval_required"`
	ParallelExecution  bool     `json:"parallel_execution"`
	ProbabilityPercent float64  `json:"probability_percent"`
	EntryCondition     string   `json:"entry_condition,omitempty"`
}

// TemplateInput is the payload for creating or replacing a template.
type TemplateInput struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	CategoryID  *int64         `json:"category_id"`
	IsActive    *bool          `json:"is_active"`
	Steps       []TemplateStep `json:"steps"`
}
