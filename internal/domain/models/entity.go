package models

import "time"

// Entity is a lead, fundraise or FinOps task that owns an ordered step collection.
type Entity struct {
	ID          int64                  `json:"id"`
	Kind        EntityKind             `json:"kind"`
	Name        string                 `json:"name"`
	Status      string                 `json:"status,omitempty"`
	Owner       string                 `json:"owner,omitempty"`
	TemplateID  *int64                 `json:"template_id,omitempty"`
	Probability *float64               `json:"probability,omitempty"`
	StartDate   *time.Time             `json:"start_date,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	CreatedBy   string                 `json:"created_by,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ConditionEnv is the environment template entry conditions are evaluated against.
func (e *Entity) ConditionEnv() map[string]interface{} {
	env := map[string]interface{}{
		"kind":       string(e.Kind),
		"name":       e.Name,
		"status":     e.Status,
		"owner":      e.Owner,
		"attributes": map[string]interface{}{},
	}
	if e.Probability != nil {
		env["probability"] = *e.Probability
	}
	if e.Attributes != nil {
		env["attributes"] = e.Attributes
	}
	return env
}

// EntityInput is the payload for creating an entity.
type EntityInput struct {
	Name        string                 `json:"name"`
	Status      string                 `json:"status"`
	Owner       string                 `json:"owner"`
	TemplateID  *int64                 `json:"template_id"`
	Probability *float64               `json:"probability"`
	StartDate   *time.Time             `json:"start_date"`
	Attributes  map[string]interface{} `json:"attributes"`
	// Instantiate copies the template's steps onto the new entity.
	Instantiate bool `json:"instantiate"`
}

// EntityDetail is an entity with its steps and derived completion.
type EntityDetail struct {
	Entity     *Entity    `json:"entity"`
	Steps      []StepView `json:"steps"`
	Completion int        `json:"completion"`
}
