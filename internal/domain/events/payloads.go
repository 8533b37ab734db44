package events

import "time"

// StepEvent is the payload for single-step events.
type StepEvent struct {
	EntityKind string    `json:"entity_kind"`
	EntityID   int64     `json:"entity_id"`
	StepID     int64     `json:"step_id"`
	StepName   string    `json:"step_name"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StepDelayedEvent signals that reporting managers should be alerted about a delay.
type StepDelayedEvent struct {
	StepEvent
	Reason       string `json:"reason"`
	Notes        string `json:"notes,omitempty"`
	AssignedRole string `json:"assigned_role,omitempty"`
	AssignedTo   string `json:"assigned_to,omitempty"`
}

// CollectionEvent is the payload for batch events over an entity's steps.
type CollectionEvent struct {
	EntityKind string    `json:"entity_kind"`
	EntityID   int64     `json:"entity_id"`
	StepIDs    []int64   `json:"step_ids"`
	TemplateID *int64    `json:"template_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TemplateEvent is the payload for template events.
type TemplateEvent struct {
	TemplateID int64     `json:"template_id"`
	Name       string    `json:"name"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
