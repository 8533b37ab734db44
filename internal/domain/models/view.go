package models

import "time"

// SLAState is the read-time SLA classification of a step.
type SLAState string

const (
	SLAStateNone      SLAState = "none"
	SLAStateOnTrack   SLAState = "on_track"
	SLAStateWarning   SLAState = "warning"
	SLAStateOverdue   SLAState = "overdue"
	SLAStateCompleted SLAState = "completed"
)

// SLAEvaluation is the outcome of comparing a step's SLA deadline with now.
type SLAEvaluation struct {
	State     SLAState      `json:"state"`
	Deadline  *time.Time    `json:"deadline,omitempty"`
	Remaining time.Duration `json:"remaining_ns,omitempty"`
	Overdue   time.Duration `json:"overdue_ns,omitempty"`
}

// StepView is a stored step plus the states derived from it at read time.
type StepView struct {
	StepInstance
	EffectiveStatus StepStatus    `json:"effective_status"`
	IsOverdue       bool          `json:"is_overdue"`
	SLA             SLAEvaluation `json:"sla"`
	// AllowedTransitions lists the statuses SetStatus would accept next, the current one included.
	AllowedTransitions []StepStatus `json:"allowed_transitions"`
}
