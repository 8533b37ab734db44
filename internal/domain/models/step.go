package models

import (
	"fmt"
	"strings"
	"time"
)

// StepStatus is the stored status of a step instance.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusDelayed    StepStatus = "delayed"
	StepStatusOverdue    StepStatus = "overdue"
)

// ParseStepStatus validates a raw status value.
func ParseStepStatus(raw string) (StepStatus, error) {
	s := StepStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StepStatusPending, StepStatusInProgress, StepStatusCompleted, StepStatusDelayed, StepStatusOverdue:
		return s, nil
	}
	return "", fmt.Errorf("invalid status %q", raw)
}

// DelayReason is the fixed enumeration of reasons a step may be delayed.
type DelayReason string

const (
	DelayReasonTechnicalIssue     DelayReason = "technical_issue"
	DelayReasonDataUnavailable    DelayReason = "data_unavailable"
	DelayReasonExternalDependency DelayReason = "external_dependency"
	DelayReasonResourceConstraint DelayReason = "resource_constraint"
	DelayReasonProcessChange      DelayReason = "process_change"
	DelayReasonOther              DelayReason = "other"
)

// DelayReasons lists every accepted delay reason.
func DelayReasons() []DelayReason {
	return []DelayReason{
		DelayReasonTechnicalIssue,
		DelayReasonDataUnavailable,
		DelayReasonExternalDependency,
		DelayReasonResourceConstraint,
		DelayReasonProcessChange,
		DelayReasonOther,
	}
}

// ParseDelayReason validates a raw delay reason.
func ParseDelayReason(raw string) (DelayReason, error) {
	r := DelayReason(strings.TrimSpace(raw))
	for _, known := range DelayReasons() {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid delay reason %q", raw)
}

// StepInstance is the per-entity runtime copy of a template step (or an ad hoc step).
type StepInstance struct {
	ID                 int64        `json:"id"`
	EntityKind         EntityKind   `json:"entity_kind"`
	EntityID           int64        `json:"entity_id"`
	TemplateStepID     *int64       `json:"template_step_id,omitempty"`
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	StepOrder          int          `json:"step_order"`
	Status             StepStatus   `json:"status"`
	DueDate            *time.Time   `json:"due_date,omitempty"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
	EstimatedDays      int          `json:"estimated_days"`
	SLAHours           *int         `json:"sla_hours,omitempty"`
	SLAMinutes         *int         `json:"sla_minutes,omitempty"`
	ProbabilityPercent float64      `json:"probability_percent"`
	AssignedRole       string       `json:"assigned_role,omitempty"`
	AssignedTo         string       `json:"assigned_to,omitempty"`
	DelayReason        *DelayReason `json:"delay_reason,omitempty"`
	DelayNotes         string       `json:"delay_notes,omitempty"`
	AlertsSent         []string     `json:"alerts_sent,omitempty"`
	CreatedBy          string       `json:"created_by,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// SLADuration returns the configured SLA window and whether one is set.
func (s *StepInstance) SLADuration() (time.Duration, bool) {
	if s.SLAHours == nil && s.SLAMinutes == nil {
		return 0, false
	}
	var d time.Duration
	if s.SLAHours != nil {
		d += time.Duration(*s.SLAHours) * time.Hour
	}
	if s.SLAMinutes != nil {
		d += time.Duration(*s.SLAMinutes) * time.Minute
	}
	return d, d > 0
}

// StepInput carries the fields for an ad hoc step. It is validated once by Normalize.
type StepInput struct {
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Status             string     `json:"status"`
	DueDate            *time.Time `json:"due_date"`
	EstimatedDays      int        `json:"estimated_days"`
	SLAHours           *int       `json:"sla_hours"`
	SLAMinutes         *int       `json:"sla_minutes"`
	ProbabilityPercent float64    `json:"probability_percent"`
	AssignedRole       string     `json:"assigned_role"`
	AssignedTo         string     `json:"assigned_to"`
	DelayReason        string     `json:"delay_reason"`
	DelayNotes         string     `json:"delay_notes"`
}

// StatusChange is a requested status transition.
type StatusChange struct {
	Status      string `json:"status"`
	DelayReason string `json:"delay_reason"`
	DelayNotes  string `json:"delay_notes"`
}
