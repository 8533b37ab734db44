package models

import (
	"fmt"
	"strings"
)

// EntityKind tags which pipeline a step collection belongs to.
type EntityKind string

const (
	EntityKindLead      EntityKind = "lead"
	EntityKindFundRaise EntityKind = "fundraise"
	EntityKindFinOps    EntityKind = "finops"
)

// AllEntityKinds returns every supported kind.
func AllEntityKinds() []EntityKind {
	return []EntityKind{EntityKindLead, EntityKindFundRaise, EntityKindFinOps}
}

// ParseEntityKind accepts the stored tag as well as the plural route segment.
func ParseEntityKind(raw string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "lead", "leads":
		return EntityKindLead, nil
	case "fundraise", "fundraises", "vc":
		return EntityKindFundRaise, nil
	case "finops", "finops-tasks", "finops_task":
		return EntityKindFinOps, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", raw)
}

// RouteSegment is the plural path prefix used by the REST API.
func (k EntityKind) RouteSegment() string {
	switch k {
	case EntityKindLead:
		return "leads"
	case EntityKindFundRaise:
		return "fundraises"
	case EntityKindFinOps:
		return "finops-tasks"
	}
	return string(k)
}

// Label is the human name of the kind's step, used in notification text.
func (k EntityKind) Label() string {
	switch k {
	case EntityKindFinOps:
		return "FinOps subtask"
	case EntityKindFundRaise:
		return "Fundraise step"
	default:
		return "Follow-up"
	}
}

// AllowedStatuses is the stored status domain for the kind.
// Lead and fundraise steps never store delayed or overdue.
func (k EntityKind) AllowedStatuses() []StepStatus {
	if k == EntityKindFinOps {
		return []StepStatus{StepStatusPending, StepStatusInProgress, StepStatusCompleted, StepStatusDelayed, StepStatusOverdue}
	}
	return []StepStatus{StepStatusPending, StepStatusInProgress, StepStatusCompleted}
}

// Allows reports whether status is in the kind's stored domain.
func (k EntityKind) Allows(status StepStatus) bool {
	for _, s := range k.AllowedStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// UsesSLA reports whether started_at + SLA derivation applies to the kind.
func (k EntityKind) UsesSLA() bool {
	return k == EntityKindFinOps
}
