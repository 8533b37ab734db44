package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/mylabook/opsflow/internal/domain/models"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// StepStateMachine enforces status transitions for step instances and applies the
// timestamp and delay side effects that go with them.
type StepStateMachine struct {
	// transitions maps current status -> allowed targets, before the kind's domain is applied
	transitions map[models.StepStatus]map[models.StepStatus]bool
}

// TransitionResult describes an applied transition.
type TransitionResult struct {
	From models.StepStatus
	To   models.StepStatus
	// DelayAlert is set when the step entered delayed; reporting managers should be alerted.
	DelayAlert bool
}

// NewStepStateMachine creates the step lifecycle rules.
//
//	[pending] ──► [in_progress] ──► [completed]
//	                 │    ▲              ▲
//	                 ▼    │              │
//	              [delayed] ─────────────┘
//
//	Any status may go straight to completed. A completed step may be reopened.
//	delayed and overdue are only stored for kinds whose domain includes them.
func NewStepStateMachine() *StepStateMachine {
	sm := &StepStateMachine{
		transitions: make(map[models.StepStatus]map[models.StepStatus]bool),
	}

	sm.addTransitions(models.StepStatusPending,
		models.StepStatusInProgress, models.StepStatusCompleted, models.StepStatusDelayed, models.StepStatusOverdue)
	sm.addTransitions(models.StepStatusInProgress,
		models.StepStatusPending, models.StepStatusCompleted, models.StepStatusDelayed, models.StepStatusOverdue)
	sm.addTransitions(models.StepStatusDelayed,
		models.StepStatusInProgress, models.StepStatusCompleted, models.StepStatusDelayed)
	sm.addTransitions(models.StepStatusOverdue,
		models.StepStatusInProgress, models.StepStatusCompleted, models.StepStatusDelayed)
	sm.addTransitions(models.StepStatusCompleted,
		models.StepStatusInProgress, models.StepStatusPending, models.StepStatusDelayed)

	return sm
}

func (sm *StepStateMachine) addTransitions(from models.StepStatus, to ...models.StepStatus) {
	if sm.transitions[from] == nil {
		sm.transitions[from] = make(map[models.StepStatus]bool)
	}
	// staying put is always allowed
	sm.transitions[from][from] = true
	for _, t := range to {
		sm.transitions[from][t] = true
	}
}

// CanTransition checks if a transition is valid for the kind without performing it.
func (sm *StepStateMachine) CanTransition(kind models.EntityKind, from, to models.StepStatus) bool {
	if !kind.Allows(to) {
		return false
	}
	return sm.transitions[from][to]
}

// ValidTargets returns all statuses reachable from the given status for the kind.
func (sm *StepStateMachine) ValidTargets(kind models.EntityKind, from models.StepStatus) []models.StepStatus {
	var result []models.StepStatus
	for _, candidate := range kind.AllowedStatuses() {
		if sm.CanTransition(kind, from, candidate) {
			result = append(result, candidate)
		}
	}
	return result
}

// AnnotateTransitions fills AllowedTransitions on each view from its stored status.
func (sm *StepStateMachine) AnnotateTransitions(views []models.StepView) []models.StepView {
	for i := range views {
		from := views[i].Status
		if from == "" {
			from = models.StepStatusPending
		}
		targets := sm.ValidTargets(views[i].EntityKind, from)
		if targets == nil {
			targets = []models.StepStatus{}
		}
		views[i].AllowedTransitions = targets
	}
	return views
}

// Validate checks a requested change against the step without touching it.
// It returns the parsed target status and delay reason.
func (sm *StepStateMachine) Validate(step *models.StepInstance, change models.StatusChange) (models.StepStatus, *models.DelayReason, error) {
	stepID := utils.FormatID(step.ID)

	to, err := models.ParseStepStatus(change.Status)
	if err != nil {
		return "", nil, appErrors.NewValidationError("status", err.Error()).WithID(stepID)
	}
	if !step.EntityKind.Allows(to) {
		return "", nil, appErrors.NewValidationError("status",
			fmt.Sprintf("status '%s' is not available for %s steps", to, step.EntityKind)).WithID(stepID)
	}

	from := step.Status
	if from == "" {
		from = models.StepStatusPending
	}
	if !sm.CanTransition(step.EntityKind, from, to) {
		return "", nil, appErrors.NewValidationError("status",
			fmt.Sprintf("cannot move step from '%s' to '%s'", from, to)).WithID(stepID)
	}

	if to != models.StepStatusDelayed {
		return to, nil, nil
	}

	if strings.TrimSpace(change.DelayReason) == "" {
		return "", nil, appErrors.NewValidationError("delay_reason", "a delay reason is required when marking a step delayed").WithID(stepID)
	}
	reason, err := models.ParseDelayReason(change.DelayReason)
	if err != nil {
		return "", nil, appErrors.NewValidationError("delay_reason", err.Error()).WithID(stepID)
	}
	return to, &reason, nil
}

// Apply validates the change and, only if it is valid, mutates the step.
//
// Side effects:
//   - started_at is stamped the first time the step leaves pending
//   - completed_at is stamped on entering completed and cleared on leaving it
//   - entering delayed records the reason, notes and an alerts_sent entry
func (sm *StepStateMachine) Apply(step *models.StepInstance, change models.StatusChange, now time.Time) (TransitionResult, error) {
	to, reason, err := sm.Validate(step, change)
	if err != nil {
		return TransitionResult{From: step.Status, To: step.Status}, err
	}

	from := step.Status
	if from == "" {
		from = models.StepStatusPending
	}
	result := TransitionResult{From: from, To: to}

	step.Status = to

	if to != models.StepStatusPending && step.StartedAt == nil {
		started := now
		step.StartedAt = &started
	}

	if to == models.StepStatusCompleted {
		if step.CompletedAt == nil {
			completed := now
			step.CompletedAt = &completed
		}
	} else {
		step.CompletedAt = nil
	}

	if to == models.StepStatusDelayed {
		step.DelayReason = reason
		step.DelayNotes = strings.TrimSpace(change.DelayNotes)
		if from != models.StepStatusDelayed {
			step.AlertsSent = append(step.AlertsSent, DelayAlertEntry(*reason, now))
			result.DelayAlert = true
		}
	}

	step.UpdatedAt = now
	return result, nil
}

// DelayAlertEntry is the alerts_sent record written when a step enters delayed.
func DelayAlertEntry(reason models.DelayReason, at time.Time) string {
	return fmt.Sprintf("delay:%s:%s", reason, at.UTC().Format(time.RFC3339))
}
