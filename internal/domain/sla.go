package domain

import (
	"time"

	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/pkg/constants"
)

// EvaluateSLA classifies a step against started_at + SLA. It never mutates the step.
// Steps without a start time or SLA window report SLAStateNone; completed steps are never overdue.
func EvaluateSLA(step *models.StepInstance, now time.Time) models.SLAEvaluation {
	if step.Status == models.StepStatusCompleted {
		return models.SLAEvaluation{State: models.SLAStateCompleted}
	}

	window, ok := step.SLADuration()
	if !ok || step.StartedAt == nil {
		return models.SLAEvaluation{State: models.SLAStateNone}
	}

	deadline := step.StartedAt.Add(window)
	eval := models.SLAEvaluation{Deadline: &deadline}

	if deadline.Before(now) {
		eval.State = models.SLAStateOverdue
		eval.Overdue = now.Sub(deadline)
		return eval
	}

	eval.Remaining = deadline.Sub(now)
	if eval.Remaining <= constants.SLAWarningWindow {
		eval.State = models.SLAStateWarning
	} else {
		eval.State = models.SLAStateOnTrack
	}
	return eval
}

// IsPastDue reports whether an unfinished step has a due date strictly before now.
func IsPastDue(step *models.StepInstance, now time.Time) bool {
	return step.Status != models.StepStatusCompleted && step.DueDate != nil && step.DueDate.Before(now)
}

// IsOverdue combines the due-date rule (all kinds) with the SLA rule (kinds that use SLA).
func IsOverdue(step *models.StepInstance, now time.Time) bool {
	if step.Status == models.StepStatusCompleted {
		return false
	}
	if IsPastDue(step, now) {
		return true
	}
	if step.EntityKind.UsesSLA() {
		return EvaluateSLA(step, now).State == models.SLAStateOverdue
	}
	return false
}

// EffectiveStatus is the status to display: the stored status, or overdue when derived.
// delayed wins over a derived overdue because it is an explicit, reasoned state.
func EffectiveStatus(step *models.StepInstance, now time.Time) models.StepStatus {
	switch step.Status {
	case models.StepStatusCompleted, models.StepStatusDelayed:
		return step.Status
	}
	if IsOverdue(step, now) {
		return models.StepStatusOverdue
	}
	if step.Status == "" {
		return models.StepStatusPending
	}
	return step.Status
}

// BuildViews decorates steps with their derived states.
func BuildViews(steps []models.StepInstance, now time.Time) []models.StepView {
	views := make([]models.StepView, 0, len(steps))
	for i := range steps {
		step := &steps[i]
		view := models.StepView{
			StepInstance:    *step,
			EffectiveStatus: EffectiveStatus(step, now),
			IsOverdue:       IsOverdue(step, now),
			SLA:             models.SLAEvaluation{State: models.SLAStateNone},
		}
		if step.EntityKind.UsesSLA() {
			view.SLA = EvaluateSLA(step, now)
		}
		views = append(views, view)
	}
	return views
}
