package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain"
	"github.com/mylabook/opsflow/internal/domain/events"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/mylabook/opsflow/pkg/constants"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// InstantiateOptions tunes InstantiateFromTemplate.
type InstantiateOptions struct {
	// StartDate anchors due dates: each step is due StartDate plus the ETA days of
	// every included step up to and including it. Nil leaves due dates unset.
	StartDate *time.Time
}

// StepService owns per-entity step collections and their status lifecycle.
type StepService struct {
	entities   ports.EntityRepository
	steps      ports.StepRepository
	templates  ports.TemplateRepository
	tx         ports.Transactor
	conditions ports.ConditionEvaluator
	events     ports.EventPublisher
	machine    *domain.StepStateMachine
	now        Clock
}

// NewStepService creates a new StepService
func NewStepService(
	entities ports.EntityRepository,
	steps ports.StepRepository,
	templates ports.TemplateRepository,
	tx ports.Transactor,
	conditions ports.ConditionEvaluator,
	bus ports.EventPublisher,
) *StepService {
	return &StepService{
		entities:   entities,
		steps:      steps,
		templates:  templates,
		tx:         tx,
		conditions: conditions,
		events:     bus,
		machine:    domain.NewStepStateMachine(),
		now:        systemClock,
	}
}

// InstantiateFromTemplate creates one pending step per template step, in template
// order, in a single transaction. Steps whose entry condition is false for the
// entity are skipped and the remaining order stays contiguous. New steps are
// appended after any the entity already has.
func (s *StepService) InstantiateFromTemplate(ctx context.Context, kind models.EntityKind, entityID, templateID int64, opts InstantiateOptions, user *auth.UserSession) ([]models.StepInstance, error) {
	var created []*models.StepInstance

	err := s.tx.WithRetry(ctx, func(ctx context.Context) error {
		entity, err := s.requireEntity(ctx, kind, entityID)
		if err != nil {
			return err
		}

		tmpl, err := s.templates.Get(ctx, templateID)
		if err != nil {
			return appErrors.Classify("get template", err)
		}
		if tmpl == nil {
			return appErrors.NewNotFoundError("template", utils.FormatID(templateID))
		}
		if !tmpl.IsActive {
			return appErrors.NewValidationError("template_id", "template is inactive").WithID(utils.FormatID(templateID))
		}

		included, err := s.includedSteps(tmpl, entity)
		if err != nil {
			return err
		}

		offset, err := s.steps.MaxOrder(ctx, kind, entityID)
		if err != nil {
			return appErrors.Classify("read step order", err)
		}

		now := s.now()
		created = buildInstances(kind, entityID, included, offset, opts.StartDate, actorName(user), now)
		if len(created) == 0 {
			return nil
		}

		if err := s.steps.CreateBatch(ctx, created); err != nil {
			return appErrors.Classify("instantiate steps", err)
		}
		if err := s.templates.IncrementUsage(ctx, templateID); err != nil {
			return appErrors.Classify("increment template usage", err)
		}
		return nil
	}, constants.TxDeadlockRetries)
	if err != nil {
		return nil, err
	}

	result := make([]models.StepInstance, len(created))
	ids := make([]int64, len(created))
	for i, step := range created {
		result[i] = *step
		ids[i] = step.ID
	}

	log.Info("✅ Steps instantiated from template", "kind", kind, "entity", entityID, "template", templateID, "steps", len(result))
	publish(ctx, s.events, events.StepsInstantiated, events.CollectionEvent{
		EntityKind: string(kind),
		EntityID:   entityID,
		StepIDs:    ids,
		TemplateID: &templateID,
		Actor:      actorName(user),
		OccurredAt: s.now(),
	})
	return result, nil
}

// includedSteps evaluates entry conditions against the entity.
func (s *StepService) includedSteps(tmpl *models.Template, entity *models.Entity) ([]models.TemplateStep, error) {
	if s.conditions == nil {
		return tmpl.Steps, nil
	}

	env := entity.ConditionEnv()
	included := make([]models.TemplateStep, 0, len(tmpl.Steps))
	for _, ts := range tmpl.Steps {
		ok, err := s.conditions.EvaluateBool(ts.EntryCondition, env)
		if err != nil {
			return nil, appErrors.NewValidationError("entry_condition",
				fmt.Sprintf("step %q: %v", ts.Name, err)).WithID(utils.FormatID(ts.ID))
		}
		if !ok {
			log.Debug("⏭️ Skipping template step, entry condition is false", "step", ts.Name, "condition", ts.EntryCondition)
			continue
		}
		included = append(included, ts)
	}
	return included, nil
}

func buildInstances(kind models.EntityKind, entityID int64, included []models.TemplateStep, offset int, start *time.Time, actor string, now time.Time) []*models.StepInstance {
	instances := make([]*models.StepInstance, 0, len(included))
	cumulativeDays := 0

	for i, ts := range included {
		templateStepID := ts.ID
		step := &models.StepInstance{
			EntityKind:         kind,
			EntityID:           entityID,
			TemplateStepID:     &templateStepID,
			Name:               ts.Name,
			Description:        ts.Description,
			StepOrder:          offset + i + 1,
			Status:             models.StepStatusPending,
			EstimatedDays:      ts.DefaultETADays,
			SLAHours:           copyInt(ts.SLAHours),
			SLAMinutes:         copyInt(ts.SLAMinutes),
			ProbabilityPercent: ts.ProbabilityPercent,
			AssignedRole:       ts.AssignedRole,
			CreatedBy:          actor,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if start != nil {
			cumulativeDays += ts.DefaultETADays
			due := start.UTC().AddDate(0, 0, cumulativeDays)
			step.DueDate = &due
		}
		instances = append(instances, step)
	}
	return instances
}

// AddStep appends an ad hoc step at max order + 1. A non-pending initial status
// goes through the state machine so timestamps and delay data are consistent.
func (s *StepService) AddStep(ctx context.Context, kind models.EntityKind, entityID int64, input models.StepInput, user *auth.UserSession) (*models.StepInstance, error) {
	now := s.now()
	step, err := s.newAdHocStep(kind, entityID, input, actorName(user), now)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithRetry(ctx, func(ctx context.Context) error {
		if _, err := s.requireEntity(ctx, kind, entityID); err != nil {
			return err
		}
		maxOrder, err := s.steps.MaxOrder(ctx, kind, entityID)
		if err != nil {
			return appErrors.Classify("read step order", err)
		}
		step.StepOrder = maxOrder + 1
		if err := s.steps.CreateBatch(ctx, []*models.StepInstance{step}); err != nil {
			return appErrors.Classify("add step", err)
		}
		return nil
	}, constants.TxDeadlockRetries)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, events.StepCreated, events.StepEvent{
		EntityKind: string(kind),
		EntityID:   entityID,
		StepID:     step.ID,
		StepName:   step.Name,
		To:         string(step.Status),
		Actor:      actorName(user),
		OccurredAt: now,
	})
	return step, nil
}

func (s *StepService) newAdHocStep(kind models.EntityKind, entityID int64, input models.StepInput, actor string, now time.Time) (*models.StepInstance, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.NewValidationError("name", "step name is required")
	}
	if p := input.ProbabilityPercent; math.IsNaN(p) || p < 0 || p > 100 {
		return nil, appErrors.NewValidationError("probability_percent", "must be between 0 and 100")
	}
	if input.EstimatedDays < 0 {
		return nil, appErrors.NewValidationError("estimated_days", "must not be negative")
	}
	if (input.SLAHours != nil && *input.SLAHours < 0) || (input.SLAMinutes != nil && *input.SLAMinutes < 0) {
		return nil, appErrors.NewValidationError("sla", "SLA hours and minutes must not be negative")
	}

	step := &models.StepInstance{
		EntityKind:         kind,
		EntityID:           entityID,
		Name:               name,
		Description:        strings.TrimSpace(input.Description),
		Status:             models.StepStatusPending,
		DueDate:            input.DueDate,
		EstimatedDays:      input.EstimatedDays,
		SLAHours:           copyInt(input.SLAHours),
		SLAMinutes:         copyInt(input.SLAMinutes),
		ProbabilityPercent: input.ProbabilityPercent,
		AssignedRole:       strings.TrimSpace(input.AssignedRole),
		AssignedTo:         strings.TrimSpace(input.AssignedTo),
		CreatedBy:          actor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if input.Status != "" && input.Status != string(models.StepStatusPending) {
		if _, err := s.machine.Apply(step, models.StatusChange{
			Status:      input.Status,
			DelayReason: input.DelayReason,
			DelayNotes:  input.DelayNotes,
		}, now); err != nil {
			return nil, err
		}
	}
	return step, nil
}

// Reorder rewrites step_order to 1..n following orderedIDs, atomically. The ids
// must be exactly the entity's step ids, each once; otherwise nothing changes.
func (s *StepService) Reorder(ctx context.Context, kind models.EntityKind, entityID int64, orderedIDs []int64, user *auth.UserSession) error {
	err := s.tx.WithRetry(ctx, func(ctx context.Context) error {
		if _, err := s.requireEntity(ctx, kind, entityID); err != nil {
			return err
		}
		existing, err := s.steps.ListByEntity(ctx, kind, entityID)
		if err != nil {
			return appErrors.Classify("list steps", err)
		}
		if err := validateReorder(existing, orderedIDs); err != nil {
			return err
		}
		if err := s.steps.UpdateOrder(ctx, orderedIDs); err != nil {
			return appErrors.Classify("reorder steps", err)
		}
		return nil
	}, constants.TxDeadlockRetries)
	if err != nil {
		return err
	}

	publish(ctx, s.events, events.StepsReordered, events.CollectionEvent{
		EntityKind: string(kind),
		EntityID:   entityID,
		StepIDs:    append([]int64(nil), orderedIDs...),
		Actor:      actorName(user),
		OccurredAt: s.now(),
	})
	return nil
}

func validateReorder(existing []models.StepInstance, orderedIDs []int64) error {
	owned := make(map[int64]bool, len(existing))
	for _, step := range existing {
		owned[step.ID] = true
	}

	seen := make(map[int64]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !owned[id] {
			return appErrors.NewValidationError("ordered_ids", "step does not belong to this entity").WithID(utils.FormatID(id))
		}
		if seen[id] {
			return appErrors.NewValidationError("ordered_ids", "step listed more than once").WithID(utils.FormatID(id))
		}
		seen[id] = true
	}

	for _, step := range existing {
		if !seen[step.ID] {
			return appErrors.NewValidationError("ordered_ids", "step missing from new order").WithID(utils.FormatID(step.ID))
		}
	}
	return nil
}

// DeleteStep removes a step from the addressed entity and closes the gap in the
// order. A step that exists under another entity is reported as not found.
func (s *StepService) DeleteStep(ctx context.Context, kind models.EntityKind, entityID, stepID int64, user *auth.UserSession) error {
	var deleted *models.StepInstance

	err := s.tx.WithRetry(ctx, func(ctx context.Context) error {
		step, err := s.steps.Get(ctx, stepID)
		if err != nil {
			return appErrors.Classify("get step", err)
		}
		if step == nil || step.EntityKind != kind || step.EntityID != entityID {
			return appErrors.NewNotFoundError("step", utils.FormatID(stepID))
		}

		if _, err := s.steps.Delete(ctx, stepID); err != nil {
			return appErrors.Classify("delete step", err)
		}

		remaining, err := s.steps.ListByEntity(ctx, kind, entityID)
		if err != nil {
			return appErrors.Classify("list steps", err)
		}
		ids := make([]int64, len(remaining))
		for i := range remaining {
			ids[i] = remaining[i].ID
		}
		if err := s.steps.UpdateOrder(ctx, ids); err != nil {
			return appErrors.Classify("compact step order", err)
		}

		deleted = step
		return nil
	}, constants.TxDeadlockRetries)
	if err != nil {
		return err
	}

	publish(ctx, s.events, events.StepDeleted, events.StepEvent{
		EntityKind: string(kind),
		EntityID:   entityID,
		StepID:     stepID,
		StepName:   deleted.Name,
		Actor:      actorName(user),
		OccurredAt: s.now(),
	})
	return nil
}

// SetStatus moves a step to a new status. The change is validated in full before
// anything is written. Entering delayed raises the reporting-manager alert event.
func (s *StepService) SetStatus(ctx context.Context, kind models.EntityKind, stepID int64, change models.StatusChange, user *auth.UserSession) (*models.StepView, error) {
	step, err := s.steps.Get(ctx, stepID)
	if err != nil {
		return nil, appErrors.Classify("get step", err)
	}
	if step == nil || step.EntityKind != kind {
		return nil, appErrors.NewNotFoundError("step", utils.FormatID(stepID))
	}

	now := s.now()
	result, err := s.machine.Apply(step, change, now)
	if err != nil {
		return nil, err
	}

	if err := s.steps.Update(ctx, step); err != nil {
		return nil, appErrors.Classify("update step status", err)
	}

	actor := actorName(user)
	base := events.StepEvent{
		EntityKind: string(step.EntityKind),
		EntityID:   step.EntityID,
		StepID:     step.ID,
		StepName:   step.Name,
		From:       string(result.From),
		To:         string(result.To),
		Actor:      actor,
		OccurredAt: now,
	}
	publish(ctx, s.events, events.StepStatusChanged, base)
	if result.DelayAlert {
		publish(ctx, s.events, events.StepDelayed, events.StepDelayedEvent{
			StepEvent:    base,
			Reason:       string(*step.DelayReason),
			Notes:        step.DelayNotes,
			AssignedRole: step.AssignedRole,
			AssignedTo:   step.AssignedTo,
		})
	}

	log.Info("✅ Step status changed", "step", step.ID, "from", result.From, "to", result.To)
	view := s.machine.AnnotateTransitions(domain.BuildViews([]models.StepInstance{*step}, now))[0]
	return &view, nil
}

// ListSteps returns the entity's steps in order with their derived states.
func (s *StepService) ListSteps(ctx context.Context, kind models.EntityKind, entityID int64) ([]models.StepView, error) {
	if _, err := s.requireEntity(ctx, kind, entityID); err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByEntity(ctx, kind, entityID)
	if err != nil {
		return nil, appErrors.Classify("list steps", err)
	}
	return s.machine.AnnotateTransitions(domain.BuildViews(steps, s.now())), nil
}

// Completion returns the entity's completion percentage.
func (s *StepService) Completion(ctx context.Context, kind models.EntityKind, entityID int64) (int, error) {
	entity, err := s.requireEntity(ctx, kind, entityID)
	if err != nil {
		return 0, err
	}
	steps, err := s.steps.ListByEntity(ctx, kind, entityID)
	if err != nil {
		return 0, appErrors.Classify("list steps", err)
	}
	return domain.ComputeCompletion(steps, entity.Probability), nil
}

func (s *StepService) requireEntity(ctx context.Context, kind models.EntityKind, entityID int64) (*models.Entity, error) {
	entity, err := s.entities.Get(ctx, kind, entityID)
	if err != nil {
		return nil, appErrors.Classify("get entity", err)
	}
	if entity == nil {
		return nil, appErrors.NewNotFoundError(string(kind), utils.FormatID(entityID))
	}
	return entity, nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
