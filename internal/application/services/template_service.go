package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain/events"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/mylabook/opsflow/pkg/constants"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// TemplateService is the template store: reusable ordered step blueprints.
type TemplateService struct {
	templates  ports.TemplateRepository
	tx         ports.Transactor
	conditions ports.ConditionEvaluator
	events     ports.EventPublisher
	now        Clock
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(templates ports.TemplateRepository, tx ports.Transactor, conditions ports.ConditionEvaluator, bus ports.EventPublisher) *TemplateService {
	return &TemplateService{
		templates:  templates,
		tx:         tx,
		conditions: conditions,
		events:     bus,
		now:        systemClock,
	}
}

// GetTemplate returns a template with its steps in order.
func (s *TemplateService) GetTemplate(ctx context.Context, id int64) (*models.Template, error) {
	tmpl, err := s.templates.Get(ctx, id)
	if err != nil {
		return nil, appErrors.Classify("get template", err)
	}
	if tmpl == nil {
		return nil, appErrors.NewNotFoundError("template", utils.FormatID(id))
	}
	return tmpl, nil
}

// ListTemplates returns every template ordered by name.
func (s *TemplateService) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	templates, err := s.templates.List(ctx, nil)
	if err != nil {
		return nil, appErrors.Classify("list templates", err)
	}
	return templates, nil
}

// ListTemplatesByCategory returns the templates of one category. An unknown category yields an empty list.
func (s *TemplateService) ListTemplatesByCategory(ctx context.Context, categoryID int64) ([]*models.Template, error) {
	templates, err := s.templates.List(ctx, &categoryID)
	if err != nil {
		return nil, appErrors.Classify("list templates", err)
	}
	return templates, nil
}

// CreateTemplate validates and stores a new template.
func (s *TemplateService) CreateTemplate(ctx context.Context, input models.TemplateInput, user *auth.UserSession) (*models.Template, error) {
	steps, err := s.normalizeSteps(input.Steps)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.NewValidationError("name", "template name is required")
	}

	now := s.now()
	tmpl := &models.Template{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CategoryID:  input.CategoryID,
		IsActive:    input.IsActive == nil || *input.IsActive,
		CreatedBy:   actorName(user),
		CreatedAt:   now,
		UpdatedAt:   now,
		Steps:       steps,
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.requireFreeName(ctx, tmpl.Name, 0); err != nil {
			return err
		}
		return s.templates.Create(ctx, tmpl)
	})
	if err != nil {
		return nil, appErrors.Classify("create template", err)
	}

	log.Info("✅ Template created", "id", tmpl.ID, "name", tmpl.Name, "steps", len(tmpl.Steps))
	s.publishSaved(ctx, tmpl, user)
	return tmpl, nil
}

// UpdateTemplate replaces a template's fields and step blueprints. Step instances
// created from earlier versions are copies and do not change.
func (s *TemplateService) UpdateTemplate(ctx context.Context, id int64, input models.TemplateInput, user *auth.UserSession) (*models.Template, error) {
	existing, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	steps, err := s.normalizeSteps(input.Steps)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.NewValidationError("name", "template name is required").WithID(utils.FormatID(id))
	}

	existing.Name = name
	existing.Description = strings.TrimSpace(input.Description)
	existing.CategoryID = input.CategoryID
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	existing.Steps = steps
	existing.UpdatedAt = s.now()

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.requireFreeName(ctx, existing.Name, existing.ID); err != nil {
			return err
		}
		return s.templates.Update(ctx, existing)
	})
	if err != nil {
		return nil, appErrors.Classify("update template", err)
	}

	s.publishSaved(ctx, existing, user)
	return existing, nil
}

// DuplicateTemplate deep-copies a template and its steps under fresh ids.
// The copy starts with a zero usage count and is named "<name> (Copy)" unless newName
// is given. A taken default name gets a counter, "<name> (Copy 2)"; a taken newName is a conflict.
func (s *TemplateService) DuplicateTemplate(ctx context.Context, id int64, newName string, user *auth.UserSession) (*models.Template, error) {
	source, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	dup := &models.Template{
		Description: source.Description,
		CategoryID:  source.CategoryID,
		IsActive:    source.IsActive,
		UsageCount:  0,
		CreatedBy:   actorName(user),
		CreatedAt:   now,
		UpdatedAt:   now,
		Steps:       make([]models.TemplateStep, len(source.Steps)),
	}
	for i, step := range source.Steps {
		step.ID = 0
		step.TemplateID = 0
		step.RequiredDocuments = append([]string(nil), step.RequiredDocuments...)
		dup.Steps[i] = step
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		name, err := s.copyName(ctx, source.Name, strings.TrimSpace(newName))
		if err != nil {
			return err
		}
		dup.Name = name
		return s.templates.Create(ctx, dup)
	})
	if err != nil {
		return nil, appErrors.Classify("duplicate template", err)
	}

	log.Info("✅ Template duplicated", "source", id, "id", dup.ID, "name", dup.Name)
	s.publishSaved(ctx, dup, user)
	return dup, nil
}

// DeleteTemplate removes a template. Already-instantiated steps are unaffected.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id int64, user *auth.UserSession) error {
	var deleted bool
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = s.templates.Delete(ctx, id)
		return err
	})
	if err != nil {
		return appErrors.Classify("delete template", err)
	}
	if !deleted {
		return appErrors.NewNotFoundError("template", utils.FormatID(id))
	}

	publish(ctx, s.events, events.TemplateDeleted, events.TemplateEvent{
		TemplateID: id,
		Actor:      actorName(user),
		OccurredAt: s.now(),
	})
	return nil
}

// UpsertByName creates the template or replaces the one with the same name.
// It returns true when a new template was created.
func (s *TemplateService) UpsertByName(ctx context.Context, input models.TemplateInput, user *auth.UserSession) (*models.Template, bool, error) {
	existing, err := s.templates.FindByName(ctx, strings.TrimSpace(input.Name))
	if err != nil {
		return nil, false, appErrors.Classify("find template", err)
	}
	if existing == nil {
		tmpl, err := s.CreateTemplate(ctx, input, user)
		return tmpl, true, err
	}
	tmpl, err := s.UpdateTemplate(ctx, existing.ID, input, user)
	return tmpl, false, err
}

// requireFreeName fails with a ConflictError when a template other than selfID uses name.
func (s *TemplateService) requireFreeName(ctx context.Context, name string, selfID int64) error {
	existing, err := s.templates.FindByName(ctx, name)
	if err != nil {
		return appErrors.Classify("find template", err)
	}
	if existing != nil && existing.ID != selfID {
		return appErrors.NewConflictError("template", constants.FieldName, name)
	}
	return nil
}

func (s *TemplateService) copyName(ctx context.Context, sourceName, requested string) (string, error) {
	if requested != "" {
		return requested, s.requireFreeName(ctx, requested, 0)
	}

	name := sourceName + " (Copy)"
	for n := 2; ; n++ {
		existing, err := s.templates.FindByName(ctx, name)
		if err != nil {
			return "", appErrors.Classify("find template", err)
		}
		if existing == nil {
			return name, nil
		}
		name = fmt.Sprintf("%s (Copy %d)", sourceName, n)
	}
}

// normalizeSteps validates step blueprints and renumbers them 1..n, keeping
// the given step_order as the sort key when one is supplied.
func (s *TemplateService) normalizeSteps(input []models.TemplateStep) ([]models.TemplateStep, error) {
	steps := make([]models.TemplateStep, len(input))
	copy(steps, input)

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})

	for i := range steps {
		step := &steps[i]
		field := func(name string) string { return fmt.Sprintf("steps[%d].%s", i, name) }

		step.Name = strings.TrimSpace(step.Name)
		if step.Name == "" {
			return nil, appErrors.NewValidationError(field("name"), "step name is required")
		}
		if p := step.ProbabilityPercent; math.IsNaN(p) || p < 0 || p > 100 {
			return nil, appErrors.NewValidationError(field("probability_percent"), "must be between 0 and 100")
		}
		if step.DefaultETADays < 0 {
			return nil, appErrors.NewValidationError(field("default_eta_days"), "must not be negative")
		}
		if (step.SLAHours != nil && *step.SLAHours < 0) || (step.SLAMinutes != nil && *step.SLAMinutes < 0) {
			return nil, appErrors.NewValidationError(field("sla"), "SLA hours and minutes must not be negative")
		}
		step.EntryCondition = strings.TrimSpace(step.EntryCondition)
		if s.conditions != nil {
			if err := s.conditions.Validate(step.EntryCondition); err != nil {
				return nil, appErrors.NewValidationError(field("entry_condition"), err.Error())
			}
		}
		if step.RequiredDocuments == nil {
			step.RequiredDocuments = []string{}
		}

		step.ID = 0
		step.StepOrder = i + 1
	}
	return steps, nil
}

func (s *TemplateService) publishSaved(ctx context.Context, tmpl *models.Template, user *auth.UserSession) {
	if total := tmpl.ProbabilityTotal(); len(tmpl.Steps) > 0 && total != 100 {
		log.Warn("⚠️  Template step probabilities do not sum to 100", "template", tmpl.Name, "total", total)
	}
	publish(ctx, s.events, events.TemplateSaved, events.TemplateEvent{
		TemplateID: tmpl.ID,
		Name:       tmpl.Name,
		Actor:      actorName(user),
		OccurredAt: tmpl.UpdatedAt,
	})
}
