package services

import (
	"context"
	"math"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain"
	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/mylabook/opsflow/pkg/constants"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// EntityService manages leads, fundraises and FinOps tasks as owners of step collections.
type EntityService struct {
	entities ports.EntityRepository
	steps    ports.StepRepository
	tx       ports.Transactor
	stepSvc  *StepService
	machine  *domain.StepStateMachine
	now      Clock
}

// NewEntityService creates a new EntityService
func NewEntityService(entities ports.EntityRepository, steps ports.StepRepository, tx ports.Transactor, stepSvc *StepService) *EntityService {
	return &EntityService{
		entities: entities,
		steps:    steps,
		tx:       tx,
		stepSvc:  stepSvc,
		machine:  domain.NewStepStateMachine(),
		now:      systemClock,
	}
}

// CreateEntity stores a new entity. With Instantiate set and a template given, the
// template's steps are created in the same transaction.
func (s *EntityService) CreateEntity(ctx context.Context, kind models.EntityKind, input models.EntityInput, user *auth.UserSession) (*models.EntityDetail, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.NewValidationError("name", "name is required")
	}
	if p := input.Probability; p != nil && (math.IsNaN(*p) || *p < 0 || *p > 100) {
		return nil, appErrors.NewValidationError("probability", "must be between 0 and 100")
	}
	if input.Instantiate && input.TemplateID == nil {
		return nil, appErrors.NewValidationError("template_id", "a template is required to instantiate steps")
	}

	now := s.now()
	entity := &models.Entity{
		Kind:        kind,
		Name:        name,
		Status:      strings.TrimSpace(input.Status),
		Owner:       strings.TrimSpace(input.Owner),
		TemplateID:  input.TemplateID,
		Probability: input.Probability,
		StartDate:   input.StartDate,
		Attributes:  input.Attributes,
		CreatedBy:   actorName(user),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var steps []models.StepInstance
	err := s.tx.WithRetry(ctx, func(ctx context.Context) error {
		if err := s.entities.Create(ctx, entity); err != nil {
			return appErrors.Classify("create "+string(kind), err)
		}
		if !input.Instantiate {
			return nil
		}
		var err error
		steps, err = s.stepSvc.InstantiateFromTemplate(ctx, kind, entity.ID, *input.TemplateID,
			InstantiateOptions{StartDate: input.StartDate}, user)
		return err
	}, constants.TxDeadlockRetries)
	if err != nil {
		return nil, err
	}

	log.Info("✅ Entity created", "kind", kind, "id", entity.ID, "steps", len(steps))
	return &models.EntityDetail{
		Entity:     entity,
		Steps:      s.machine.AnnotateTransitions(domain.BuildViews(steps, now)),
		Completion: domain.ComputeCompletion(steps, entity.Probability),
	}, nil
}

// GetEntity returns the entity with its ordered steps and completion.
func (s *EntityService) GetEntity(ctx context.Context, kind models.EntityKind, id int64) (*models.EntityDetail, error) {
	entity, err := s.entities.Get(ctx, kind, id)
	if err != nil {
		return nil, appErrors.Classify("get "+string(kind), err)
	}
	if entity == nil {
		return nil, appErrors.NewNotFoundError(string(kind), utils.FormatID(id))
	}

	steps, err := s.steps.ListByEntity(ctx, kind, id)
	if err != nil {
		return nil, appErrors.Classify("list steps", err)
	}

	return &models.EntityDetail{
		Entity:     entity,
		Steps:      s.machine.AnnotateTransitions(domain.BuildViews(steps, s.now())),
		Completion: domain.ComputeCompletion(steps, entity.Probability),
	}, nil
}

// ListEntities returns every entity of a kind.
func (s *EntityService) ListEntities(ctx context.Context, kind models.EntityKind) ([]*models.Entity, error) {
	entities, err := s.entities.List(ctx, kind)
	if err != nil {
		return nil, appErrors.Classify("list "+string(kind), err)
	}
	return entities, nil
}

// DeleteEntity removes the entity and every step it owns.
func (s *EntityService) DeleteEntity(ctx context.Context, kind models.EntityKind, id int64) error {
	err := s.tx.WithRetry(ctx, func(ctx context.Context) error {
		removed, err := s.steps.DeleteByEntity(ctx, kind, id)
		if err != nil {
			return appErrors.Classify("delete steps", err)
		}
		deleted, err := s.entities.Delete(ctx, kind, id)
		if err != nil {
			return appErrors.Classify("delete "+string(kind), err)
		}
		if !deleted {
			return appErrors.NewNotFoundError(string(kind), utils.FormatID(id))
		}
		log.Info("🗑️ Entity deleted", "kind", kind, "id", id, "steps", removed)
		return nil
	}, constants.TxDeadlockRetries)
	return err
}
