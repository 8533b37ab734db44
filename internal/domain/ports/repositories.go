package ports

import (
	"context"

	"github.com/mylabook/opsflow/internal/domain/models"
)

// Lookups return (nil, nil) when the record does not exist; services turn that into a NotFoundError.

// TemplateRepository persists templates together with their step blueprints.
type TemplateRepository interface {
	Get(ctx context.Context, id int64) (*models.Template, error)
	FindByName(ctx context.Context, name string) (*models.Template, error)
	// List returns all templates, or only those in categoryID when it is non-nil.
	List(ctx context.Context, categoryID *int64) ([]*models.Template, error)
	// Create assigns ids to the template and each of its steps.
	Create(ctx context.Context, template *models.Template) error
	// Update rewrites the template row and replaces its step blueprints.
	Update(ctx context.Context, template *models.Template) error
	Delete(ctx context.Context, id int64) (bool, error)
	IncrementUsage(ctx context.Context, id int64) error
}

// EntityRepository persists leads, fundraises and FinOps tasks.
type EntityRepository interface {
	Get(ctx context.Context, kind models.EntityKind, id int64) (*models.Entity, error)
	List(ctx context.Context, kind models.EntityKind) ([]*models.Entity, error)
	Create(ctx context.Context, entity *models.Entity) error
	Delete(ctx context.Context, kind models.EntityKind, id int64) (bool, error)
}

// StepRepository persists step instances.
type StepRepository interface {
	Get(ctx context.Context, id int64) (*models.StepInstance, error)
	// ListByEntity returns the entity's steps ordered by step_order.
	ListByEntity(ctx context.Context, kind models.EntityKind, entityID int64) ([]models.StepInstance, error)
	ListByAssignee(ctx context.Context, assignee string) ([]models.StepInstance, error)
	MaxOrder(ctx context.Context, kind models.EntityKind, entityID int64) (int, error)
	// CreateBatch inserts every step and assigns ids.
	CreateBatch(ctx context.Context, steps []*models.StepInstance) error
	Update(ctx context.Context, step *models.StepInstance) error
	// UpdateOrder sets step_order = position+1 for each id, touching nothing else.
	UpdateOrder(ctx context.Context, orderedIDs []int64) error
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteByEntity(ctx context.Context, kind models.EntityKind, entityID int64) (int64, error)
}

// Transactor runs fn in a single transaction. Repositories called with the
// context passed to fn join that transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// WithRetry is WithTransaction that reruns fn on lock conflicts, at most maxRetries
	// attempts in all. Inside an existing transaction fn runs once.
	WithRetry(ctx context.Context, fn func(ctx context.Context) error, maxRetries int) error
}

// ConditionEvaluator evaluates template step entry conditions.
type ConditionEvaluator interface {
	EvaluateBool(condition string, env map[string]interface{}) (bool, error)
	Validate(condition string) error
}
