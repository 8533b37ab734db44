package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/pkg/constants"
)

const entityColumns = "id, kind, name, status, owner, template_id, probability, start_date, attributes, created_by, created_at, updated_at"

// EntityRepository handles persistence of leads, fundraises and FinOps tasks.
type EntityRepository struct {
	db *sql.DB
}

var _ ports.EntityRepository = (*EntityRepository)(nil)

// NewEntityRepository creates a new EntityRepository
func NewEntityRepository(db *sql.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// Get retrieves an entity of the given kind. An id that exists under another kind is not found.
func (r *EntityRepository) Get(ctx context.Context, kind models.EntityKind, id int64) (*models.Entity, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ?",
		entityColumns, constants.TableEntity, constants.FieldID, constants.FieldKind)

	entity, err := scanEntity(executor(ctx, r.db).QueryRowContext(ctx, query, id, string(kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}
	return entity, nil
}

// List returns every entity of a kind, newest first.
func (r *EntityRepository) List(ctx context.Context, kind models.EntityKind) ([]*models.Entity, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s DESC",
		entityColumns, constants.TableEntity, constants.FieldKind, constants.FieldID)

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entities := make([]*models.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

// Create inserts the entity and assigns its id.
func (r *EntityRepository) Create(ctx context.Context, entity *models.Entity) error {
	attrs, err := encodeJSON(entity.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	query := fmt.Sprintf("INSERT INTO %s (kind, name, status, owner, template_id, probability, start_date, attributes, "+
		"created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", constants.TableEntity)

	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		string(entity.Kind), entity.Name, nullableString(entity.Status), nullableString(entity.Owner),
		nullableInt64(entity.TemplateID), nullableFloat(entity.Probability), nullableTime(entity.StartDate), attrs,
		nullableString(entity.CreatedBy), formatTime(entity.CreatedAt), formatTime(entity.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read entity id: %w", err)
	}
	entity.ID = id
	return nil
}

// Delete removes the entity row. Callers delete its steps first.
func (r *EntityRepository) Delete(ctx context.Context, kind models.EntityKind, id int64) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", constants.TableEntity, constants.FieldID, constants.FieldKind)

	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, string(kind))
	if err != nil {
		return false, fmt.Errorf("failed to delete entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		entity      models.Entity
		kind        string
		status      sql.NullString
		owner       sql.NullString
		templateID  sql.NullInt64
		probability sql.NullFloat64
		startDate   sql.NullString
		attrs       sql.NullString
		createdBy   sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(&entity.ID, &kind, &entity.Name, &status, &owner, &templateID, &probability,
		&startDate, &attrs, &createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	entity.Kind = models.EntityKind(kind)
	entity.Status = status.String
	entity.Owner = owner.String
	entity.TemplateID = int64Ptr(templateID)
	entity.Probability = floatPtr(probability)
	entity.StartDate = parseNullableTime(startDate)
	entity.Attributes = decodeAttributes(attrs)
	entity.CreatedBy = createdBy.String
	entity.CreatedAt = parseRequiredTime(createdAt)
	entity.UpdatedAt = parseRequiredTime(updatedAt)
	return &entity, nil
}
