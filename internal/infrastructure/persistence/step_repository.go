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

const stepColumns = "id, entity_kind, entity_id, template_step_id, name, description, step_order, status, due_date, " +
	"started_at, completed_at, estimated_days, sla_hours, sla_minutes, probability_percent, assigned_role, assigned_to, " +
	"delay_reason, delay_notes, alerts_sent, created_by, created_at, updated_at"

// StepRepository handles persistence of step instances.
type StepRepository struct {
	db *sql.DB
}

var _ ports.StepRepository = (*StepRepository)(nil)

// NewStepRepository creates a new StepRepository
func NewStepRepository(db *sql.DB) *StepRepository {
	return &StepRepository{db: db}
}

// Get retrieves a step by id.
func (r *StepRepository) Get(ctx context.Context, id int64) (*models.StepInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", stepColumns, constants.TableStep, constants.FieldID)

	step, err := scanStep(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query step: %w", err)
	}
	return &step, nil
}

// ListByEntity returns the entity's steps ordered by step_order, ties by id.
func (r *StepRepository) ListByEntity(ctx context.Context, kind models.EntityKind, entityID int64) ([]models.StepInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ? ORDER BY %s, %s",
		stepColumns, constants.TableStep, constants.FieldEntityKind, constants.FieldEntityID,
		constants.FieldStepOrder, constants.FieldID)
	return r.query(ctx, query, string(kind), entityID)
}

// ListByAssignee returns every step assigned to the user across all entities.
func (r *StepRepository) ListByAssignee(ctx context.Context, assignee string) ([]models.StepInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s, %s, %s",
		stepColumns, constants.TableStep, constants.FieldAssignedTo,
		constants.FieldEntityKind, constants.FieldEntityID, constants.FieldStepOrder)
	return r.query(ctx, query, assignee)
}

func (r *StepRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.StepInstance, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	steps := make([]models.StepInstance, 0)
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return steps, nil
}

// MaxOrder returns the highest step_order of the entity, 0 when it has no steps.
func (r *StepRepository) MaxOrder(ctx context.Context, kind models.EntityKind, entityID int64) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s WHERE %s = ? AND %s = ?",
		constants.FieldStepOrder, constants.TableStep, constants.FieldEntityKind, constants.FieldEntityID)

	var maxOrder int
	if err := executor(ctx, r.db).QueryRowContext(ctx, query, string(kind), entityID).Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("failed to query max step order: %w", err)
	}
	return maxOrder, nil
}

// CreateBatch inserts steps in order and assigns their ids. Run it inside a
// transaction for all-or-nothing behavior.
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*models.StepInstance) error {
	ex := executor(ctx, r.db)
	query := fmt.Sprintf("INSERT INTO %s (entity_kind, entity_id, template_step_id, name, description, step_order, status, "+
		"due_date, started_at, completed_at, estimated_days, sla_hours, sla_minutes, probability_percent, assigned_role, "+
		"assigned_to, delay_reason, delay_notes, alerts_sent, created_by, created_at, updated_at) "+
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", constants.TableStep)

	for _, step := range steps {
		alerts, err := encodeJSON(step.AlertsSent)
		if err != nil {
			return fmt.Errorf("failed to encode alerts: %w", err)
		}
		res, err := ex.ExecContext(ctx, query,
			string(step.EntityKind), step.EntityID, nullableInt64(step.TemplateStepID), step.Name,
			nullableString(step.Description), step.StepOrder, string(step.Status),
			nullableTime(step.DueDate), nullableTime(step.StartedAt), nullableTime(step.CompletedAt),
			step.EstimatedDays, nullableInt(step.SLAHours), nullableInt(step.SLAMinutes), step.ProbabilityPercent,
			nullableString(step.AssignedRole), nullableString(step.AssignedTo), delayReasonValue(step.DelayReason),
			nullableString(step.DelayNotes), alerts, nullableString(step.CreatedBy),
			formatTime(step.CreatedAt), formatTime(step.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert step %q: %w", step.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read step id: %w", err)
		}
		step.ID = id
	}
	return nil
}

// Update writes the mutable fields of a step. Ownership, order and creation data are left alone.
func (r *StepRepository) Update(ctx context.Context, step *models.StepInstance) error {
	alerts, err := encodeJSON(step.AlertsSent)
	if err != nil {
		return fmt.Errorf("failed to encode alerts: %w", err)
	}

	query := fmt.Sprintf("UPDATE %s SET name = ?, description = ?, status = ?, due_date = ?, started_at = ?, completed_at = ?, "+
		"estimated_days = ?, sla_hours = ?, sla_minutes = ?, probability_percent = ?, assigned_role = ?, assigned_to = ?, "+
		"delay_reason = ?, delay_notes = ?, alerts_sent = ?, updated_at = ? WHERE %s = ?", constants.TableStep, constants.FieldID)

	_, err = executor(ctx, r.db).ExecContext(ctx, query,
		step.Name, nullableString(step.Description), string(step.Status),
		nullableTime(step.DueDate), nullableTime(step.StartedAt), nullableTime(step.CompletedAt),
		step.EstimatedDays, nullableInt(step.SLAHours), nullableInt(step.SLAMinutes), step.ProbabilityPercent,
		nullableString(step.AssignedRole), nullableString(step.AssignedTo), delayReasonValue(step.DelayReason),
		nullableString(step.DelayNotes), alerts, formatTime(step.UpdatedAt), step.ID)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	return nil
}

// UpdateOrder assigns step_order = position+1 to each id and changes nothing else.
func (r *StepRepository) UpdateOrder(ctx context.Context, orderedIDs []int64) error {
	ex := executor(ctx, r.db)
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", constants.TableStep, constants.FieldStepOrder, constants.FieldID)

	for i, id := range orderedIDs {
		if _, err := ex.ExecContext(ctx, query, i+1, id); err != nil {
			return fmt.Errorf("failed to update order of step %d: %w", id, err)
		}
	}
	return nil
}

// Delete removes one step.
func (r *StepRepository) Delete(ctx context.Context, id int64) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", constants.TableStep, constants.FieldID)

	res, err := executor(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete step: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteByEntity removes every step of an entity and returns how many were removed.
func (r *StepRepository) DeleteByEntity(ctx context.Context, kind models.EntityKind, entityID int64) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?",
		constants.TableStep, constants.FieldEntityKind, constants.FieldEntityID)

	res, err := executor(ctx, r.db).ExecContext(ctx, query, string(kind), entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entity steps: %w", err)
	}
	return res.RowsAffected()
}

func delayReasonValue(reason *models.DelayReason) interface{} {
	if reason == nil {
		return nil
	}
	return string(*reason)
}

func scanStep(row rowScanner) (models.StepInstance, error) {
	var (
		step           models.StepInstance
		kind, status   string
		templateStepID sql.NullInt64
		description    sql.NullString
		dueDate        sql.NullString
		startedAt      sql.NullString
		completedAt    sql.NullString
		slaHours       sql.NullInt64
		slaMinutes     sql.NullInt64
		assignedRole   sql.NullString
		assignedTo     sql.NullString
		delayReason    sql.NullString
		delayNotes     sql.NullString
		alerts         sql.NullString
		createdBy      sql.NullString
		createdAt      string
		updatedAt      string
	)
	if err := row.Scan(&step.ID, &kind, &step.EntityID, &templateStepID, &step.Name, &description, &step.StepOrder,
		&status, &dueDate, &startedAt, &completedAt, &step.EstimatedDays, &slaHours, &slaMinutes,
		&step.ProbabilityPercent, &assignedRole, &assignedTo, &delayReason, &delayNotes, &alerts,
		&createdBy, &createdAt, &updatedAt); err != nil {
		return step, err
	}

	step.EntityKind = models.EntityKind(kind)
	step.Status = models.StepStatus(status)
	step.TemplateStepID = int64Ptr(templateStepID)
	step.Description = description.String
	step.DueDate = parseNullableTime(dueDate)
	step.StartedAt = parseNullableTime(startedAt)
	step.CompletedAt = parseNullableTime(completedAt)
	step.SLAHours = intPtr(slaHours)
	step.SLAMinutes = intPtr(slaMinutes)
	step.AssignedRole = assignedRole.String
	step.AssignedTo = assignedTo.String
	if delayReason.Valid && delayReason.String != "" {
		reason := models.DelayReason(delayReason.String)
		step.DelayReason = &reason
	}
	step.DelayNotes = delayNotes.String
	step.AlertsSent = decodeStringList(alerts)
	step.CreatedBy = createdBy.String
	step.CreatedAt = parseRequiredTime(createdAt)
	step.UpdatedAt = parseRequiredTime(updatedAt)
	return step, nil
}
