package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mylabook/opsflow/internal/domain/models"
	"github.com/mylabook/opsflow/internal/domain/ports"
	"github.com/mylabook/opsflow/pkg/constants"
)

const templateColumns = "id, name, description, category_id, is_active, usage_count, created_by, created_at, updated_at"

const templateStepColumns = "id, template_id, step_order, name, description, default_eta_days, sla_hours, sla_minutes, " +
	"assigned_role, required_documents, approval_required, parallel_execution, probability_percent, entry_condition"

// TemplateRepository handles persistence of templates and their step blueprints.
type TemplateRepository struct {
	db *sql.DB
}

var _ ports.TemplateRepository = (*TemplateRepository)(nil)

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Get retrieves a template with its steps ordered by step_order.
func (r *TemplateRepository) Get(ctx context.Context, id int64) (*models.Template, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", templateColumns, constants.TableTemplate, constants.FieldID)
	return r.getOne(ctx, query, id)
}

// FindByName retrieves the first template with the given name.
func (r *TemplateRepository) FindByName(ctx context.Context, name string) (*models.Template, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s LIMIT 1",
		templateColumns, constants.TableTemplate, constants.FieldName, constants.FieldID)
	return r.getOne(ctx, query, name)
}

func (r *TemplateRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Template, error) {
	ex := executor(ctx, r.db)

	tmpl, err := scanTemplate(ex.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query template: %w", err)
	}

	steps, err := r.loadSteps(ctx, []int64{tmpl.ID})
	if err != nil {
		return nil, err
	}
	tmpl.Steps = steps[tmpl.ID]
	if tmpl.Steps == nil {
		tmpl.Steps = []models.TemplateStep{}
	}
	return tmpl, nil
}

// List returns templates ordered by name, optionally restricted to one category.
func (r *TemplateRepository) List(ctx context.Context, categoryID *int64) ([]*models.Template, error) {
	ex := executor(ctx, r.db)

	query := fmt.Sprintf("SELECT %s FROM %s", templateColumns, constants.TableTemplate)
	var args []interface{}
	if categoryID != nil {
		query += fmt.Sprintf(" WHERE %s = ?", constants.FieldCategoryID)
		args = append(args, *categoryID)
	}
	query += fmt.Sprintf(" ORDER BY %s, %s", constants.FieldName, constants.FieldID)

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	templates := make([]*models.Template, 0)
	var ids []int64
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tmpl)
		ids = append(ids, tmpl.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	// release the connection before the step query; in-memory SQLite has only one
	_ = rows.Close()

	if len(ids) == 0 {
		return templates, nil
	}

	steps, err := r.loadSteps(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, tmpl := range templates {
		tmpl.Steps = steps[tmpl.ID]
		if tmpl.Steps == nil {
			tmpl.Steps = []models.TemplateStep{}
		}
	}
	return templates, nil
}

// Create inserts the template and its steps, assigning ids in place.
func (r *TemplateRepository) Create(ctx context.Context, tmpl *models.Template) error {
	ex := executor(ctx, r.db)

	query := fmt.Sprintf("INSERT INTO %s (name, description, category_id, is_active, usage_count, created_by, created_at, updated_at) "+
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?)", constants.TableTemplate)
	res, err := ex.ExecContext(ctx, query,
		tmpl.Name, nullableString(tmpl.Description), nullableInt64(tmpl.CategoryID), tmpl.IsActive,
		tmpl.UsageCount, nullableString(tmpl.CreatedBy), formatTime(tmpl.CreatedAt), formatTime(tmpl.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read template id: %w", err)
	}
	tmpl.ID = id

	return r.insertSteps(ctx, ex, tmpl)
}

// Update rewrites the template row and replaces its step blueprints.
// usage_count is owned by IncrementUsage and is left untouched.
func (r *TemplateRepository) Update(ctx context.Context, tmpl *models.Template) error {
	ex := executor(ctx, r.db)

	query := fmt.Sprintf("UPDATE %s SET name = ?, description = ?, category_id = ?, is_active = ?, updated_at = ? WHERE %s = ?",
		constants.TableTemplate, constants.FieldID)
	if _, err := ex.ExecContext(ctx, query,
		tmpl.Name, nullableString(tmpl.Description), nullableInt64(tmpl.CategoryID), tmpl.IsActive,
		formatTime(tmpl.UpdatedAt), tmpl.ID); err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", constants.TableTemplateStep, constants.FieldTemplateID)
	if _, err := ex.ExecContext(ctx, del, tmpl.ID); err != nil {
		return fmt.Errorf("failed to clear template steps: %w", err)
	}

	return r.insertSteps(ctx, ex, tmpl)
}

// Delete removes the template and its step blueprints. Step instances already
// created from it are copies and are not affected.
func (r *TemplateRepository) Delete(ctx context.Context, id int64) (bool, error) {
	ex := executor(ctx, r.db)

	delSteps := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", constants.TableTemplateStep, constants.FieldTemplateID)
	if _, err := ex.ExecContext(ctx, delSteps, id); err != nil {
		return false, fmt.Errorf("failed to delete template steps: %w", err)
	}

	res, err := ex.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", constants.TableTemplate, constants.FieldID), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// IncrementUsage bumps usage_count by one.
func (r *TemplateRepository) IncrementUsage(ctx context.Context, id int64) error {
	query := fmt.Sprintf("UPDATE %s SET %s = %s + 1 WHERE %s = ?",
		constants.TableTemplate, constants.FieldUsageCount, constants.FieldUsageCount, constants.FieldID)
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment template usage: %w", err)
	}
	return nil
}

func (r *TemplateRepository) insertSteps(ctx context.Context, ex Executor, tmpl *models.Template) error {
	query := fmt.Sprintf("INSERT INTO %s (template_id, step_order, name, description, default_eta_days, sla_hours, sla_minutes, "+
		"assigned_role, required_documents, approval_required, parallel_execution, probability_percent, entry_condition) "+
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", constants.TableTemplateStep)

	for i := range tmpl.Steps {
		step := &tmpl.Steps[i]
		step.TemplateID = tmpl.ID

		docs, err := encodeJSON(step.RequiredDocuments)
		if err != nil {
			return fmt.Errorf("failed to encode required documents: %w", err)
		}

		res, err := ex.ExecContext(ctx, query,
			step.TemplateID, step.StepOrder, step.Name, nullableString(step.Description), step.DefaultETADays,
			nullableInt(step.SLAHours), nullableInt(step.SLAMinutes), nullableString(step.AssignedRole), docs,
			step.ApprovalRequired, step.ParallelExecution, step.ProbabilityPercent, nullableString(step.EntryCondition))
		if err != nil {
			return fmt.Errorf("failed to insert template step %q: %w", step.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read template step id: %w", err)
		}
		step.ID = id
	}
	return nil
}

// loadSteps fetches the steps of every template in ids, grouped by template id.
func (r *TemplateRepository) loadSteps(ctx context.Context, ids []int64) (map[int64][]models.TemplateStep, error) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY %s, %s, %s",
		templateStepColumns, constants.TableTemplateStep, constants.FieldTemplateID, strings.Join(placeholders, ", "),
		constants.FieldTemplateID, constants.FieldStepOrder, constants.FieldID)

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query template steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[int64][]models.TemplateStep, len(ids))
	for rows.Next() {
		step, err := scanTemplateStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template step: %w", err)
		}
		result[step.TemplateID] = append(result[step.TemplateID], step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template steps: %w", err)
	}
	return result, nil
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var (
		tmpl        models.Template
		description sql.NullString
		categoryID  sql.NullInt64
		createdBy   sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(&tmpl.ID, &tmpl.Name, &description, &categoryID, &tmpl.IsActive, &tmpl.UsageCount,
		&createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	tmpl.Description = description.String
	tmpl.CategoryID = int64Ptr(categoryID)
	tmpl.CreatedBy = createdBy.String
	tmpl.CreatedAt = parseRequiredTime(createdAt)
	tmpl.UpdatedAt = parseRequiredTime(updatedAt)
	return &tmpl, nil
}

func scanTemplateStep(row rowScanner) (models.TemplateStep, error) {
	var (
		step           models.TemplateStep
		description    sql.NullString
		slaHours       sql.NullInt64
		slaMinutes     sql.NullInt64
		assignedRole   sql.NullString
		docs           sql.NullString
		entryCondition sql.NullString
	)
	if err := row.Scan(&step.ID, &step.TemplateID, &step.StepOrder, &step.Name, &description, &step.DefaultETADays,
		&slaHours, &slaMinutes, &assignedRole, &docs, &step.ApprovalRequired, &step.ParallelExecution,
		&step.ProbabilityPercent, &entryCondition); err != nil {
		return step, err
	}
	step.Description = description.String
	step.SLAHours = intPtr(slaHours)
	step.SLAMinutes = intPtr(slaMinutes)
	step.AssignedRole = assignedRole.String
	step.RequiredDocuments = decodeStringList(docs)
	if step.RequiredDocuments == nil {
		step.RequiredDocuments = []string{}
	}
	step.EntryCondition = entryCondition.String
	return step, nil
}
