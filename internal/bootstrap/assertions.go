package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/infrastructure/database"
	"github.com/mylabook/opsflow/internal/infrastructure/persistence"
	"github.com/mylabook/opsflow/pkg/constants"
)

// AssertionViolation represents a single data consistency violation
type AssertionViolation struct {
	Category    string // e.g. "CompletedAt", "StepOrder"
	Severity    string // "error" or "warning"
	Object      string // table or entity affected
	Description string
}

// AssertionResult contains all violations found during assertion checks
type AssertionResult struct {
	Violations []AssertionViolation
	Passed     bool
}

func (r *AssertionResult) add(category, severity, object, description string) {
	r.Violations = append(r.Violations, AssertionViolation{
		Category:    category,
		Severity:    severity,
		Object:      object,
		Description: description,
	})
}

// RunAssertions checks stored steps against the lifecycle invariants.
// Violations are logged as warnings; strictMode turns them into an error.
func RunAssertions(ctx context.Context, conn *database.Connection, strictMode bool) (*AssertionResult, error) {
	log.Info("🔍 Running startup assertions...")

	result := &AssertionResult{
		Violations: []AssertionViolation{},
		Passed:     true,
	}

	db := conn.DB()
	assertTablesExist(ctx, conn, result)
	assertCompletedAtConsistency(ctx, db, result)
	assertStartedAtPresent(ctx, db, result)
	assertDelayedHaveReason(ctx, db, result)
	assertContiguousOrder(ctx, db, result)

	if len(result.Violations) == 0 {
		log.Info("✅ All assertions passed")
		return result, nil
	}

	result.Passed = false
	log.Warn("⚠️  Assertion violations found", "count", len(result.Violations))
	for i, v := range result.Violations {
		log.Warn(fmt.Sprintf("   %d. [%s] %s: %s", i+1, v.Severity, v.Category, v.Description), "object", v.Object)
	}

	if strictMode {
		return result, fmt.Errorf("assertion failures in strict mode: %d violation(s)", len(result.Violations))
	}
	return result, nil
}

func assertTablesExist(ctx context.Context, conn *database.Connection, result *AssertionResult) {
	repo := persistence.NewSchemaRepository(conn)
	for _, table := range constants.AllTables() {
		if !repo.TableExists(ctx, table) {
			result.add("Tables", "error", table, "table does not exist")
		}
	}
}

// completed_at is set exactly when the step is completed
func assertCompletedAtConsistency(ctx context.Context, db *sql.DB, result *AssertionResult) {
	query := fmt.Sprintf("SELECT id, status FROM %s WHERE (status = 'completed' AND completed_at IS NULL) "+
		"OR (status <> 'completed' AND completed_at IS NOT NULL)", constants.TableStep)
	forEachRow(ctx, db, query, func(id int64, detail string) {
		result.add("CompletedAt", "error", fmt.Sprintf("step %d", id),
			fmt.Sprintf("completed_at does not match status '%s'", detail))
	})
}

func assertStartedAtPresent(ctx context.Context, db *sql.DB, result *AssertionResult) {
	query := fmt.Sprintf("SELECT id, status FROM %s WHERE status <> 'pending' AND started_at IS NULL", constants.TableStep)
	forEachRow(ctx, db, query, func(id int64, detail string) {
		result.add("StartedAt", "warning", fmt.Sprintf("step %d", id),
			fmt.Sprintf("status '%s' without started_at", detail))
	})
}

func assertDelayedHaveReason(ctx context.Context, db *sql.DB, result *AssertionResult) {
	query := fmt.Sprintf("SELECT id, status FROM %s WHERE status = 'delayed' AND (delay_reason IS NULL OR delay_reason = '')",
		constants.TableStep)
	forEachRow(ctx, db, query, func(id int64, _ string) {
		result.add("DelayReason", "error", fmt.Sprintf("step %d", id), "delayed step has no delay reason")
	})
}

// step_order must be 1..n within each entity
func assertContiguousOrder(ctx context.Context, db *sql.DB, result *AssertionResult) {
	query := fmt.Sprintf("SELECT entity_id, entity_kind FROM %s GROUP BY entity_kind, entity_id "+
		"HAVING MIN(step_order) <> 1 OR MAX(step_order) <> COUNT(*) OR COUNT(DISTINCT step_order) <> COUNT(*)",
		constants.TableStep)
	forEachRow(ctx, db, query, func(id int64, kind string) {
		result.add("StepOrder", "warning", fmt.Sprintf("%s %d", kind, id), "step_order is not contiguous from 1")
	})
}

func forEachRow(ctx context.Context, db *sql.DB, query string, fn func(id int64, detail string)) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		log.Warn("   ⚠️  Could not run assertion query", "err", err)
		return
	}
	defer func() { _ = rows.Close() }()

	type row struct {
		id     int64
		detail string
	}
	var found []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.detail); err == nil {
			found = append(found, r)
		}
	}
	_ = rows.Close()
	for _, r := range found {
		fn(r.id, r.detail)
	}
}
