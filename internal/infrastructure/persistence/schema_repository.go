package persistence

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/domain/schema"
	"github.com/mylabook/opsflow/internal/infrastructure/database"
)

var validIdentifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SchemaRepository turns table definitions into dialect-specific DDL and executes it.
type SchemaRepository struct {
	conn      *database.Connection
	validator *DDLValidator
}

// NewSchemaRepository creates a new SchemaRepository
func NewSchemaRepository(conn *database.Connection) *SchemaRepository {
	return &SchemaRepository{conn: conn, validator: NewDDLValidator()}
}

// BuildCreateTableDDL renders the statements that create def. MySQL gets a single
// statement with inline keys; SQLite gets the table plus one CREATE INDEX per index.
func (r *SchemaRepository) BuildCreateTableDDL(def schema.TableDefinition) ([]string, error) {
	if !validIdentifier.MatchString(def.TableName) {
		return nil, fmt.Errorf("table name '%s' must be snake_case (lowercase, alphanumeric, underscores)", def.TableName)
	}
	for _, col := range def.Columns {
		if err := ValidateColumnDefinition(col); err != nil {
			return nil, fmt.Errorf("invalid column definition for '%s': %w", col.Name, err)
		}
	}

	dialect := r.conn.Dialect()
	var parts []string
	var pk []string

	for _, col := range def.Columns {
		parts = append(parts, buildColumnDDL(dialect, col))
		if col.PrimaryKey && !(dialect == database.DialectSQLite && col.AutoIncrement) {
			pk = append(pk, quoteIdent(dialect, col.Name))
		}
	}
	if len(pk) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pk, ", ")))
	}
	if dialect == database.DialectMySQL {
		for _, idx := range def.Indices {
			parts = append(parts, buildInlineIndexDDL(idx))
		}
	}
	for _, fk := range def.ForeignKeys {
		parts = append(parts, buildForeignKeyDDL(dialect, fk))
	}

	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  ", quoteIdent(dialect, def.TableName)))
	ddl.WriteString(strings.Join(parts, ",\n  "))
	ddl.WriteString("\n)")
	if dialect == database.DialectMySQL {
		ddl.WriteString(" ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci")
	}

	statements := []string{ddl.String()}
	if dialect == database.DialectSQLite {
		for _, idx := range def.Indices {
			statements = append(statements, buildStandaloneIndexDDL(def.TableName, idx))
		}
	}
	return statements, nil
}

// CreatePhysicalTable creates the table (idempotent). MySQL DDL is checked by the
// SQL parser before it is sent to the server.
func (r *SchemaRepository) CreatePhysicalTable(ctx context.Context, def schema.TableDefinition) error {
	log.Info("📐 Creating table", "table", def.TableName)

	statements, err := r.BuildCreateTableDDL(def)
	if err != nil {
		return err
	}

	if r.conn.Dialect() == database.DialectMySQL {
		if err := r.validator.ValidateCreateTable(statements[0], def); err != nil {
			return fmt.Errorf("generated DDL for %s failed validation: %w", def.TableName, err)
		}
	}

	for _, stmt := range statements {
		log.Debug("📝 Executing DDL", "table", def.TableName, "sql", stmt)
		if _, err := r.conn.DB().ExecContext(ctx, stmt); err != nil {
			log.Error("❌ Failed to create table", "table", def.TableName, "err", err)
			return fmt.Errorf("failed to create table %s: %w", def.TableName, err)
		}
	}
	return nil
}

// TableExists checks for a table by selecting from it.
func (r *SchemaRepository) TableExists(ctx context.Context, table string) bool {
	if !validIdentifier.MatchString(table) {
		return false
	}
	rows, err := r.conn.DB().QueryContext(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", table))
	if err != nil {
		return false
	}
	_ = rows.Close()
	return true
}

// ValidateColumnDefinition rejects definitions the DDL builder cannot render safely.
func ValidateColumnDefinition(col schema.ColumnDefinition) error {
	if !validIdentifier.MatchString(col.Name) {
		return fmt.Errorf("column name must be snake_case")
	}
	if strings.TrimSpace(col.Type) == "" {
		return fmt.Errorf("column type is required")
	}
	if col.AutoIncrement && !col.PrimaryKey {
		return fmt.Errorf("auto_increment requires primary_key")
	}
	if strings.ContainsAny(col.Default, ";`") {
		return fmt.Errorf("default value contains forbidden characters")
	}
	return nil
}

func quoteIdent(dialect database.Dialect, name string) string {
	if dialect == database.DialectSQLite {
		return `"` + name + `"`
	}
	return "`" + name + "`"
}

func buildColumnDDL(dialect database.Dialect, col schema.ColumnDefinition) string {
	name := quoteIdent(dialect, col.Name)

	if col.PrimaryKey && col.AutoIncrement {
		if dialect == database.DialectSQLite {
			// only INTEGER PRIMARY KEY aliases the rowid
			return name + " INTEGER PRIMARY KEY AUTOINCREMENT"
		}
		return name + " " + col.Type + " NOT NULL AUTO_INCREMENT"
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" ")
	b.WriteString(col.Type)
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(col.Default)
	}
	return b.String()
}

func buildInlineIndexDDL(idx schema.IndexDefinition) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = quoteIdent(database.DialectMySQL, c)
	}
	kind := "KEY"
	if idx.Unique {
		kind = "UNIQUE KEY"
	}
	return fmt.Sprintf("%s %s (%s)", kind, quoteIdent(database.DialectMySQL, idx.Name), strings.Join(cols, ", "))
}

func buildStandaloneIndexDDL(table string, idx schema.IndexDefinition) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = quoteIdent(database.DialectSQLite, c)
	}
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind,
		quoteIdent(database.DialectSQLite, idx.Name), quoteIdent(database.DialectSQLite, table), strings.Join(cols, ", "))
}

func buildForeignKeyDDL(dialect database.Dialect, fk schema.ForeignKeyDefinition) string {
	refTable, refCol := fk.References, "id"
	if open := strings.Index(fk.References, "("); open > 0 && strings.HasSuffix(fk.References, ")") {
		refTable = fk.References[:open]
		refCol = fk.References[open+1 : len(fk.References)-1]
	}
	ddl := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteIdent(dialect, fk.Column), quoteIdent(dialect, refTable), quoteIdent(dialect, refCol))
	if fk.OnDelete != "" {
		ddl += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	return ddl
}
