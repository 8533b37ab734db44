package persistence

import (
	"fmt"
	"sync"

	"github.com/mylabook/opsflow/internal/domain/schema"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // value expressions for DEFAULT literals
)

// DDLValidator parses generated MySQL DDL and checks it matches its table definition.
type DDLValidator struct {
	mu     sync.Mutex // parser.Parser is not safe for concurrent use
	parser *parser.Parser
}

// NewDDLValidator creates a new DDLValidator
func NewDDLValidator() *DDLValidator {
	return &DDLValidator{parser: parser.New()}
}

// ValidateCreateTable requires exactly one idempotent CREATE TABLE for def.TableName
// declaring every column of def, in order.
func (v *DDLValidator) ValidateCreateTable(sql string, def schema.TableDefinition) error {
	v.mu.Lock()
	stmtNodes, _, err := v.parser.Parse(sql, "", "")
	v.mu.Unlock()
	if err != nil {
		return fmt.Errorf("SQL parse error: %v", err)
	}
	if len(stmtNodes) != 1 {
		return fmt.Errorf("expected a single statement, got %d", len(stmtNodes))
	}

	create, ok := stmtNodes[0].(*ast.CreateTableStmt)
	if !ok {
		return fmt.Errorf("expected CREATE TABLE statement")
	}
	if !create.IfNotExists {
		return fmt.Errorf("CREATE TABLE %s must use IF NOT EXISTS", create.Table.Name.O)
	}
	if create.Table.Name.O != def.TableName {
		return fmt.Errorf("statement creates %s, expected %s", create.Table.Name.O, def.TableName)
	}
	if len(create.Cols) != len(def.Columns) {
		return fmt.Errorf("statement declares %d columns, definition has %d", len(create.Cols), len(def.Columns))
	}
	for i, col := range create.Cols {
		if col.Name.Name.O != def.Columns[i].Name {
			return fmt.Errorf("column %d is %s, expected %s", i, col.Name.Name.O, def.Columns[i].Name)
		}
	}
	return nil
}
