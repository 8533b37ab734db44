package expression

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine compiles and caches boolean conditions written in expr-lang.
// Conditions are evaluated against a plain map environment; unknown variables evaluate to nil.
type Engine struct {
	programCache map[string]*vm.Program
	now          func() time.Time
	mu           sync.RWMutex
}

// NewEngine creates a new expression engine
func NewEngine() *Engine {
	return &Engine{
		programCache: make(map[string]*vm.Program),
		now:          time.Now,
	}
}

// EvaluateBool compiles (if needed) and runs a condition. An empty condition is true.
func (e *Engine) EvaluateBool(condition string, env map[string]interface{}) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}

	program, err := e.getProgram(condition)
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not produce a boolean", condition)
	}
	return result, nil
}

// Validate compiles a condition without running it.
func (e *Engine) Validate(condition string) error {
	if strings.TrimSpace(condition) == "" {
		return nil
	}
	_, err := e.getProgram(strings.TrimSpace(condition))
	return err
}

func (e *Engine) getProgram(condition string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programCache[condition]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prog, ok := e.programCache[condition]; ok {
		return prog, nil
	}

	options := []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
		expr.Function("TODAY", func(params ...interface{}) (interface{}, error) {
			return e.now().Format("2006-01-02"), nil
		}),
		expr.Function("DAYS_UNTIL", func(params ...interface{}) (interface{}, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("DAYS_UNTIL requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("DAYS_UNTIL argument must be a date string")
			}
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				t, err = time.Parse(time.RFC3339, s)
				if err != nil {
					return nil, fmt.Errorf("DAYS_UNTIL date format invalid")
				}
			}
			return int(t.Sub(e.now()).Hours() / 24), nil
		}),
	}

	program, err := expr.Compile(condition, options...)
	if err != nil {
		return nil, err
	}

	e.programCache[condition] = program
	return program, nil
}
