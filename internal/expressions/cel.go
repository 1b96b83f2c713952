package expressions

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/canvasflow/pkg/schema"
)

// CELEngine type-checks condition expressions with Google's Common Expression Language.
// Thread-safe: check results are cached per expression.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]error
}

// NewCELEngine creates a CEL checker. Conditions may read:
//   - state: map(string, dyn), workflow state written by set-state nodes
//   - input: map(string, dyn), the trigger payload
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("state", mapType),
		cel.Variable("input", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]error),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return LanguageCEL
}

// Check compiles an expression that contains no template references.
func (e *CELEngine) Check(expression string) error {
	return e.CheckWith(expression, nil)
}

// CheckWith compiles an expression in which refs were substituted for
// template references; each ref is declared as a dynamic variable.
func (e *CELEngine) CheckWith(expression string, refs []string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeExpression, "empty CEL expression")
	}

	e.mu.RLock()
	cached, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return cached
	}

	err := e.compile(expression, refs)

	e.mu.Lock()
	e.cache[expression] = err
	e.mu.Unlock()
	return err
}

func (e *CELEngine) compile(expression string, refs []string) error {
	env := e.env
	if len(refs) > 0 {
		opts := make([]cel.EnvOption, 0, len(refs))
		for _, r := range refs {
			opts = append(opts, cel.Variable(r, cel.DynType))
		}
		extended, err := e.env.Extend(opts...)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeExpression, "extend CEL environment: %s", err.Error()).WithCause(err)
		}
		env = extended
	}

	_, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return schema.NewErrorf(schema.ErrCodeExpression,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}
	return nil
}

var _ Checker = (*CELEngine)(nil)
