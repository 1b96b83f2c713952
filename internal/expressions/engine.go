package expressions

import (
	"context"
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Checker validates expression syntax without running it.
// Three implementations: CEL (conditions), Expr (conditions), GoJQ (transforms).
type Checker interface {
	Name() string
	Check(expression string) error
}

// Evaluator runs an expression against input data.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, data any) (any, error)
}

// Languages accepted in a condition's "language" field.
const (
	LanguageCEL  = "cel"
	LanguageExpr = "expr"
)

// Conditions dispatches condition checks to the engine named by the node's
// language field. Safe for concurrent use.
type Conditions struct {
	cel  *CELEngine
	expr *ExprEngine
}

// NewConditions creates a Conditions checker with CEL and Expr engines.
func NewConditions() (*Conditions, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Conditions{cel: celEngine, expr: NewExprEngine()}, nil
}

// Check validates a condition. Template references are replaced by plain
// identifiers first so they do not trip the parser.
func (c *Conditions) Check(language, expression string) error {
	if strings.TrimSpace(expression) == "" {
		return schema.NewError(schema.ErrCodeExpression, "empty condition expression")
	}
	neutral, refs := NeutralizeReferences(expression)

	switch language {
	case "", LanguageCEL:
		return c.cel.CheckWith(neutral, refs)
	case LanguageExpr:
		return c.expr.Check(neutral)
	}
	return schema.NewErrorf(schema.ErrCodeExpression, "unsupported condition language %q", language)
}
