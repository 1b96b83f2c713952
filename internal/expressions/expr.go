package expressions

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/rendis/canvasflow/pkg/schema"
)

// ExprEngine checks conditions written in expr-lang/expr. Every free
// identifier is declared as an untyped variable, so only syntax and operator
// errors are reported, and names such as count or len used as values do not
// resolve to the builtins.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]error
}

// NewExprEngine creates a new Expr checker.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]error),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return LanguageExpr
}

// Check compiles the expression and discards the program.
func (e *ExprEngine) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeExpression, "empty expr expression")
	}

	e.mu.RLock()
	cached, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return cached
	}

	result := compileExpr(expression)

	e.mu.Lock()
	e.cache[expression] = result
	e.mu.Unlock()
	return result
}

func compileExpr(expression string) error {
	tree, err := parser.Parse(expression)
	if err != nil {
		return exprError(expression, err)
	}

	env := make(map[string]any)
	for _, name := range freeIdentifiers(tree.Node) {
		env[name] = nil
	}
	if _, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables()); err != nil {
		return exprError(expression, err)
	}
	return nil
}

func exprError(expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeExpression,
		"expr compile error in %q: %s", expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

// identifierCollector records identifiers used as values. Callees and
// names bound by let are left out.
type identifierCollector struct {
	idents  []*ast.IdentifierNode
	callees map[*ast.IdentifierNode]bool
	bound   map[string]bool
}

func (c *identifierCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents = append(c.idents, n)
	case *ast.CallNode:
		if callee, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[callee] = true
		}
	case *ast.VariableDeclaratorNode:
		c.bound[n.Name] = true
	}
}

func freeIdentifiers(root ast.Node) []string {
	c := &identifierCollector{
		callees: make(map[*ast.IdentifierNode]bool),
		bound:   make(map[string]bool),
	}
	ast.Walk(&root, c)

	seen := make(map[string]bool)
	var names []string
	for _, id := range c.idents {
		if c.callees[id] || c.bound[id.Value] || seen[id.Value] {
			continue
		}
		seen[id.Value] = true
		names = append(names, id.Value)
	}
	return names
}

var _ Checker = (*ExprEngine)(nil)
