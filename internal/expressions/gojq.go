package expressions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/canvasflow/pkg/schema"
)

// GoJQEngine checks and previews jq expressions used by transform nodes.
// Compiled programs are shared between goroutines.
type GoJQEngine struct {
	programs sync.Map // expression -> jqProgram
}

type jqProgram struct {
	code *gojq.Code
	err  error
}

// NewGoJQEngine creates a new GoJQ expression engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Check parses and compiles the expression. Template references stand in
// for values, so they are checked as null literals.
func (e *GoJQEngine) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeExpression, "empty jq expression")
	}
	_, err := e.program(ReplaceReferences(expression, func(Reference) string { return "null" }))
	return err
}

// Evaluate runs a jq expression against data. A single output is returned
// as is, several outputs as []any and no output as nil.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty jq expression")
	}
	code, err := e.program(expression)
	if err != nil {
		return nil, err
	}
	input, err := jqInput(data)
	if err != nil {
		return nil, jqError("input", expression, err)
	}

	var outputs []any
	iter := code.RunWithContext(ctx, input)
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, failed := v.(error); failed {
			return nil, jqError("evaluation", expression, err)
		}
		outputs = append(outputs, v)
	}

	switch len(outputs) {
	case 0:
		return nil, nil
	case 1:
		return outputs[0], nil
	}
	return outputs, nil
}

// program compiles expression once; failures are cached too.
func (e *GoJQEngine) program(expression string) (*gojq.Code, error) {
	if p, ok := e.programs.Load(expression); ok {
		return p.(jqProgram).code, p.(jqProgram).err
	}

	var p jqProgram
	query, err := gojq.Parse(expression)
	if err != nil {
		p.err = jqError("parse", expression, err)
	} else if p.code, err = gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil })); err != nil {
		p.err = jqError("compile", expression, err)
	}

	actual, _ := e.programs.LoadOrStore(expression, p)
	return actual.(jqProgram).code, actual.(jqProgram).err
}

func jqError(stage, expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeExpression, "jq %s error in %q: %s", stage, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

// jqInput round-trips data through JSON so numbers become float64 and typed
// slices and structs become plain values gojq accepts.
func jqInput(data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var (
	_ Checker   = (*GoJQEngine)(nil)
	_ Evaluator = (*GoJQEngine)(nil)
)
