package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/validation"
	"github.com/rendis/canvasflow/pkg/schema"
)

// verdict is the outcome of checking one node's configuration.
type verdict struct {
	status  schema.NodeStatus
	summary string
	output  json.RawMessage
}

func pass(format string, args ...any) verdict {
	return verdict{status: schema.NodeStatusSuccess, summary: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) verdict {
	return verdict{status: schema.NodeStatusError, summary: fmt.Sprintf(format, args...)}
}

func skip(summary string) verdict {
	return verdict{status: schema.NodeStatusSkipped, summary: summary}
}

// checker evaluates the kind-specific predicates. Either engine may be nil,
// in which case expressions are only checked for presence.
type checker struct {
	conditions *expressions.Conditions
	jq         *expressions.GoJQEngine
	now        func() time.Time
}

func (c checker) check(ctx context.Context, n schema.Node) verdict {
	if !n.Enabled && n.Kind != schema.KindTrigger {
		return skip("Node is disabled")
	}

	switch cfg := n.Config.(type) {
	case schema.TriggerConfig:
		if cfg.TriggerType == "schedule" {
			if err := validation.ValidateSchedule(cfg.Schedule); err != nil {
				return fail("%s", message(err))
			}
			if c.now != nil {
				if next, err := validation.NextRun(cfg.Schedule, c.now()); err == nil {
					return pass("Scheduled trigger %q, next run at %s", cfg.Schedule, next.Format(time.RFC3339))
				}
			}
			return pass("Scheduled trigger %q", cfg.Schedule)
		}
		return pass("Trigger type %s", orDefault(cfg.TriggerType, "manual"))

	case schema.ActionConfig:
		if blank(cfg.ActionType) {
			return fail("Action type is required")
		}
		return pass("Would run action %q", cfg.ActionType)

	case schema.ActivityConfig:
		if blank(cfg.ActivityName) {
			return fail("Activity name is required")
		}
		return pass("Would call activity %q", cfg.ActivityName)

	case schema.ApprovalConfig:
		if len(cfg.Approvers) == 0 {
			return fail("At least one approver is required")
		}
		return pass("Would wait for %d approver(s)", len(cfg.Approvers))

	case schema.TimerConfig:
		if cfg.Duration <= 0 {
			return fail("Timer duration must be greater than 0")
		}
		return pass("Would wait %s", cfg.Value())

	case schema.IfElseConfig:
		return c.condition(cfg.Condition, cfg.Language, 1)
	case schema.WhileConfig:
		return c.condition(cfg.Condition, cfg.Language, cfg.MaxIterations)
	case schema.LoopUntilConfig:
		return c.condition(cfg.Condition, cfg.Language, cfg.MaxIterations)

	case schema.SetStateConfig:
		if blank(cfg.Key) {
			return fail("State key is required")
		}
		return pass("Would set state %q", cfg.Key)

	case schema.TransformConfig:
		return c.transform(ctx, cfg)

	case schema.PublishEventConfig:
		if blank(cfg.EventName) {
			return fail("Event name is required")
		}
		return pass("Would publish event %q", cfg.EventName)

	case schema.SubWorkflowConfig:
		if blank(cfg.WorkflowID) {
			return fail("Sub-workflow reference is required")
		}
		return pass("Would start workflow %q", cfg.WorkflowID)

	case schema.NoteConfig, schema.GroupConfig:
		return skip("Not executable")

	case schema.PlaceholderConfig:
		return fail("Placeholder must be replaced with a step")
	}

	return pass("No checks for node type %q", n.Kind)
}

func (c checker) condition(expr, language string, maxIterations int) verdict {
	if blank(expr) {
		return fail("Condition expression is required")
	}
	if c.conditions != nil {
		if err := c.conditions.Check(language, expr); err != nil {
			return fail("Condition expression is invalid: %s", message(err))
		}
	}
	if maxIterations <= 0 {
		return fail("Max iterations must be greater than 0")
	}
	return pass("Condition is valid (%s)", orDefault(language, expressions.LanguageCEL))
}

// transform checks the jq expression and, when sample input is configured,
// runs it to preview the output. References evaluate to null.
func (c checker) transform(ctx context.Context, cfg schema.TransformConfig) verdict {
	if blank(cfg.Expression) {
		return fail("Transform expression is required")
	}
	if c.jq == nil {
		return pass("Transform expression is set")
	}
	if err := c.jq.Check(cfg.Expression); err != nil {
		return fail("Transform expression is invalid: %s", message(err))
	}
	if blank(cfg.Input) {
		return pass("Transform expression is valid")
	}

	nullRefs := func(expressions.Reference) string { return "null" }
	var input any
	if err := json.Unmarshal([]byte(expressions.ReplaceReferences(cfg.Input, nullRefs)), &input); err != nil {
		return fail("Transform input is not valid JSON: %v", err)
	}
	out, err := c.jq.Evaluate(ctx, expressions.ReplaceReferences(cfg.Expression, nullRefs), input)
	if err != nil {
		return fail("Transform failed: %s", message(err))
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fail("Transform output is not JSON: %v", err)
	}
	v := pass("Transform produced output")
	v.output = raw
	return v
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// message strips the error code prefix from structured errors.
func message(err error) string {
	var e *schema.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
