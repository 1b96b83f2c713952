package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeConfig is the per-kind configuration of a node. Each built-in kind has
// its own struct; unknown kinds carry an OpaqueConfig.
//
// Config values are treated as immutable once attached to a node: edits build
// a new value instead of writing through maps held by an existing one.
type NodeConfig interface {
	isNodeConfig()
}

// TriggerConfig configures the single entry node of a workflow.
type TriggerConfig struct {
	TriggerType string `json:"triggerType"` // manual | schedule | webhook | event
	Schedule    string `json:"schedule,omitempty"`
	EventName   string `json:"eventName,omitempty"`
}

// ActionConfig configures a generic action step.
type ActionConfig struct {
	ActionType string         `json:"actionType"`
	Params     map[string]any `json:"params,omitempty"`
}

// ActivityConfig configures a durable activity invocation.
type ActivityConfig struct {
	ActivityName   string         `json:"activityName"`
	Input          map[string]any `json:"input,omitempty"`
	TimeoutSeconds int            `json:"timeoutSeconds,omitempty"`
	RetryAttempts  int            `json:"retryAttempts,omitempty"`
}

// ApprovalConfig configures a human approval gate.
type ApprovalConfig struct {
	Approvers      []string `json:"approvers,omitempty"`
	Message        string   `json:"message,omitempty"`
	TimeoutSeconds int      `json:"timeoutSeconds,omitempty"`
}

// TimerConfig configures a fixed delay.
type TimerConfig struct {
	Duration float64 `json:"duration"`
	Unit     string  `json:"unit"` // seconds | minutes | hours | days
}

// Value converts the configured duration into a time.Duration.
func (c TimerConfig) Value() time.Duration {
	unit := time.Second
	switch c.Unit {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	}
	return time.Duration(c.Duration * float64(unit))
}

// LoopUntilConfig repeats its body until the condition holds.
type LoopUntilConfig struct {
	Condition     string `json:"condition"`
	Language      string `json:"language,omitempty"` // cel (default) | expr
	MaxIterations int    `json:"maxIterations"`
}

// WhileConfig repeats its body while the condition holds.
type WhileConfig struct {
	Condition     string `json:"condition"`
	Language      string `json:"language,omitempty"`
	MaxIterations int    `json:"maxIterations"`
}

// IfElseConfig branches on a condition.
type IfElseConfig struct {
	Condition string `json:"condition"`
	Language  string `json:"language,omitempty"`
}

// NoteConfig is a free-text annotation; never executed.
type NoteConfig struct {
	Text  string `json:"text,omitempty"`
	Color string `json:"color,omitempty"`
}

// SetStateConfig writes a value into workflow state.
type SetStateConfig struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// TransformConfig reshapes data with a jq expression.
type TransformConfig struct {
	Expression string `json:"expression"`
	Input      string `json:"input,omitempty"`
}

// PublishEventConfig emits a named event.
type PublishEventConfig struct {
	EventName string         `json:"eventName"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// SubWorkflowConfig starts another workflow.
type SubWorkflowConfig struct {
	WorkflowID        string         `json:"workflowId"`
	Input             map[string]any `json:"input,omitempty"`
	WaitForCompletion bool           `json:"waitForCompletion,omitempty"`
}

// GroupConfig configures a container node.
type GroupConfig struct {
	Title     string `json:"title,omitempty"`
	Collapsed bool   `json:"collapsed,omitempty"`
}

// PlaceholderConfig is the empty config of an "add step" placeholder.
type PlaceholderConfig struct{}

// OpaqueConfig holds the raw config of a kind this build does not know.
type OpaqueConfig struct {
	Values map[string]any
}

func (TriggerConfig) isNodeConfig()      {}
func (ActionConfig) isNodeConfig()       {}
func (ActivityConfig) isNodeConfig()     {}
func (ApprovalConfig) isNodeConfig()     {}
func (TimerConfig) isNodeConfig()        {}
func (LoopUntilConfig) isNodeConfig()    {}
func (WhileConfig) isNodeConfig()        {}
func (IfElseConfig) isNodeConfig()       {}
func (NoteConfig) isNodeConfig()         {}
func (SetStateConfig) isNodeConfig()     {}
func (TransformConfig) isNodeConfig()    {}
func (PublishEventConfig) isNodeConfig() {}
func (SubWorkflowConfig) isNodeConfig()  {}
func (GroupConfig) isNodeConfig()        {}
func (PlaceholderConfig) isNodeConfig()  {}
func (OpaqueConfig) isNodeConfig()       {}

// ConfigToMap flattens a config into a plain JSON-compatible map.
// A nil config yields a nil map.
func ConfigToMap(cfg NodeConfig) (map[string]any, error) {
	switch c := cfg.(type) {
	case nil:
		return nil, nil
	case OpaqueConfig:
		m, _ := CloneValue(c.Values).(map[string]any)
		return m, nil
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ConfigFromMap decodes a plain map into the config variant for kind.
// Unknown kinds keep the map verbatim in an OpaqueConfig.
func ConfigFromMap(kind NodeKind, m map[string]any) (NodeConfig, error) {
	if !kind.Known() {
		values, _ := CloneValue(m).(map[string]any)
		return OpaqueConfig{Values: values}, nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindTrigger:
		return decodeConfig[TriggerConfig](data)
	case KindAction:
		return decodeConfig[ActionConfig](data)
	case KindActivity:
		return decodeConfig[ActivityConfig](data)
	case KindApprovalGate:
		return decodeConfig[ApprovalConfig](data)
	case KindTimer:
		return decodeConfig[TimerConfig](data)
	case KindLoopUntil:
		return decodeConfig[LoopUntilConfig](data)
	case KindWhile:
		return decodeConfig[WhileConfig](data)
	case KindIfElse:
		return decodeConfig[IfElseConfig](data)
	case KindNote:
		return decodeConfig[NoteConfig](data)
	case KindSetState:
		return decodeConfig[SetStateConfig](data)
	case KindTransform:
		return decodeConfig[TransformConfig](data)
	case KindPublishEvent:
		return decodeConfig[PublishEventConfig](data)
	case KindSubWorkflow:
		return decodeConfig[SubWorkflowConfig](data)
	case KindGroup:
		return decodeConfig[GroupConfig](data)
	case KindPlaceholder:
		return PlaceholderConfig{}, nil
	}
	return nil, fmt.Errorf("no config variant for kind %q", kind)
}

func decodeConfig[T NodeConfig](data []byte) (NodeConfig, error) {
	var cfg T
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CloneValue deep-copies maps and slices of a JSON-like value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = CloneValue(val)
		}
		return out
	case []any:
		if t == nil {
			return []any(nil)
		}
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = CloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
