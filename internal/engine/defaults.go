package engine

import "github.com/rendis/canvasflow/pkg/schema"

// GroupPadding is the margin added around the selection when grouping.
const GroupPadding = 24.0

// DefaultConfig returns a fresh default config for kind.
func DefaultConfig(kind schema.NodeKind) schema.NodeConfig {
	switch kind {
	case schema.KindTrigger:
		return schema.TriggerConfig{TriggerType: "manual"}
	case schema.KindAction:
		return schema.ActionConfig{}
	case schema.KindActivity:
		return schema.ActivityConfig{TimeoutSeconds: 300, RetryAttempts: 3}
	case schema.KindApprovalGate:
		return schema.ApprovalConfig{TimeoutSeconds: 86400}
	case schema.KindTimer:
		return schema.TimerConfig{Duration: 1, Unit: "minutes"}
	case schema.KindLoopUntil:
		return schema.LoopUntilConfig{MaxIterations: 10}
	case schema.KindWhile:
		return schema.WhileConfig{MaxIterations: 10}
	case schema.KindIfElse:
		return schema.IfElseConfig{}
	case schema.KindNote:
		return schema.NoteConfig{Color: "yellow"}
	case schema.KindSetState:
		return schema.SetStateConfig{}
	case schema.KindTransform:
		return schema.TransformConfig{}
	case schema.KindPublishEvent:
		return schema.PublishEventConfig{}
	case schema.KindSubWorkflow:
		return schema.SubWorkflowConfig{WaitForCompletion: true}
	case schema.KindGroup:
		return schema.GroupConfig{}
	case schema.KindPlaceholder:
		return schema.PlaceholderConfig{}
	}
	return schema.OpaqueConfig{Values: map[string]any{}}
}

var defaultLabels = map[schema.NodeKind]string{
	schema.KindTrigger:      "Trigger",
	schema.KindAction:       "Action",
	schema.KindActivity:     "Activity",
	schema.KindApprovalGate: "Approval",
	schema.KindTimer:        "Timer",
	schema.KindLoopUntil:    "Loop Until",
	schema.KindWhile:        "While",
	schema.KindIfElse:       "If / Else",
	schema.KindNote:         "Note",
	schema.KindSetState:     "Set State",
	schema.KindTransform:    "Transform",
	schema.KindPublishEvent: "Publish Event",
	schema.KindSubWorkflow:  "Sub-workflow",
	schema.KindGroup:        "Group",
	schema.KindPlaceholder:  "Add step",
}

// DefaultLabel returns the label a freshly inserted node of kind receives.
func DefaultLabel(kind schema.NodeKind) string {
	if l, ok := defaultLabels[kind]; ok {
		return l
	}
	return string(kind)
}

// canHaveParent reports whether nodes of kind may live inside a group.
func canHaveParent(kind schema.NodeKind) bool {
	switch kind {
	case schema.KindTrigger, schema.KindGroup, schema.KindPlaceholder:
		return false
	}
	return true
}
