// Package tools defines the tool contract consumed by the orchestrator and
// the agent pipeline, plus the three canonical scene tools (layerControl,
// cameraControl, featureControl).
//
// Tool results are plain strings. Business failures ("Layer not found") come
// back as human-readable result strings, never as Go errors; the error
// return is reserved for transport-level problems, so callers do not wrap
// individual tool calls in recovery logic.
package tools

import (
	"context"
)

// ToolCategory classifies tools for intent-prefix dispatch.
type ToolCategory string

const (
	// CategoryLayer covers layer visibility and opacity operations.
	CategoryLayer ToolCategory = "/layer"

	// CategoryCamera covers camera navigation operations.
	CategoryCamera ToolCategory = "/camera"

	// CategoryFeature covers feature selection and highlighting.
	CategoryFeature ToolCategory = "/feature"

	// CategoryGeneral is for tools usable by any intent.
	CategoryGeneral ToolCategory = "/general"
)

// CategoryForPrefix maps an intent-type prefix ("layer", "camera",
// "feature") to its tool category. Unknown prefixes map to "".
func CategoryForPrefix(prefix string) ToolCategory {
	switch prefix {
	case "layer":
		return CategoryLayer
	case "camera":
		return CategoryCamera
	case "feature":
		return CategoryFeature
	default:
		return ""
	}
}

// Property describes a single parameter for the tool catalogue.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolSchema defines the expected arguments of a tool.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution. The returned string is
// the user-visible outcome, success or business failure alike.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one registered capability.
type Tool struct {
	// Name is the unique identifier, referenced by agent tool-call tokens.
	Name string

	// Description is shown in the agent tool catalogue.
	Description string

	// Category classifies the tool for intent-prefix dispatch.
	Category ToolCategory

	// Capability is the flag that must be enabled for agents to see this
	// tool in their catalogue (e.g. "layer_control").
	Capability string

	// Execute runs the tool.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority breaks ties when multiple tools share a category (default 50).
	Priority int
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps one execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool ran.
	ToolName string

	// Result is the string output, including business failures.
	Result string

	// Error is set only for transport-level failures.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess reports whether execution completed without a transport error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
