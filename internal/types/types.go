// Package types provides shared type definitions used across ScenePilot packages.
// This package exists to break import cycles between core, agents, and session.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"strings"
	"time"
)

// =============================================================================
// SCENE ENTITIES
// =============================================================================

// Entity type tags. The registry indexes entities by these values.
const (
	TypeLayer   = "layer"
	TypeFeature = "feature"
)

// BoundingBox is an axis-aligned spatial envelope in degrees/meters.
// Invariant: min <= max on every axis.
type BoundingBox struct {
	North     float64 `json:"north"`
	South     float64 `json:"south"`
	East      float64 `json:"east"`
	West      float64 `json:"west"`
	MinHeight float64 `json:"min_height"`
	MaxHeight float64 `json:"max_height"`
}

// Valid reports whether the box satisfies min <= max on every axis.
func (b BoundingBox) Valid() bool {
	return b.South <= b.North && b.West <= b.East && b.MinHeight <= b.MaxHeight
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Point {
	return Point{
		Longitude: (b.West + b.East) / 2,
		Latitude:  (b.South + b.North) / 2,
		Height:    (b.MinHeight + b.MaxHeight) / 2,
	}
}

// Contains reports whether inner nests fully within b on all six bounds.
func (b BoundingBox) Contains(inner BoundingBox) bool {
	return inner.South >= b.South && inner.North <= b.North &&
		inner.West >= b.West && inner.East <= b.East &&
		inner.MinHeight >= b.MinHeight && inner.MaxHeight <= b.MaxHeight
}

// OverlapsHorizontally reports whether two boxes overlap in the lon/lat plane.
func (b BoundingBox) OverlapsHorizontally(other BoundingBox) bool {
	return b.West <= other.East && other.West <= b.East &&
		b.South <= other.North && other.South <= b.North
}

// Point is a geographic position (degrees, meters).
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Height    float64 `json:"height"`
}

// Semantics holds the non-spatial description of an entity.
type Semantics struct {
	Category    string         `json:"category,omitempty"`
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// Entity is an addressable scene object (a layer or a feature).
// Aliases always include the display name; the registry enforces this
// on registration.
type Entity struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Aliases   []string    `json:"aliases,omitempty"`
	Bounds    BoundingBox `json:"bounds"`
	Center    Point       `json:"center"`
	Semantics Semantics   `json:"semantics"`

	// SourceRef points at the renderable object owned by the scene engine.
	SourceRef string `json:"source_ref,omitempty"`

	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAlias reports whether name matches the entity's name or any alias,
// case-insensitively.
func (e *Entity) HasAlias(name string) bool {
	folded := strings.ToLower(strings.TrimSpace(name))
	if strings.ToLower(e.Name) == folded {
		return true
	}
	for _, a := range e.Aliases {
		if strings.ToLower(a) == folded {
			return true
		}
	}
	return false
}

// =============================================================================
// INTENTS
// =============================================================================

// IntentType identifies one action in the closed command vocabulary.
type IntentType string

const (
	IntentLayerShow     IntentType = "layer_show"
	IntentLayerHide     IntentType = "layer_hide"
	IntentLayerShowOnly IntentType = "layer_show_only"
	IntentLayerShowAll  IntentType = "layer_show_all"
	IntentLayerHideAll  IntentType = "layer_hide_all"
	IntentCameraFly     IntentType = "camera_fly"
	IntentCameraZoom    IntentType = "camera_zoom"
	IntentCameraRotate  IntentType = "camera_rotate"
	IntentCameraReset   IntentType = "camera_reset"
	IntentFeatureShow   IntentType = "feature_highlight"
	IntentFeatureClear  IntentType = "feature_clear"
	IntentUnknown       IntentType = "unknown"
)

// Prefix returns the component prefix ("layer", "camera", "feature") used
// for tool dispatch and permission lookup. Unknown intents return "".
func (t IntentType) Prefix() string {
	s := string(t)
	if t == IntentUnknown {
		return ""
	}
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return ""
}

// IntentMetadata carries optional provenance for an intent.
type IntentMetadata struct {
	Source    string    `json:"source,omitempty"` // "parser", "agent"
	Timestamp time.Time `json:"timestamp,omitempty"`
	Context   string    `json:"context,omitempty"`
}

// Intent is a classified, parameterized representation of a user command.
// Params keys vary per type: layerName, layerNames, target, direction,
// factor, degrees.
type Intent struct {
	Type       IntentType      `json:"type"`
	Confidence float64         `json:"confidence"`
	Params     map[string]any  `json:"params,omitempty"`
	Metadata   *IntentMetadata `json:"metadata,omitempty"`
}

// StringParam returns a string parameter, or "" when absent or mistyped.
func (i *Intent) StringParam(key string) string {
	if i.Params == nil {
		return ""
	}
	if v, ok := i.Params[key].(string); ok {
		return v
	}
	return ""
}

// StringListParam returns a []string parameter, tolerating []any payloads
// from JSON decoding.
func (i *Intent) StringListParam(key string) []string {
	if i.Params == nil {
		return nil
	}
	switch v := i.Params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FloatParam returns a numeric parameter, or def when absent.
func (i *Intent) FloatParam(key string, def float64) float64 {
	if i.Params == nil {
		return def
	}
	switch v := i.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// ParsedIntent wraps one primary intent plus any secondary intents produced
// by compound phrasing, together with the parser's validation summary.
type ParsedIntent struct {
	Primary     Intent   `json:"primary"`
	Secondary   []Intent `json:"secondary,omitempty"`
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// All returns the primary intent followed by the secondary intents.
func (p *ParsedIntent) All() []Intent {
	out := make([]Intent, 0, 1+len(p.Secondary))
	out = append(out, p.Primary)
	out = append(out, p.Secondary...)
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationResult captures the outcome of checking an intent against live
// scene state, permissions, and capability flags.
type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors,omitempty"`      // blocking
	Warnings    []string `json:"warnings,omitempty"`    // non-blocking
	Suggestions []string `json:"suggestions,omitempty"` // advisory
	Confidence  float64  `json:"confidence"`

	// Alternatives lists replacement command strings when the intent as
	// given cannot execute.
	Alternatives []string `json:"alternatives,omitempty"`
}

// =============================================================================
// DIALOG & SESSION STATE
// =============================================================================

// DialogTurn records a single request/response exchange.
// Turns are append-only within a session and pruned by size, never edited.
type DialogTurn struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	Input           string         `json:"input"`
	Intent          *Intent        `json:"intent,omitempty"`
	MatchedEntities []string       `json:"matched_entities,omitempty"`
	Response        string         `json:"response"`
	Success         bool           `json:"success"`
	LatencyMs       int64          `json:"latency_ms"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// CameraPose is the full camera state of the scene engine.
type CameraPose struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Height    float64 `json:"height"`
	Heading   float64 `json:"heading"`
	Pitch     float64 `json:"pitch"`
	Roll      float64 `json:"roll"`
}

// SceneState is the session's snapshot of the live scene. It is replaced
// wholesale on update, not merged per field.
type SceneState struct {
	ViewMode         string         `json:"view_mode,omitempty"` // "3d", "2d", "columbus"
	Camera           CameraPose     `json:"camera"`
	ActiveLayers     []string       `json:"active_layers,omitempty"`
	SelectedEntities []string       `json:"selected_entities,omitempty"`
	LayerCount       int            `json:"layer_count"`
	VisibleLayers    int            `json:"visible_layers"`
	FeatureCount     int            `json:"feature_count"`
	CountsByType     map[string]int `json:"counts_by_type,omitempty"`
	CountsByCategory map[string]int `json:"counts_by_category,omitempty"`

	// Small literal samples used verbatim for prompt grounding.
	LayerSamples   []string  `json:"layer_samples,omitempty"`
	FeatureSamples []string  `json:"feature_samples,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// QueryRecord is one retrieval query and its outcome.
type QueryRecord struct {
	Query     string    `json:"query"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// RetrievalContext is the session memory tracking which equipment and
// maintenance topics are currently in focus for follow-up queries.
type RetrievalContext struct {
	LastQuery          string        `json:"last_query,omitempty"`
	LastResult         string        `json:"last_result,omitempty"`
	RelevantEquipment  []string      `json:"relevant_equipment,omitempty"`
	EquipmentFocus     string        `json:"equipment_focus,omitempty"`
	MaintenanceContext string        `json:"maintenance_context,omitempty"`
	QueryRecords       []QueryRecord `json:"query_records,omitempty"`
}

// =============================================================================
// EXECUTION RESULTS
// =============================================================================

// ExecuteResult is the structured outcome of one command. Raw errors never
// reach the caller; failures land here as Success=false with a message.
type ExecuteResult struct {
	Success         bool     `json:"success"`
	Output          string   `json:"output"`
	Intent          *Intent  `json:"intent,omitempty"`
	MatchedEntities []string `json:"matched_entities,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`

	// ClarificationQuestions is populated when the clarification agent
	// decided the input was too ambiguous to execute.
	ClarificationQuestions []string `json:"clarification_questions,omitempty"`

	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}
