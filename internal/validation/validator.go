// Package validation checks parsed intents against live scene state,
// granted permissions, and enabled capability flags before any tool runs.
// Errors block execution; warnings and suggestions are advisory and only
// adjust the result confidence.
package validation

import (
	"fmt"
	"strings"

	"scenepilot/internal/config"
	"scenepilot/internal/logging"
	"scenepilot/internal/matcher"
	"scenepilot/internal/registry"
	"scenepilot/internal/types"
)

var zoomDirections = map[string]bool{"in": true, "out": true}

var rotateDirections = map[string]bool{
	"left": true, "right": true, "clockwise": true, "counterclockwise": true,
}

const maxZoomFactor = 100.0

// Validator validates intents against one registry and configuration.
type Validator struct {
	reg *registry.Registry
	m   *matcher.Matcher
	cfg *config.Config
}

// New creates a validator. The matcher must be built over the same
// registry so did-you-mean suggestions reflect what is registered.
func New(reg *registry.Registry, m *matcher.Matcher, cfg *config.Config) *Validator {
	return &Validator{reg: reg, m: m, cfg: cfg}
}

// Validate checks every intent in a parsed command and merges the
// outcomes. The confidence starts from the primary intent's score and is
// adjusted by the error/warning/suggestion multipliers.
func (v *Validator) Validate(parsed *types.ParsedIntent) *types.ValidationResult {
	merged := &types.ValidationResult{}
	for _, intent := range parsed.All() {
		one := v.ValidateIntent(&intent)
		merged.Errors = append(merged.Errors, one.Errors...)
		merged.Warnings = append(merged.Warnings, one.Warnings...)
		merged.Suggestions = append(merged.Suggestions, one.Suggestions...)
		merged.Alternatives = append(merged.Alternatives, one.Alternatives...)
	}

	merged.Confidence = v.adjustConfidence(parsed.Primary.Confidence, merged)
	merged.IsValid = len(merged.Errors) == 0

	logging.ValidationDebug("validated %s: valid=%v errors=%d warnings=%d conf=%.2f",
		parsed.Primary.Type, merged.IsValid, len(merged.Errors), len(merged.Warnings), merged.Confidence)
	return merged
}

// ValidateIntent checks a single intent: the type-specific check first,
// then permission, capability, and scene-boundary checks.
func (v *Validator) ValidateIntent(intent *types.Intent) *types.ValidationResult {
	result := &types.ValidationResult{}

	switch intent.Type {
	case types.IntentLayerShow, types.IntentLayerHide:
		v.checkLayerRef(intent.StringParam("layerName"), intent.Type, result)
	case types.IntentLayerShowOnly:
		names := intent.StringListParam("layerNames")
		if len(names) == 0 {
			result.Errors = append(result.Errors, "show-only requires at least one layer name")
			result.Suggestions = append(result.Suggestions,
				`Name the layers to keep, e.g. "show only Architecture and Structural"`)
		}
		for _, name := range names {
			v.checkLayerRef(name, intent.Type, result)
		}
	case types.IntentCameraFly:
		v.checkFlyTarget(intent.StringParam("target"), result)
	case types.IntentCameraZoom:
		v.checkZoom(intent, result)
	case types.IntentCameraRotate:
		v.checkRotate(intent, result)
	case types.IntentFeatureShow:
		v.checkFeatureTarget(intent.StringParam("target"), result)
	}

	v.checkAccess(intent.Type, result)

	result.Confidence = v.adjustConfidence(intent.Confidence, result)
	result.IsValid = len(result.Errors) == 0
	return result
}

// checkLayerRef verifies a layer reference resolves by exact name or
// alias, attaching did-you-mean alternatives when it does not.
func (v *Validator) checkLayerRef(name string, t types.IntentType, result *types.ValidationResult) {
	if name == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("%s requires a layer name", t))
		return
	}
	if v.m.HasExact(name) {
		v.visibilityHint(name, t, result)
		return
	}

	result.Errors = append(result.Errors, fmt.Sprintf("Layer %q not found", name))
	for _, candidate := range v.m.Suggestions(name, 3) {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf("Did you mean %q?", candidate))
		result.Alternatives = append(result.Alternatives, rewriteCommand(t, candidate))
	}
	result.Suggestions = append(result.Suggestions, `Try "list layers" to see available layers`)
}

// visibilityHint adds an advisory note when the requested state already
// holds.
func (v *Validator) visibilityHint(name string, t types.IntentType, result *types.ValidationResult) {
	for _, e := range v.reg.FindByName(name) {
		switch {
		case t == types.IntentLayerShow && e.Visible:
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("Layer %q is already visible", e.Name))
		case t == types.IntentLayerHide && !e.Visible:
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("Layer %q is already hidden", e.Name))
		}
	}
}

func (v *Validator) checkFlyTarget(target string, result *types.ValidationResult) {
	if target == "" {
		result.Errors = append(result.Errors, "fly-to requires a destination")
		return
	}
	matched := v.m.Resolve(target)
	if len(matched) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("Destination %q not found", target))
		for _, candidate := range v.m.Suggestions(target, 3) {
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("Did you mean %q?", candidate))
			result.Alternatives = append(result.Alternatives, "fly to "+candidate)
		}
		return
	}

	scene := v.cfg.Scene
	for _, e := range matched {
		c := e.Center
		if c.Latitude > scene.North || c.Latitude < scene.South ||
			c.Longitude > scene.East || c.Longitude < scene.West {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Destination %q lies outside the scene bounds", e.Name))
			continue
		}
		if v.nearEdge(c) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Destination %q is close to the scene edge", e.Name))
		}
	}
}

func (v *Validator) checkZoom(intent *types.Intent, result *types.ValidationResult) {
	if dir := intent.StringParam("direction"); dir != "" && !zoomDirections[dir] {
		result.Errors = append(result.Errors, fmt.Sprintf("Unknown zoom direction %q", dir))
	}
	factor := intent.FloatParam("factor", 2)
	if factor <= 0 || factor > maxZoomFactor {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Zoom factor %.1f out of range (0, %.0f]", factor, maxZoomFactor))
	}
}

func (v *Validator) checkRotate(intent *types.Intent, result *types.ValidationResult) {
	if dir := intent.StringParam("direction"); dir != "" && !rotateDirections[dir] {
		result.Errors = append(result.Errors, fmt.Sprintf("Unknown rotate direction %q", dir))
	}
	degrees := intent.FloatParam("degrees", 90)
	if degrees <= 0 || degrees > 360 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Rotation of %.1f degrees out of range (0, 360]", degrees))
	}
}

func (v *Validator) checkFeatureTarget(target string, result *types.ValidationResult) {
	if target == "" {
		result.Errors = append(result.Errors, "highlight requires a target")
		return
	}
	if len(v.m.Resolve(target)) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("Feature %q not found", target))
		for _, candidate := range v.m.Suggestions(target, 3) {
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("Did you mean %q?", candidate))
		}
	}
}

// checkAccess runs the permission and capability checks shared by every
// intent type. Both derive from the intent-type prefix.
func (v *Validator) checkAccess(t types.IntentType, result *types.ValidationResult) {
	prefix := t.Prefix()
	if prefix == "" {
		result.Errors = append(result.Errors, "cannot validate an unrecognized command")
		return
	}

	required := prefix + "_control"
	if !v.cfg.HasPermission(required) {
		result.Errors = append(result.Errors, fmt.Sprintf("Permission %q not granted", required))
	}
	if !v.cfg.HasCapability(required) {
		result.Errors = append(result.Errors, fmt.Sprintf("Capability %q is disabled", required))
	}
}

// nearEdge reports whether a point is within the configured margin of the
// scene envelope.
func (v *Validator) nearEdge(p types.Point) bool {
	scene := v.cfg.Scene
	margin := scene.EdgeMarginDegrees
	if margin <= 0 {
		return false
	}
	return scene.North-p.Latitude < margin ||
		p.Latitude-scene.South < margin ||
		scene.East-p.Longitude < margin ||
		p.Longitude-scene.West < margin
}

// adjustConfidence applies the outcome multipliers: x0.5 with any error,
// x0.8 with any warning, x1.1 (capped at 1.0) when suggestions exist and
// no errors do.
func (v *Validator) adjustConfidence(base float64, result *types.ValidationResult) float64 {
	conf := base
	tuning := v.cfg.Tuning
	if len(result.Errors) > 0 {
		conf *= tuning.ErrorMultiplier
	}
	if len(result.Warnings) > 0 {
		conf *= tuning.WarningMultiplier
	}
	if len(result.Suggestions) > 0 && len(result.Errors) == 0 {
		conf *= tuning.SuggestionBoost
		if conf > 1.0 {
			conf = 1.0
		}
	}
	return conf
}

// rewriteCommand renders an executable replacement command for a
// did-you-mean candidate.
func rewriteCommand(t types.IntentType, name string) string {
	switch t {
	case types.IntentLayerShow:
		return "show " + name
	case types.IntentLayerHide:
		return "hide " + name
	case types.IntentLayerShowOnly:
		return "show only " + name
	default:
		return strings.TrimSpace("show " + name)
	}
}
