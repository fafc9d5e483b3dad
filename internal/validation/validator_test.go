package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenepilot/internal/config"
	"scenepilot/internal/matcher"
	"scenepilot/internal/registry"
	"scenepilot/internal/types"
)

func newTestValidator(t *testing.T, mutate func(*config.Config)) (*Validator, *registry.Registry) {
	t.Helper()
	reg := registry.New()

	layers := []struct {
		id, name string
		visible  bool
	}{
		{"architecture", "Architecture", true},
		{"structural", "Structural", false},
		{"site", "Site", true},
	}
	for _, l := range layers {
		require.NoError(t, reg.Register(&types.Entity{
			ID:      l.id,
			Name:    l.name,
			Type:    types.TypeLayer,
			Bounds:  types.BoundingBox{North: 52.53, South: 52.52, East: 13.41, West: 13.40, MaxHeight: 50},
			Center:  types.Point{Longitude: 13.405, Latitude: 52.525},
			Visible: l.visible,
		}))
	}

	cfg := config.DefaultConfig()
	cfg.Scene = config.SceneConfig{
		North: 53, South: 52, East: 14, West: 13,
		EdgeMarginDegrees: 0.01,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(reg, matcher.New(reg), cfg), reg
}

func layerIntent(t types.IntentType, name string, conf float64) *types.ParsedIntent {
	return &types.ParsedIntent{
		Primary: types.Intent{
			Type:       t,
			Confidence: conf,
			Params:     map[string]any{"layerName": name},
		},
	}
}

func TestValidateKnownLayer(t *testing.T) {
	v, _ := newTestValidator(t, nil)

	result := v.Validate(layerIntent(types.IntentLayerHide, "Architecture", 1.0))

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
}

func TestValidateMissingLayer(t *testing.T) {
	v, _ := newTestValidator(t, nil)

	result := v.Validate(layerIntent(types.IntentLayerHide, "Foo", 1.0))

	assert.False(t, result.IsValid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, `Layer "Foo" not found`, result.Errors[0])
	assert.Contains(t, result.Suggestions, `Try "list layers" to see available layers`)

	// One error halves the confidence.
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
}

func TestValidateMisspelledLayerSuggestsAlternative(t *testing.T) {
	v, _ := newTestValidator(t, nil)

	result := v.Validate(layerIntent(types.IntentLayerShow, "Architectur", 1.0))

	assert.False(t, result.IsValid)
	assert.Contains(t, result.Suggestions, `Did you mean "Architecture"?`)
	assert.Contains(t, result.Alternatives, "show Architecture")
}

func TestValidateShowOnlyEmptyList(t *testing.T) {
	v, _ := newTestValidator(t, nil)

	result := v.Validate(&types.ParsedIntent{
		Primary: types.Intent{
			Type:       types.IntentLayerShowOnly,
			Confidence: 0.9,
			Params:     map[string]any{"layerNames": []string{}},
		},
	})

	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateSuggestionBoostCapped(t *testing.T) {
	v, _ := newTestValidator(t, nil)

	// Showing an already-visible layer yields a suggestion, no errors.
	result := v.Validate(layerIntent(types.IntentLayerShow, "Architecture", 1.0))

	assert.True(t, result.IsValid)
	require.NotEmpty(t, result.Suggestions)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)

	// Below the cap the boost is applied as-is.
	low := v.Validate(layerIntent(types.IntentLayerShow, "Architecture", 0.6))
	assert.InDelta(t, 0.66, low.Confidence, 1e-9)
}

func TestValidateFlyTargetEdgeWarning(t *testing.T) {
	v, reg := newTestValidator(t, nil)
	require.NoError(t, reg.Register(&types.Entity{
		ID:      "gate",
		Name:    "North Gate",
		Type:    types.TypeFeature,
		Bounds:  types.BoundingBox{North: 52.9999, South: 52.9998, East: 13.5, West: 13.49, MaxHeight: 5},
		Center:  types.Point{Longitude: 13.495, Latitude: 52.9995},
		Visible: true,
	}))

	result := v.Validate(&types.ParsedIntent{
		Primary: types.Intent{
			Type:       types.IntentCameraFly,
			Confidence: 1.0,
			Params:     map[string]any{"target": "North Gate"},
		},
	})

	assert.True(t, result.IsValid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "scene edge")
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestValidateFlyTargetOutOfBounds(t *testing.T) {
	v, reg := newTestValidator(t, nil)
	require.NoError(t, reg.Register(&types.Entity{
		ID:      "remote",
		Name:    "Remote Depot",
		Type:    types.TypeFeature,
		Bounds:  types.BoundingBox{North: 55.01, South: 55.0, East: 14.51, West: 14.5, MaxHeight: 5},
		Center:  types.Point{Longitude: 14.505, Latitude: 55.005},
		Visible: true,
	}))

	result := v.Validate(&types.ParsedIntent{
		Primary: types.Intent{
			Type:       types.IntentCameraFly,
			Confidence: 1.0,
			Params:     map[string]any{"target": "Remote Depot"},
		},
	})

	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "outside the scene bounds")
}

func TestValidateZoomAndRotateSanity(t *testing.T) {
	v, _ := newTestValidator(t, nil)

	tests := []struct {
		name    string
		intent  types.Intent
		wantErr bool
	}{
		{
			name: "valid zoom",
			intent: types.Intent{
				Type: types.IntentCameraZoom, Confidence: 1.0,
				Params: map[string]any{"direction": "in", "factor": 2.0},
			},
		},
		{
			name: "zoom factor out of range",
			intent: types.Intent{
				Type: types.IntentCameraZoom, Confidence: 1.0,
				Params: map[string]any{"direction": "in", "factor": -1.0},
			},
			wantErr: true,
		},
		{
			name: "bad zoom direction",
			intent: types.Intent{
				Type: types.IntentCameraZoom, Confidence: 1.0,
				Params: map[string]any{"direction": "sideways", "factor": 2.0},
			},
			wantErr: true,
		},
		{
			name: "valid rotate",
			intent: types.Intent{
				Type: types.IntentCameraRotate, Confidence: 1.0,
				Params: map[string]any{"direction": "left", "degrees": 45.0},
			},
		},
		{
			name: "rotate degrees out of range",
			intent: types.Intent{
				Type: types.IntentCameraRotate, Confidence: 1.0,
				Params: map[string]any{"direction": "left", "degrees": 720.0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateIntent(&tt.intent)
			assert.Equal(t, !tt.wantErr, result.IsValid, "errors: %v", result.Errors)
		})
	}
}

func TestValidatePermissionDenied(t *testing.T) {
	v, _ := newTestValidator(t, func(cfg *config.Config) {
		cfg.Permissions = []string{"camera_control"}
	})

	result := v.Validate(layerIntent(types.IntentLayerHide, "Architecture", 1.0))

	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], `Permission "layer_control" not granted`)
}

func TestValidateCapabilityDisabled(t *testing.T) {
	v, _ := newTestValidator(t, func(cfg *config.Config) {
		cfg.Capabilities = []string{"layer_control", "camera_control"}
	})

	result := v.Validate(&types.ParsedIntent{
		Primary: types.Intent{
			Type:       types.IntentFeatureClear,
			Confidence: 1.0,
		},
	})

	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], `Capability "feature_control" is disabled`)
}

func TestValidateUnknownIntent(t *testing.T) {
	v, _ := newTestValidator(t, nil)

	result := v.ValidateIntent(&types.Intent{Type: types.IntentUnknown})

	assert.False(t, result.IsValid)
}

func TestValidateCompoundMergesPerIntentErrors(t *testing.T) {
	v, _ := newTestValidator(t, nil)

	result := v.Validate(&types.ParsedIntent{
		Primary: types.Intent{
			Type: types.IntentLayerHide, Confidence: 0.9,
			Params: map[string]any{"layerName": "Site"},
		},
		Secondary: []types.Intent{
			{
				Type: types.IntentLayerShow, Confidence: 0.9,
				Params: map[string]any{"layerName": "Nope"},
			},
		},
	})

	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, fmt.Sprintf("Layer %q not found", "Nope"))
}
