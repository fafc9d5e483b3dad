package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenepilot/internal/types"
)

func newTestParser() *Parser {
	return New(DefaultConfig())
}

func TestParseVocabulary(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name     string
		input    string
		wantType types.IntentType
		check    func(t *testing.T, intent types.Intent)
	}{
		{
			name:     "show layer",
			input:    "show the Site layer",
			wantType: types.IntentLayerShow,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "Site", intent.StringParam("layerName"))
			},
		},
		{
			name:     "hide bare name",
			input:    "hide Terrain",
			wantType: types.IntentLayerHide,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "Terrain", intent.StringParam("layerName"))
			},
		},
		{
			name:     "turn off phrasing",
			input:    "turn off the Site layer",
			wantType: types.IntentLayerHide,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "Site", intent.StringParam("layerName"))
			},
		},
		{
			name:     "show all wins over generic show",
			input:    "show all layers",
			wantType: types.IntentLayerShowAll,
		},
		{
			name:     "hide everything",
			input:    "hide everything",
			wantType: types.IntentLayerHideAll,
		},
		{
			name:     "fly to",
			input:    "fly to Building A",
			wantType: types.IntentCameraFly,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "Building A", intent.StringParam("target"))
			},
		},
		{
			name:     "take me to",
			input:    "take me to the main entrance",
			wantType: types.IntentCameraFly,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "main entrance", intent.StringParam("target"))
			},
		},
		{
			name:     "zoom with factor",
			input:    "zoom out 3x",
			wantType: types.IntentCameraZoom,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "out", intent.StringParam("direction"))
				assert.Equal(t, 3.0, intent.FloatParam("factor", 0))
			},
		},
		{
			name:     "bare zoom defaults",
			input:    "zoom",
			wantType: types.IntentCameraZoom,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "in", intent.StringParam("direction"))
				assert.Equal(t, 2.0, intent.FloatParam("factor", 0))
			},
		},
		{
			name:     "rotate with degrees",
			input:    "rotate left 45 degrees",
			wantType: types.IntentCameraRotate,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "left", intent.StringParam("direction"))
				assert.Equal(t, 45.0, intent.FloatParam("degrees", 0))
			},
		},
		{
			name:     "reset view",
			input:    "reset the view",
			wantType: types.IntentCameraReset,
		},
		{
			name:     "highlight",
			input:    "highlight the main pump",
			wantType: types.IntentFeatureShow,
			check: func(t *testing.T, intent types.Intent) {
				assert.Equal(t, "main pump", intent.StringParam("target"))
			},
		},
		{
			name:     "clear highlights",
			input:    "clear highlights",
			wantType: types.IntentFeatureClear,
		},
		{
			name:     "case insensitive",
			input:    "SHOW ALL",
			wantType: types.IntentLayerShowAll,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := p.Parse(tt.input)
			require.Equal(t, tt.wantType, parsed.Primary.Type)
			assert.True(t, parsed.IsValid, "errors: %v", parsed.Errors)
			assert.Empty(t, parsed.Secondary)
			if tt.check != nil {
				tt.check(t, parsed.Primary)
			}
		})
	}
}

// A show-only layer list contains a conjunction but must not be split into
// two commands; the conjunction belongs to the parameter grammar.
func TestParseShowOnlyStaysSingle(t *testing.T) {
	p := newTestParser()

	parsed := p.Parse("show only the Architecture and Structural layers")

	require.Equal(t, types.IntentLayerShowOnly, parsed.Primary.Type)
	assert.Empty(t, parsed.Secondary)
	assert.True(t, parsed.IsValid, "errors: %v", parsed.Errors)
	assert.Equal(t, []string{"Architecture", "Structural"}, parsed.Primary.StringListParam("layerNames"))

	// Full match of a compound-flagged type: (0.8 + 0.2) * 0.9.
	assert.InDelta(t, 0.9, parsed.Primary.Confidence, 1e-9)
}

// The generic show pattern also full-matches "show only ..." inputs;
// the specific set must win on set order.
func TestParseShowOnlyBeatsGenericShow(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		input string
		want  []string
	}{
		{"show only Architecture and Structural", []string{"Architecture", "Structural"}},
		{"only show Architecture", []string{"Architecture"}},
		{"isolate the Site layer", []string{"Site"}},
	}
	for _, tt := range tests {
		parsed := p.Parse(tt.input)
		require.Equal(t, types.IntentLayerShowOnly, parsed.Primary.Type, tt.input)
		assert.Equal(t, tt.want, parsed.Primary.StringListParam("layerNames"), tt.input)
	}
}

func TestParseCompoundHideAndShow(t *testing.T) {
	p := newTestParser()

	parsed := p.Parse("hide site and show architecture")

	require.Equal(t, types.IntentLayerHide, parsed.Primary.Type)
	require.Len(t, parsed.Secondary, 1)
	assert.Equal(t, types.IntentLayerShow, parsed.Secondary[0].Type)
	assert.Equal(t, "site", parsed.Primary.StringParam("layerName"))
	assert.Equal(t, "architecture", parsed.Secondary[0].StringParam("layerName"))
	assert.True(t, parsed.IsValid, "errors: %v", parsed.Errors)

	// Both clauses match exactly (1.0 each); average 1.0 minus one
	// extra-clause penalty of 0.1.
	assert.InDelta(t, 0.9, parsed.Primary.Confidence, 1e-9)
}

func TestParseCompoundThenSeparator(t *testing.T) {
	p := newTestParser()

	parsed := p.Parse("fly to Building A, then highlight the main pump")

	require.Equal(t, types.IntentCameraFly, parsed.Primary.Type)
	require.Len(t, parsed.Secondary, 1)
	assert.Equal(t, types.IntentFeatureShow, parsed.Secondary[0].Type)
	assert.Equal(t, "Building A", parsed.Primary.StringParam("target"))
	assert.Equal(t, "main pump", parsed.Secondary[0].StringParam("target"))
}

// A conjunction whose right side is not a command on its own must not
// trigger a split.
func TestParseConjunctionInsideTargetNotSplit(t *testing.T) {
	p := newTestParser()

	parsed := p.Parse("fly to the plant and equipment yard")

	require.Equal(t, types.IntentCameraFly, parsed.Primary.Type)
	assert.Empty(t, parsed.Secondary)
	assert.Equal(t, "plant and equipment yard", parsed.Primary.StringParam("target"))
}

func TestParseUnknown(t *testing.T) {
	p := newTestParser()

	parsed := p.Parse("what is the meaning of life")

	assert.Equal(t, types.IntentUnknown, parsed.Primary.Type)
	assert.False(t, parsed.IsValid)
	assert.NotEmpty(t, parsed.Errors)
	assert.NotEmpty(t, parsed.Suggestions)
	assert.Zero(t, parsed.Primary.Confidence)
}

func TestParseEmptyInput(t *testing.T) {
	p := newTestParser()

	parsed := p.Parse("   ")

	assert.Equal(t, types.IntentUnknown, parsed.Primary.Type)
	assert.False(t, parsed.IsValid)
}

// An exact match scores higher than a prefix match of the same pattern on
// longer input.
func TestConfidenceExactBeatsPartial(t *testing.T) {
	p := newTestParser()

	exact := p.Parse("reset camera")
	partial := p.Parse("reset camera right now please")

	require.Equal(t, types.IntentCameraReset, exact.Primary.Type)
	require.Equal(t, types.IntentCameraReset, partial.Primary.Type)
	assert.InDelta(t, 1.0, exact.Primary.Confidence, 1e-9)
	assert.Greater(t, exact.Primary.Confidence, partial.Primary.Confidence)
}

func TestConfidenceBelowThresholdFlagged(t *testing.T) {
	p := newTestParser()

	// Prefix match covers 12 of 29 characters: 0.8 * 12/29 < 0.4.
	parsed := p.Parse("reset camera right now please")

	require.Equal(t, types.IntentCameraReset, parsed.Primary.Type)
	assert.False(t, parsed.IsValid)
	require.NotEmpty(t, parsed.Errors)
	assert.Contains(t, parsed.Errors[0], "below threshold")
	assert.NotEmpty(t, parsed.Suggestions)
}

func TestCompoundPenaltyFloorsAtZero(t *testing.T) {
	p := New(Config{ConfidenceThreshold: 0.4, CompoundPenalty: 1.5})

	parsed := p.Parse("hide site and show architecture")

	require.Len(t, parsed.Secondary, 1)
	assert.Zero(t, parsed.Primary.Confidence)
}
