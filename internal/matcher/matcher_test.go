package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenepilot/internal/registry"
	"scenepilot/internal/types"
)

func seededRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()

	entities := []*types.Entity{
		{
			ID:      "architecture",
			Name:    "Architecture",
			Type:    types.TypeLayer,
			Aliases: []string{"arch", "building model"},
			Bounds:  types.BoundingBox{North: 52.53, South: 52.52, East: 13.41, West: 13.40, MaxHeight: 50},
			Center:  types.Point{Longitude: 13.405, Latitude: 52.525},
			Visible: true,
		},
		{
			ID:      "structural",
			Name:    "Structural",
			Type:    types.TypeLayer,
			Bounds:  types.BoundingBox{North: 52.53, South: 52.52, East: 13.41, West: 13.40, MaxHeight: 40},
			Center:  types.Point{Longitude: 13.405, Latitude: 52.525},
			Visible: true,
		},
		{
			ID:     "pump-7",
			Name:   "Pump 7",
			Type:   types.TypeFeature,
			Bounds: types.BoundingBox{North: 52.5201, South: 52.5200, East: 13.4001, West: 13.4000, MaxHeight: 3},
			Center: types.Point{Longitude: 13.40005, Latitude: 52.52005},
			Semantics: types.Semantics{
				Category: "equipment",
				Tags:     []string{"pump", "hydraulic"},
			},
		},
		{
			ID:     "valve-2",
			Name:   "Valve 2",
			Type:   types.TypeFeature,
			Bounds: types.BoundingBox{North: 52.5202, South: 52.5201, East: 13.4002, West: 13.4001, MaxHeight: 3},
			Center: types.Point{Longitude: 13.40015, Latitude: 52.52015},
			Semantics: types.Semantics{
				Category: "equipment",
				Tags:     []string{"valve"},
			},
		},
	}
	for _, e := range entities {
		require.NoError(t, reg.Register(e))
	}
	return reg
}

func entityIDs(entities []*types.Entity) []string {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

func TestResolveExactAndAlias(t *testing.T) {
	m := New(seededRegistry(t))

	assert.Equal(t, []string{"architecture"}, entityIDs(m.Resolve("Architecture")))
	assert.Equal(t, []string{"architecture"}, entityIDs(m.Resolve("ARCH")))
	assert.Equal(t, []string{"architecture"}, entityIDs(m.Resolve("building model")))
}

func TestResolveFuzzySubstring(t *testing.T) {
	m := New(seededRegistry(t))

	// No exact entity "struct"; substring matching finds Structural.
	assert.Equal(t, []string{"structural"}, entityIDs(m.Resolve("struct")))
}

func TestResolveSemanticCategoryAndTag(t *testing.T) {
	m := New(seededRegistry(t))

	byCategory := entityIDs(m.Resolve("equipment"))
	assert.ElementsMatch(t, []string{"pump-7", "valve-2"}, byCategory)

	// Plural form resolves against the singular tag.
	assert.Equal(t, []string{"pump-7"}, entityIDs(m.Resolve("pumps")))
}

func TestResolveSpatialPhrase(t *testing.T) {
	m := New(seededRegistry(t))

	near := entityIDs(m.Resolve("near Pump 7"))
	assert.Contains(t, near, "valve-2")
	assert.NotContains(t, near, "pump-7")
}

func TestResolveUnknownIsEmpty(t *testing.T) {
	m := New(seededRegistry(t))
	assert.Empty(t, m.Resolve("xyzzy"))
	assert.Empty(t, m.Resolve(""))
}

func TestMatchDeduplicatesAcrossIntents(t *testing.T) {
	m := New(seededRegistry(t))

	parsed := &types.ParsedIntent{
		Primary: types.Intent{
			Type:   types.IntentLayerShowOnly,
			Params: map[string]any{"layerNames": []string{"Architecture", "arch", "Structural"}},
		},
	}

	matched := m.Match(parsed)
	assert.ElementsMatch(t, []string{"architecture", "structural"}, entityIDs(matched))
}

func TestMatchCollectsSecondaryIntentRefs(t *testing.T) {
	m := New(seededRegistry(t))

	parsed := &types.ParsedIntent{
		Primary: types.Intent{
			Type:   types.IntentLayerHide,
			Params: map[string]any{"layerName": "Structural"},
		},
		Secondary: []types.Intent{
			{
				Type:   types.IntentLayerShow,
				Params: map[string]any{"layerName": "Architecture"},
			},
		},
	}

	matched := m.Match(parsed)
	assert.ElementsMatch(t, []string{"structural", "architecture"}, entityIDs(matched))
}

func TestHasExact(t *testing.T) {
	m := New(seededRegistry(t))
	assert.True(t, m.HasExact("arch"))
	assert.False(t, m.HasExact("Foo"))
}

func TestSuggestions(t *testing.T) {
	m := New(seededRegistry(t))

	got := m.Suggestions("Architectur", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "Architecture", got[0])

	assert.Empty(t, m.Suggestions("zzz", 3))
	assert.Empty(t, m.Suggestions("Architectur", 0))
}
