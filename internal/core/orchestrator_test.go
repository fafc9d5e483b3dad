package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenepilot/internal/config"
	"scenepilot/internal/perception"
	"scenepilot/internal/registry"
	"scenepilot/internal/session"
	"scenepilot/internal/tools"
	"scenepilot/internal/types"
)

func testOrchestrator(t *testing.T) (*Orchestrator, *registry.Registry, *session.Manager) {
	t.Helper()
	reg := registry.New()

	layers := []struct {
		id, name string
		visible  bool
	}{
		{"architecture", "Architecture", true},
		{"structural", "Structural", true},
		{"site", "Site", true},
	}
	for _, l := range layers {
		require.NoError(t, reg.Register(&types.Entity{
			ID:      l.id,
			Name:    l.name,
			Type:    types.TypeLayer,
			Bounds:  types.BoundingBox{North: 1, South: 0, East: 1, West: 0, MaxHeight: 10},
			Center:  types.Point{Longitude: 0.5, Latitude: 0.5},
			Visible: l.visible,
		}))
	}
	require.NoError(t, reg.Register(&types.Entity{
		ID:     "pump-7",
		Name:   "Pump 7",
		Type:   types.TypeFeature,
		Bounds: types.BoundingBox{North: 0.6, South: 0.5, East: 0.6, West: 0.5, MaxHeight: 3},
		Center: types.Point{Longitude: 0.55, Latitude: 0.55},
		Semantics: types.Semantics{
			Category: "equipment",
			Tags:     []string{"pump"},
		},
	}))

	engine := tools.NewSceneEngine(reg, types.CameraPose{Height: 1000})
	toolReg := tools.NewRegistry()
	toolReg.MustRegister(tools.NewLayerControlTool(engine))
	toolReg.MustRegister(tools.NewCameraControlTool(engine))
	toolReg.MustRegister(tools.NewFeatureControlTool(engine))

	cfg := config.DefaultConfig()
	sess := session.New(cfg.Session)

	return New(cfg, reg, toolReg, engine, sess), reg, sess
}

func visibleLayerNames(t *testing.T, reg *registry.Registry) []string {
	t.Helper()
	var names []string
	for _, e := range reg.FindByType(types.TypeLayer) {
		if e.Visible {
			names = append(names, e.Name)
		}
	}
	return names
}

func TestExecuteShowOnly(t *testing.T) {
	o, reg, sess := testOrchestrator(t)

	result := o.Execute(context.Background(), "show only architecture and site")
	require.True(t, result.Success, result.Output)
	assert.Equal(t, types.IntentLayerShowOnly, result.Intent.Type)
	assert.Contains(t, result.Output, "Showing only")
	assert.ElementsMatch(t, []string{"Architecture", "Site"}, visibleLayerNames(t, reg))

	last, ok := sess.LastTurn()
	require.True(t, ok)
	assert.True(t, last.Success)
	assert.Equal(t, "show only architecture and site", last.Input)
}

func TestExecuteUnknownLayerShortCircuits(t *testing.T) {
	o, reg, _ := testOrchestrator(t)
	before := visibleLayerNames(t, reg)

	result := o.Execute(context.Background(), "show the Foo layer")
	require.False(t, result.Success)
	assert.Contains(t, result.Output, `Layer "Foo" not found`)
	assert.Contains(t, result.Output, "list layers")
	// Nothing executed: visibility is untouched.
	assert.ElementsMatch(t, before, visibleLayerNames(t, reg))
}

func TestExecuteCompound(t *testing.T) {
	o, reg, _ := testOrchestrator(t)

	result := o.Execute(context.Background(), "hide site and show structural")
	require.True(t, result.Success, result.Output)
	assert.ElementsMatch(t, []string{"Architecture", "Structural"}, visibleLayerNames(t, reg))
}

func TestExecuteCameraFlyToEntity(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	result := o.Execute(context.Background(), "fly to Pump 7")
	require.True(t, result.Success, result.Output)
	assert.Contains(t, result.Output, "Flying to")
}

func TestExecuteUnparseableInput(t *testing.T) {
	o, _, sess := testOrchestrator(t)

	result := o.Execute(context.Background(), "make me a sandwich")
	require.False(t, result.Success)
	assert.NotEmpty(t, result.Output)

	// Failed turns are still recorded.
	last, ok := sess.LastTurn()
	require.True(t, ok)
	assert.False(t, last.Success)
}

func TestApplyConfigTightensThreshold(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	result := o.Execute(context.Background(), "show only architecture")
	require.True(t, result.Success, result.Output)

	cfg := config.DefaultConfig()
	cfg.Tuning.ConfidenceThreshold = 0.95
	o.ApplyConfig(cfg)

	result = o.Execute(context.Background(), "show only architecture")
	require.False(t, result.Success)
	assert.Contains(t, result.Output, "below threshold 0.95")
	assert.InDelta(t, 0.95, o.cfg.Tuning.ConfidenceThreshold, 1e-9)
}

func TestMiddlewareHooks(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	var before, after, onError []string
	o.Use(Middleware{
		Name:    "spy",
		Before:  func(input string) { before = append(before, input) },
		After:   func(input string, _ *types.ExecuteResult) { after = append(after, input) },
		OnError: func(input string, _ *types.ExecuteResult) { onError = append(onError, input) },
	})

	o.Execute(context.Background(), "hide site")
	o.Execute(context.Background(), "show the Foo layer")

	assert.Equal(t, []string{"hide site", "show the Foo layer"}, before)
	assert.Equal(t, []string{"hide site", "show the Foo layer"}, after)
	assert.Equal(t, []string{"show the Foo layer"}, onError)
}

type failingClient struct{}

func (failingClient) Complete(context.Context, string) (string, error) {
	return "", errors.New("service unavailable")
}

func (failingClient) CompleteWithSystem(context.Context, string, string) (string, error) {
	return "", errors.New("service unavailable")
}

func (failingClient) CompleteChat(context.Context, string, []perception.Message) (string, error) {
	return "", errors.New("service unavailable")
}

func TestExecuteWithAIFallsBackOnFailure(t *testing.T) {
	o, reg, _ := testOrchestrator(t)
	o.cfg.LLM.APIKey = "test-key"
	o.AttachAI(failingClient{})

	// Every agent call fails; classification degrades to the default
	// verdict, which routes to clarification, which also fails. The
	// local path must still execute the command.
	result := o.ExecuteWithAI(context.Background(), "hide site")
	require.True(t, result.Success, result.Output)
	assert.NotContains(t, visibleLayerNames(t, reg), "Site")
}

func TestExecuteWithAIDisabledUsesLocalPath(t *testing.T) {
	o, reg, _ := testOrchestrator(t)
	// No AttachAI and no key: the local path handles everything.
	result := o.ExecuteWithAI(context.Background(), "hide structural")
	require.True(t, result.Success, result.Output)
	assert.NotContains(t, visibleLayerNames(t, reg), "Structural")
}
