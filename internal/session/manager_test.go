package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenepilot/internal/config"
	"scenepilot/internal/types"
)

func newTestManager() *Manager {
	return New(config.SessionConfig{HistoryCap: 100, QueryRecordCap: 20, SuccessWindow: 10})
}

func turn(input string, success bool) types.DialogTurn {
	return types.DialogTurn{Input: input, Success: success, Response: "done"}
}

func TestRecordTurnAssignsIDAndTimestamp(t *testing.T) {
	m := newTestManager()
	m.RecordTurn(turn("show all", true))

	last, ok := m.LastTurn()
	require.True(t, ok)
	assert.NotEmpty(t, last.ID)
	assert.False(t, last.Timestamp.IsZero())
}

// The 101st command evicts the oldest turn while the command counter keeps
// counting past the history cap.
func TestHistoryEvictionKeepsCommandCount(t *testing.T) {
	m := newTestManager()

	for i := 1; i <= 101; i++ {
		m.RecordTurn(turn(fmt.Sprintf("command %d", i), true))
	}

	assert.Equal(t, 100, m.TurnCount())
	assert.Equal(t, 101, m.CommandCount())

	history := m.History()
	assert.Equal(t, "command 2", history[0].Input)
	assert.Equal(t, "command 101", history[99].Input)
}

func TestSuccessRateRollingWindow(t *testing.T) {
	m := newTestManager()
	assert.Equal(t, 1.0, m.SuccessRate())

	// 5 failures followed by 10 successes: the window only sees successes.
	for i := 0; i < 5; i++ {
		m.RecordTurn(turn("bad", false))
	}
	for i := 0; i < 10; i++ {
		m.RecordTurn(turn("good", true))
	}
	assert.Equal(t, 1.0, m.SuccessRate())

	// One more failure enters the window.
	m.RecordTurn(turn("bad", false))
	assert.InDelta(t, 0.9, m.SuccessRate(), 1e-9)
}

func TestSetSceneStateReplacesWholesale(t *testing.T) {
	m := newTestManager()
	m.SetSceneState(types.SceneState{ViewMode: "3d", LayerCount: 5, VisibleLayers: 5, ActiveLayers: []string{"a", "b"}})
	m.SetSceneState(types.SceneState{ViewMode: "2d", LayerCount: 2})

	got := m.SceneState()
	assert.Equal(t, "2d", got.ViewMode)
	assert.Equal(t, 2, got.LayerCount)
	assert.Empty(t, got.ActiveLayers, "replace must not merge previous fields")
}

func TestRetrievalContextOps(t *testing.T) {
	m := newTestManager()

	m.RecordQuery("pump specs", "Pump 7: 450 kW")
	m.AddRelevantEquipment("Pump 7", "Valve 2", "Pump 7")
	m.SetEquipmentFocus("Pump 7")
	m.SetMaintenanceContext("quarterly inspection")

	rc := m.Retrieval()
	assert.Equal(t, "pump specs", rc.LastQuery)
	assert.Equal(t, []string{"Pump 7", "Valve 2"}, rc.RelevantEquipment)
	assert.Equal(t, "Pump 7", rc.EquipmentFocus)
	assert.Equal(t, "quarterly inspection", rc.MaintenanceContext)
	require.Len(t, rc.QueryRecords, 1)
}

func TestQueryRecordsCapped(t *testing.T) {
	m := New(config.SessionConfig{HistoryCap: 100, QueryRecordCap: 3, SuccessWindow: 10})
	for i := 0; i < 5; i++ {
		m.RecordQuery(fmt.Sprintf("q%d", i), "r")
	}
	rc := m.Retrieval()
	require.Len(t, rc.QueryRecords, 3)
	assert.Equal(t, "q2", rc.QueryRecords[0].Query)
}

func TestContextForAIDigest(t *testing.T) {
	m := newTestManager()
	m.SetSceneState(types.SceneState{
		ViewMode:      "3d",
		LayerCount:    4,
		VisibleLayers: 2,
		FeatureCount:  7,
		CountsByType:  map[string]int{"layer": 4, "feature": 7},
		LayerSamples:  []string{"Architecture", "Site"},
	})
	m.RecordTurn(types.DialogTurn{
		Input:   "show architecture",
		Intent:  &types.Intent{Type: types.IntentLayerShow},
		Success: true,
	})
	m.RecordQuery("pump specs", "Pump 7: 450 kW")
	m.SetEquipmentFocus("Pump 7")

	digest := m.ContextForAI()

	assert.Contains(t, digest, "View mode: 3d")
	assert.Contains(t, digest, "Layers: 4 total, 2 visible")
	assert.Contains(t, digest, "feature=7 layer=4")
	assert.Contains(t, digest, "- Architecture")
	assert.Contains(t, digest, `"show architecture" -> layer_show (ok`)
	assert.Contains(t, digest, "Equipment focus: Pump 7")
	assert.Contains(t, digest, `"pump specs" -> Pump 7: 450 kW`)

	// Deterministic: identical state renders the identical digest.
	assert.Equal(t, digest, m.ContextForAI())
}

func TestContextForAIDigestLastFiveTurns(t *testing.T) {
	m := newTestManager()
	for i := 1; i <= 8; i++ {
		m.RecordTurn(turn(fmt.Sprintf("command %d", i), true))
	}

	digest := m.ContextForAI()
	assert.NotContains(t, digest, `"command 3"`)
	assert.Contains(t, digest, `"command 4"`)
	assert.Contains(t, digest, `"command 8"`)
}

func TestSuggestionsCapAndContent(t *testing.T) {
	m := newTestManager()

	// Empty session gets the getting-started hint.
	first := m.Suggestions()
	require.Len(t, first, 1)
	assert.Contains(t, first[0], "get started")

	m.SetSceneState(types.SceneState{LayerCount: 10, VisibleLayers: 2, FeatureCount: 80})
	m.RecordTurn(types.DialogTurn{
		Input:   "fly to the gate",
		Intent:  &types.Intent{Type: types.IntentCameraFly},
		Success: true,
	})

	got := m.Suggestions()
	assert.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 5)
}

func TestListeners(t *testing.T) {
	m := newTestManager()

	var events []string
	id := m.AddListener(func(event string) {
		events = append(events, event)
	})

	m.RecordTurn(turn("show all", true))
	m.SetSceneState(types.SceneState{})
	m.SetEquipmentFocus("Pump 7")

	assert.Equal(t, []string{EventTurn, EventScene, EventRetrieval}, events)

	m.RemoveListener(id)
	m.RecordTurn(turn("again", true))
	assert.Len(t, events, 3)
}

func TestExportImportRoundTrip(t *testing.T) {
	m := newTestManager()
	for i := 0; i < 3; i++ {
		m.RecordTurn(turn(fmt.Sprintf("command %d", i), i%2 == 0))
	}
	m.SetSceneState(types.SceneState{ViewMode: "3d", LayerCount: 3, VisibleLayers: 1})
	m.RecordQuery("pump specs", "Pump 7")

	data, err := m.Export()
	require.NoError(t, err)

	fresh := newTestManager()
	require.NoError(t, fresh.Import(data))

	assert.Equal(t, m.TurnCount(), fresh.TurnCount())
	assert.Equal(t, m.CommandCount(), fresh.CommandCount())

	opts := cmpopts.EquateApproxTime(time.Second)
	if diff := cmp.Diff(m.SceneState(), fresh.SceneState(), opts); diff != "" {
		t.Errorf("scene state mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Retrieval(), fresh.Retrieval(), opts); diff != "" {
		t.Errorf("retrieval context mismatch (-want +got):\n%s", diff)
	}
}

// Importing a payload with only some fields leaves the others untouched.
func TestImportShallowMerge(t *testing.T) {
	m := newTestManager()
	m.RecordTurn(turn("keep me", true))
	m.SetEquipmentFocus("Pump 7")

	require.NoError(t, m.Import([]byte(`{"scene_state":{"view_mode":"2d","layer_count":1}}`)))

	assert.Equal(t, "2d", m.SceneState().ViewMode)
	assert.Equal(t, 1, m.TurnCount(), "history absent from payload must survive")
	assert.Equal(t, "Pump 7", m.Retrieval().EquipmentFocus)
}

func TestImportRejectsMalformedJSON(t *testing.T) {
	m := newTestManager()
	assert.Error(t, m.Import([]byte("{not json")))
}
