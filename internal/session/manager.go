// Package session holds per-session dialog history, scene-state snapshots,
// and retrieval focus. It renders the plain-text context digest that is the
// only channel through which session memory reaches completion-service
// prompts.
package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenepilot/internal/config"
	"scenepilot/internal/logging"
	"scenepilot/internal/types"
)

// Mutation event names passed to listeners.
const (
	EventTurn      = "turn"
	EventScene     = "scene"
	EventRetrieval = "retrieval"
	EventImport    = "import"
	EventClear     = "clear"
)

const (
	digestTurns    = 5
	maxSuggestions = 5
)

// Listener observes session mutations. Listeners run synchronously on the
// mutating goroutine, after the state change is applied.
type Listener func(event string)

// Snapshot is the export/import wire form. Pointer fields let an import
// merge shallowly: absent fields leave existing state untouched.
type Snapshot struct {
	History      []types.DialogTurn      `json:"history,omitempty"`
	CommandCount *int                    `json:"command_count,omitempty"`
	SceneState   *types.SceneState       `json:"scene_state,omitempty"`
	Retrieval    *types.RetrievalContext `json:"retrieval,omitempty"`
	ExportedAt   time.Time               `json:"exported_at"`
}

// Manager owns one session's mutable state.
type Manager struct {
	mu sync.RWMutex

	cfg config.SessionConfig

	history      []types.DialogTurn
	commandCount int

	scene     types.SceneState
	retrieval types.RetrievalContext

	listeners      map[int]Listener
	nextListenerID int
}

// New creates a session manager. Zero or negative limits fall back to the
// configured defaults.
func New(cfg config.SessionConfig) *Manager {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 100
	}
	if cfg.QueryRecordCap <= 0 {
		cfg.QueryRecordCap = 20
	}
	if cfg.SuccessWindow <= 0 {
		cfg.SuccessWindow = 10
	}
	return &Manager{
		cfg:       cfg,
		listeners: make(map[int]Listener),
	}
}

// RecordTurn appends a dialog turn, evicting the oldest when the history
// cap is reached. The command counter always increments, eviction or not.
func (m *Manager) RecordTurn(turn types.DialogTurn) {
	m.mu.Lock()
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	m.history = append(m.history, turn)
	if len(m.history) > m.cfg.HistoryCap {
		m.history = m.history[len(m.history)-m.cfg.HistoryCap:]
	}
	m.commandCount++
	m.mu.Unlock()

	logging.SessionDebug("turn recorded: %q success=%v (history=%d commands=%d)",
		turn.Input, turn.Success, m.TurnCount(), m.CommandCount())
	m.notify(EventTurn)
}

// History returns a copy of the retained dialog turns, oldest first.
func (m *Manager) History() []types.DialogTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.DialogTurn, len(m.history))
	copy(out, m.history)
	return out
}

// LastTurn returns the most recent turn, if any.
func (m *Manager) LastTurn() (types.DialogTurn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return types.DialogTurn{}, false
	}
	return m.history[len(m.history)-1], true
}

// TurnCount returns the number of retained turns (capped).
func (m *Manager) TurnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// CommandCount returns the total number of commands ever recorded,
// unaffected by history eviction.
func (m *Manager) CommandCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commandCount
}

// SuccessRate returns the fraction of successful turns over the rolling
// window. An empty history yields 1.0.
func (m *Manager) SuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	window := m.history
	if len(window) > m.cfg.SuccessWindow {
		window = window[len(window)-m.cfg.SuccessWindow:]
	}
	if len(window) == 0 {
		return 1.0
	}
	ok := 0
	for _, turn := range window {
		if turn.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(window))
}

// SetSceneState replaces the scene snapshot wholesale.
func (m *Manager) SetSceneState(s types.SceneState) {
	m.mu.Lock()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	m.scene = s
	m.mu.Unlock()
	m.notify(EventScene)
}

// SceneState returns the current scene snapshot.
func (m *Manager) SceneState() types.SceneState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scene
}

// RecordQuery stores one retrieval query and its result, keeping a capped
// record list for the context digest.
func (m *Manager) RecordQuery(query, result string) {
	m.mu.Lock()
	m.retrieval.LastQuery = query
	m.retrieval.LastResult = result
	m.retrieval.QueryRecords = append(m.retrieval.QueryRecords, types.QueryRecord{
		Query:     query,
		Result:    result,
		Timestamp: time.Now(),
	})
	if len(m.retrieval.QueryRecords) > m.cfg.QueryRecordCap {
		m.retrieval.QueryRecords = m.retrieval.QueryRecords[len(m.retrieval.QueryRecords)-m.cfg.QueryRecordCap:]
	}
	m.mu.Unlock()
	m.notify(EventRetrieval)
}

// AddRelevantEquipment marks equipment names as in focus, deduplicated.
func (m *Manager) AddRelevantEquipment(names ...string) {
	m.mu.Lock()
	seen := make(map[string]bool, len(m.retrieval.RelevantEquipment))
	for _, existing := range m.retrieval.RelevantEquipment {
		seen[existing] = true
	}
	for _, name := range names {
		if name != "" && !seen[name] {
			seen[name] = true
			m.retrieval.RelevantEquipment = append(m.retrieval.RelevantEquipment, name)
		}
	}
	m.mu.Unlock()
	m.notify(EventRetrieval)
}

// SetEquipmentFocus sets the single piece of equipment under discussion.
func (m *Manager) SetEquipmentFocus(name string) {
	m.mu.Lock()
	m.retrieval.EquipmentFocus = name
	m.mu.Unlock()
	m.notify(EventRetrieval)
}

// SetMaintenanceContext sets the active maintenance topic.
func (m *Manager) SetMaintenanceContext(topic string) {
	m.mu.Lock()
	m.retrieval.MaintenanceContext = topic
	m.mu.Unlock()
	m.notify(EventRetrieval)
}

// Retrieval returns a copy of the retrieval context.
func (m *Manager) Retrieval() types.RetrievalContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rc := m.retrieval
	rc.RelevantEquipment = append([]string(nil), m.retrieval.RelevantEquipment...)
	rc.QueryRecords = append([]types.QueryRecord(nil), m.retrieval.QueryRecords...)
	return rc
}

// Clear drops all session state.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.history = nil
	m.commandCount = 0
	m.scene = types.SceneState{}
	m.retrieval = types.RetrievalContext{}
	m.mu.Unlock()
	m.notify(EventClear)
}

// AddListener registers a mutation listener and returns a handle for
// RemoveListener.
func (m *Manager) AddListener(fn Listener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextListenerID++
	id := m.nextListenerID
	m.listeners[id] = fn
	return id
}

// RemoveListener unregisters a listener by handle.
func (m *Manager) RemoveListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

func (m *Manager) notify(event string) {
	m.mu.RLock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
}

// ContextForAI renders the deterministic plain-text digest used in
// completion-service prompts: scene statistics, literal samples, the last
// five dialog turns, and the retrieval focus.
func (m *Manager) ContextForAI() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder

	b.WriteString("=== SCENE CONTEXT ===\n")
	viewMode := m.scene.ViewMode
	if viewMode == "" {
		viewMode = "3d"
	}
	fmt.Fprintf(&b, "View mode: %s\n", viewMode)
	fmt.Fprintf(&b, "Layers: %d total, %d visible\n", m.scene.LayerCount, m.scene.VisibleLayers)
	fmt.Fprintf(&b, "Features: %d\n", m.scene.FeatureCount)
	fmt.Fprintf(&b, "Camera: lon=%.5f lat=%.5f height=%.1f heading=%.1f\n",
		m.scene.Camera.Longitude, m.scene.Camera.Latitude, m.scene.Camera.Height, m.scene.Camera.Heading)

	writeSortedCounts(&b, "By type", m.scene.CountsByType)
	writeSortedCounts(&b, "By category", m.scene.CountsByCategory)
	writeSamples(&b, "Layer samples", m.scene.LayerSamples)
	writeSamples(&b, "Feature samples", m.scene.FeatureSamples)

	b.WriteString("\n=== RECENT DIALOG ===\n")
	turns := m.history
	if len(turns) > digestTurns {
		turns = turns[len(turns)-digestTurns:]
	}
	if len(turns) == 0 {
		b.WriteString("(no dialog yet)\n")
	}
	for i, turn := range turns {
		status := "ok"
		if !turn.Success {
			status = "failed"
		}
		intentTag := "none"
		if turn.Intent != nil {
			intentTag = string(turn.Intent.Type)
		}
		fmt.Fprintf(&b, "[%d] %q -> %s (%s, %dms)\n", i+1, turn.Input, intentTag, status, turn.LatencyMs)
	}

	b.WriteString("\n=== RETRIEVAL FOCUS ===\n")
	if m.retrieval.EquipmentFocus != "" {
		fmt.Fprintf(&b, "Equipment focus: %s\n", m.retrieval.EquipmentFocus)
	}
	if m.retrieval.MaintenanceContext != "" {
		fmt.Fprintf(&b, "Maintenance context: %s\n", m.retrieval.MaintenanceContext)
	}
	if len(m.retrieval.RelevantEquipment) > 0 {
		fmt.Fprintf(&b, "Relevant equipment: %s\n", strings.Join(m.retrieval.RelevantEquipment, ", "))
	}
	if len(m.retrieval.QueryRecords) > 0 {
		b.WriteString("Recent queries:\n")
		for _, q := range m.retrieval.QueryRecords {
			fmt.Fprintf(&b, "  - %q -> %s\n", q.Query, truncate(q.Result, 120))
		}
	}

	return b.String()
}

// Suggestions derives up to five advisory next-step hints from the most
// recent turn's intent, the layer-visibility ratio, and feature counts.
// Hints are prose, never executable commands.
func (m *Manager) Suggestions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string

	if len(m.history) > 0 {
		last := m.history[len(m.history)-1]
		if last.Intent != nil {
			switch last.Intent.Type.Prefix() {
			case "layer":
				switch last.Intent.Type {
				case types.IntentLayerHide, types.IntentLayerHideAll:
					out = append(out, `You can restore visibility with "show all layers"`)
				default:
					out = append(out, `You can isolate layers with "show only <name>"`)
				}
			case "camera":
				out = append(out, `You can get a closer look with "zoom in"`,
					`"reset the view" returns to the home position`)
			case "feature":
				out = append(out, `"clear highlights" removes the current highlights`)
			}
		}
	}

	if m.scene.LayerCount > 0 {
		ratio := float64(m.scene.VisibleLayers) / float64(m.scene.LayerCount)
		if ratio < 0.5 {
			out = append(out, `Most layers are hidden; "show all layers" brings them back`)
		} else if m.scene.VisibleLayers == m.scene.LayerCount {
			out = append(out, `All layers are visible; hiding some can reduce clutter`)
		}
	}
	if m.scene.FeatureCount > 50 {
		out = append(out, "The scene has many features; highlighting a specific one may help")
	}

	if len(out) == 0 {
		out = append(out, `Try "show all layers" or "fly to <place>" to get started`)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// Export serializes the full session state as JSON.
func (m *Manager) Export() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := m.commandCount
	scene := m.scene
	retrieval := m.retrieval
	snap := Snapshot{
		History:      append([]types.DialogTurn(nil), m.history...),
		CommandCount: &count,
		SceneState:   &scene,
		Retrieval:    &retrieval,
		ExportedAt:   time.Now(),
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Import merges a snapshot over the current state. Only fields present in
// the payload are applied; the merge is shallow and unvalidated beyond
// JSON well-formedness.
func (m *Manager) Import(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("import session: %w", err)
	}

	m.mu.Lock()
	if snap.History != nil {
		m.history = snap.History
		if len(m.history) > m.cfg.HistoryCap {
			m.history = m.history[len(m.history)-m.cfg.HistoryCap:]
		}
	}
	if snap.CommandCount != nil {
		m.commandCount = *snap.CommandCount
	}
	if snap.SceneState != nil {
		m.scene = *snap.SceneState
	}
	if snap.Retrieval != nil {
		m.retrieval = *snap.Retrieval
	}
	m.mu.Unlock()

	m.notify(EventImport)
	return nil
}

func writeSortedCounts(b *strings.Builder, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "%s:", label)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%d", k, counts[k])
	}
	b.WriteString("\n")
}

func writeSamples(b *strings.Builder, label string, samples []string) {
	if len(samples) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, s := range samples {
		fmt.Fprintf(b, "  - %s\n", s)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
