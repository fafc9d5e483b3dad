package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"scenepilot/internal/registry"
	"scenepilot/internal/types"
)

// SceneEngine is the registry-backed reference implementation of the three
// engine interfaces. Layer visibility lives in the entity registry; camera
// pose and feature selection state are engine-local. Real deployments swap
// in an adapter that drives an actual 3D renderer.
type SceneEngine struct {
	reg *registry.Registry

	mu          sync.Mutex
	camera      types.CameraPose
	homePose    types.CameraPose
	viewMode    string
	selected    map[string]bool
	highlighted map[string]bool
	opacity     map[string]float64
	isolated    []string
}

// NewSceneEngine creates a reference engine over a registry. The home pose
// is what ResetView restores.
func NewSceneEngine(reg *registry.Registry, home types.CameraPose) *SceneEngine {
	return &SceneEngine{
		reg:         reg,
		camera:      home,
		homePose:    home,
		viewMode:    "3d",
		selected:    make(map[string]bool),
		highlighted: make(map[string]bool),
		opacity:     make(map[string]float64),
	}
}

// resolveIDs maps layer/feature references (ids or names) to entity ids.
// The first unresolvable reference aborts with a not-found error.
func (s *SceneEngine) resolveIDs(refs []string, kind string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := s.reg.Get(ref); ok {
			ids = append(ids, ref)
			continue
		}
		matched := s.reg.FindByName(ref)
		if len(matched) == 0 {
			return nil, fmt.Errorf("%s %q not found", kind, ref)
		}
		for _, e := range matched {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

// --- LayerEngine ---

func (s *SceneEngine) ShowLayers(refs []string) error {
	return s.setVisibility(refs, true)
}

func (s *SceneEngine) HideLayers(refs []string) error {
	return s.setVisibility(refs, false)
}

func (s *SceneEngine) setVisibility(refs []string, visible bool) error {
	ids, err := s.resolveIDs(refs, "Layer")
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.reg.UpdateVisibility(id, visible); err != nil {
			return err
		}
	}
	return nil
}

func (s *SceneEngine) ShowAll() error {
	return s.setAll(true)
}

func (s *SceneEngine) HideAll() error {
	return s.setAll(false)
}

func (s *SceneEngine) setAll(visible bool) error {
	for _, e := range s.reg.FindByType(types.TypeLayer) {
		if err := s.reg.UpdateVisibility(e.ID, visible); err != nil {
			return err
		}
	}
	return nil
}

func (s *SceneEngine) ShowOnly(refs []string) error {
	ids, err := s.resolveIDs(refs, "Layer")
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	for _, e := range s.reg.FindByType(types.TypeLayer) {
		if err := s.reg.UpdateVisibility(e.ID, keep[e.ID]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SceneEngine) SetLayerOpacity(refs []string, opacity float64) error {
	ids, err := s.resolveIDs(refs, "Layer")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.opacity[id] = opacity
	}
	return nil
}

func (s *SceneEngine) ListLayers() ([]string, error) {
	layers := s.reg.FindByType(types.TypeLayer)
	sort.Slice(layers, func(i, j int) bool { return layers[i].Name < layers[j].Name })

	lines := make([]string, len(layers))
	for i, e := range layers {
		state := "hidden"
		if e.Visible {
			state = "visible"
		}
		lines[i] = fmt.Sprintf("%s (%s)", e.Name, state)
	}
	return lines, nil
}

// --- CameraEngine ---

func (s *SceneEngine) FlyTo(target types.Point, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera.Longitude = target.Longitude
	s.camera.Latitude = target.Latitude
	if target.Height > 0 {
		s.camera.Height = target.Height
	}
	return nil
}

func (s *SceneEngine) SetPosition(pose types.CameraPose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = pose
	return nil
}

func (s *SceneEngine) Zoom(direction string, factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("zoom factor must be positive, got %.2f", factor)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch direction {
	case "in":
		s.camera.Height /= factor
	case "out":
		s.camera.Height *= factor
	default:
		return fmt.Errorf("unknown zoom direction %q", direction)
	}
	return nil
}

func (s *SceneEngine) Rotate(direction string, degrees float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch direction {
	case "left", "counterclockwise":
		s.camera.Heading -= degrees
	case "right", "clockwise":
		s.camera.Heading += degrees
	default:
		return fmt.Errorf("unknown rotate direction %q", direction)
	}
	// normalize to [0, 360)
	s.camera.Heading = s.camera.Heading - 360*float64(int(s.camera.Heading/360))
	if s.camera.Heading < 0 {
		s.camera.Heading += 360
	}
	return nil
}

func (s *SceneEngine) LookAt(target types.Point, distanceMeters float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera.Longitude = target.Longitude
	s.camera.Latitude = target.Latitude
	if distanceMeters > 0 {
		s.camera.Height = distanceMeters
	}
	s.camera.Pitch = -45
	return nil
}

func (s *SceneEngine) ResetView() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = s.homePose
	return nil
}

// Camera returns the current pose.
func (s *SceneEngine) Camera() types.CameraPose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// --- FeatureEngine ---

func (s *SceneEngine) SelectFeatures(refs []string) error {
	ids, err := s.resolveIDs(refs, "Feature")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.selected[id] = true
	}
	return nil
}

func (s *SceneEngine) DeselectFeatures(refs []string) error {
	if len(refs) == 0 {
		s.mu.Lock()
		s.selected = make(map[string]bool)
		s.mu.Unlock()
		return nil
	}
	ids, err := s.resolveIDs(refs, "Feature")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.selected, id)
	}
	return nil
}

func (s *SceneEngine) HighlightFeatures(refs []string) error {
	ids, err := s.resolveIDs(refs, "Feature")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.highlighted[id] = true
	}
	return nil
}

func (s *SceneEngine) RemoveHighlights(refs []string) error {
	if len(refs) == 0 {
		s.mu.Lock()
		s.highlighted = make(map[string]bool)
		s.mu.Unlock()
		return nil
	}
	ids, err := s.resolveIDs(refs, "Feature")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.highlighted, id)
	}
	return nil
}

func (s *SceneEngine) SetFeatureOpacity(refs []string, opacity float64) error {
	ids, err := s.resolveIDs(refs, "Feature")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.opacity[id] = opacity
	}
	return nil
}

func (s *SceneEngine) IsolateFeatures(refs []string) error {
	ids, err := s.resolveIDs(refs, "Feature")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isolated = ids
	return nil
}

func (s *SceneEngine) ResetOpacity() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opacity = make(map[string]float64)
	s.isolated = nil
	return nil
}

func (s *SceneEngine) FeatureInfo(ref string) (string, error) {
	ids, err := s.resolveIDs([]string{ref}, "Feature")
	if err != nil {
		return "", err
	}
	e, ok := s.reg.Get(ids[0])
	if !ok {
		return "", fmt.Errorf("Feature %q not found", ref)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", e.Name, e.ID)
	if e.Semantics.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", e.Semantics.Category)
	}
	if e.Semantics.Description != "" {
		fmt.Fprintf(&b, "%s\n", e.Semantics.Description)
	}
	if len(e.Semantics.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(e.Semantics.Tags, ", "))
	}
	fmt.Fprintf(&b, "Position: lon=%.5f lat=%.5f", e.Center.Longitude, e.Center.Latitude)
	return b.String(), nil
}

func (s *SceneEngine) SearchFeatures(query string) ([]string, error) {
	folded := strings.ToLower(query)
	var hits []string
	for _, e := range s.reg.FindByType(types.TypeFeature) {
		if strings.Contains(strings.ToLower(e.Name), folded) ||
			strings.Contains(strings.ToLower(e.Semantics.Description), folded) {
			hits = append(hits, e.Name)
			continue
		}
		for _, tag := range e.Semantics.Tags {
			if strings.Contains(strings.ToLower(tag), folded) {
				hits = append(hits, e.Name)
				break
			}
		}
	}
	sort.Strings(hits)
	return hits, nil
}

func (s *SceneEngine) ListFeatures() ([]string, error) {
	features := s.reg.FindByType(types.TypeFeature)
	sort.Slice(features, func(i, j int) bool { return features[i].Name < features[j].Name })

	lines := make([]string, len(features))
	for i, e := range features {
		lines[i] = e.Name
		if e.Semantics.Category != "" {
			lines[i] += " [" + e.Semantics.Category + "]"
		}
	}
	return lines, nil
}

// SceneState computes the session snapshot for prompt grounding: counts,
// camera pose, and small literal samples.
func (s *SceneEngine) SceneState() types.SceneState {
	layers := s.reg.FindByType(types.TypeLayer)
	features := s.reg.FindByType(types.TypeFeature)

	state := types.SceneState{
		ViewMode:         s.viewMode,
		Camera:           s.Camera(),
		LayerCount:       len(layers),
		FeatureCount:     len(features),
		CountsByType:     map[string]int{types.TypeLayer: len(layers), types.TypeFeature: len(features)},
		CountsByCategory: make(map[string]int),
	}

	sort.Slice(layers, func(i, j int) bool { return layers[i].Name < layers[j].Name })
	for _, e := range layers {
		if e.Visible {
			state.VisibleLayers++
			state.ActiveLayers = append(state.ActiveLayers, e.Name)
		}
		if len(state.LayerSamples) < 5 {
			state.LayerSamples = append(state.LayerSamples, e.Name)
		}
	}

	sort.Slice(features, func(i, j int) bool { return features[i].Name < features[j].Name })
	for _, e := range features {
		if e.Semantics.Category != "" {
			state.CountsByCategory[e.Semantics.Category]++
		}
		if len(state.FeatureSamples) < 5 {
			state.FeatureSamples = append(state.FeatureSamples, e.Name)
		}
	}

	s.mu.Lock()
	for id := range s.selected {
		if e, ok := s.reg.Get(id); ok {
			state.SelectedEntities = append(state.SelectedEntities, e.Name)
		}
	}
	s.mu.Unlock()
	sort.Strings(state.SelectedEntities)

	return state
}

// Highlighted returns the names of currently highlighted features, sorted.
func (s *SceneEngine) Highlighted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for id := range s.highlighted {
		if e, ok := s.reg.Get(id); ok {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}
