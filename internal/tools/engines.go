package tools

import (
	"fmt"

	"scenepilot/internal/types"
)

// LayerEngine is implemented by scene-engine adapters for layer control.
type LayerEngine interface {
	ShowLayers(ids []string) error
	HideLayers(ids []string) error
	ShowAll() error
	HideAll() error
	// ShowOnly makes exactly the given layers visible and hides the rest.
	ShowOnly(ids []string) error
	SetLayerOpacity(ids []string, opacity float64) error
	// ListLayers returns one display line per layer.
	ListLayers() ([]string, error)
}

// CameraEngine is implemented by scene-engine adapters for navigation.
type CameraEngine interface {
	FlyTo(target types.Point, durationSeconds float64) error
	SetPosition(pose types.CameraPose) error
	Zoom(direction string, factor float64) error
	Rotate(direction string, degrees float64) error
	LookAt(target types.Point, distanceMeters float64) error
	ResetView() error
}

// FeatureEngine is implemented by scene-engine adapters for feature
// selection and highlighting. Empty id slices mean "all".
type FeatureEngine interface {
	SelectFeatures(ids []string) error
	DeselectFeatures(ids []string) error
	HighlightFeatures(ids []string) error
	RemoveHighlights(ids []string) error
	SetFeatureOpacity(ids []string, opacity float64) error
	IsolateFeatures(ids []string) error
	ResetOpacity() error
	FeatureInfo(id string) (string, error)
	SearchFeatures(query string) ([]string, error)
	ListFeatures() ([]string, error)
}

// LayerAction is the typed form of a layerControl call.
type LayerAction struct {
	Action   string
	LayerIDs []string
	Opacity  float64
}

// CameraAction is the typed form of a cameraControl call.
type CameraAction struct {
	Action    string
	Longitude float64
	Latitude  float64
	Height    float64
	Heading   float64
	Pitch     float64
	Roll      float64
	Factor    float64
	Direction string
	Degrees   float64
	Distance  float64
	Duration  float64
}

// FeatureAction is the typed form of a featureControl call.
type FeatureAction struct {
	Action  string
	IDs     []string
	Query   string
	Opacity float64
}

// decodeLayerAction converts loose map arguments into a LayerAction.
// Both layerId (scalar) and layerIds (list) spellings are accepted.
func decodeLayerAction(args map[string]any) (LayerAction, error) {
	action, err := stringArg(args, "action")
	if err != nil {
		return LayerAction{}, err
	}
	la := LayerAction{
		Action:   action,
		LayerIDs: stringListArg(args, "layerIds"),
		Opacity:  floatArg(args, "opacity", 1.0),
	}
	if single, _ := stringArg(args, "layerId"); single != "" {
		la.LayerIDs = append(la.LayerIDs, single)
	}
	return la, nil
}

func decodeCameraAction(args map[string]any) (CameraAction, error) {
	action, err := stringArg(args, "action")
	if err != nil {
		return CameraAction{}, err
	}
	ca := CameraAction{
		Action:    action,
		Longitude: floatArg(args, "longitude", 0),
		Latitude:  floatArg(args, "latitude", 0),
		Height:    floatArg(args, "height", 0),
		Heading:   floatArg(args, "heading", 0),
		Pitch:     floatArg(args, "pitch", 0),
		Roll:      floatArg(args, "roll", 0),
		Factor:    floatArg(args, "factor", 2),
		Degrees:   floatArg(args, "degrees", 90),
		Distance:  floatArg(args, "distance", 0),
		Duration:  floatArg(args, "duration", 2),
	}
	ca.Direction, _ = stringArg(args, "direction")
	return ca, nil
}

func decodeFeatureAction(args map[string]any) (FeatureAction, error) {
	action, err := stringArg(args, "action")
	if err != nil {
		return FeatureAction{}, err
	}
	fa := FeatureAction{
		Action:  action,
		IDs:     stringListArg(args, "elementIds"),
		Opacity: floatArg(args, "opacity", 1.0),
	}
	if single, _ := stringArg(args, "elementId"); single != "" {
		fa.IDs = append(fa.IDs, single)
	}
	fa.Query, _ = stringArg(args, "query")
	return fa, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// stringListArg tolerates []any payloads from JSON decoding.
func stringListArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
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
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

func floatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
