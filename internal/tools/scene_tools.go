package tools

import (
	"context"
	"fmt"
	"strings"

	"scenepilot/internal/types"
)

// NewLayerControlTool builds the canonical layerControl tool over an engine.
func NewLayerControlTool(engine LayerEngine) *Tool {
	return &Tool{
		Name:        "layerControl",
		Description: "Controls layer visibility: show, hide, showAll, hideAll, showOnly, setOpacity, listLayers",
		Category:    CategoryLayer,
		Capability:  "layer_control",
		Schema: ToolSchema{
			Required: []string{"action"},
			Properties: map[string]Property{
				"action":   {Type: "string", Description: "Operation to perform", Enum: []any{"show", "hide", "showAll", "hideAll", "showOnly", "setOpacity", "listLayers"}},
				"layerId":  {Type: "string", Description: "Single layer id or name"},
				"layerIds": {Type: "array", Description: "Layer ids or names"},
				"opacity":  {Type: "number", Description: "Opacity in [0,1] for setOpacity"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			la, err := decodeLayerAction(args)
			if err != nil {
				return "", err
			}
			return runLayerAction(engine, la), nil
		},
	}
}

func runLayerAction(engine LayerEngine, la LayerAction) string {
	needIDs := func() string {
		if len(la.LayerIDs) == 0 {
			return fmt.Sprintf("Layer action %q requires at least one layer id", la.Action)
		}
		return ""
	}

	switch la.Action {
	case "show":
		if msg := needIDs(); msg != "" {
			return msg
		}
		if err := engine.ShowLayers(la.LayerIDs); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Showing layers: %s", strings.Join(la.LayerIDs, ", "))
	case "hide":
		if msg := needIDs(); msg != "" {
			return msg
		}
		if err := engine.HideLayers(la.LayerIDs); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Hiding layers: %s", strings.Join(la.LayerIDs, ", "))
	case "showAll":
		if err := engine.ShowAll(); err != nil {
			return err.Error()
		}
		return "All layers visible"
	case "hideAll":
		if err := engine.HideAll(); err != nil {
			return err.Error()
		}
		return "All layers hidden"
	case "showOnly":
		if msg := needIDs(); msg != "" {
			return msg
		}
		if err := engine.ShowOnly(la.LayerIDs); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Showing only: %s", strings.Join(la.LayerIDs, ", "))
	case "setOpacity":
		if msg := needIDs(); msg != "" {
			return msg
		}
		if la.Opacity < 0 || la.Opacity > 1 {
			return fmt.Sprintf("Opacity %.2f out of range [0,1]", la.Opacity)
		}
		if err := engine.SetLayerOpacity(la.LayerIDs, la.Opacity); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Opacity of %s set to %.2f", strings.Join(la.LayerIDs, ", "), la.Opacity)
	case "listLayers":
		lines, err := engine.ListLayers()
		if err != nil {
			return err.Error()
		}
		if len(lines) == 0 {
			return "No layers registered"
		}
		return "Layers:\n" + strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("Unknown layer action %q", la.Action)
	}
}

// NewCameraControlTool builds the canonical cameraControl tool.
func NewCameraControlTool(engine CameraEngine) *Tool {
	return &Tool{
		Name:        "cameraControl",
		Description: "Controls the camera: flyTo, setPosition, zoom, rotate, lookAt, resetView",
		Category:    CategoryCamera,
		Capability:  "camera_control",
		Schema: ToolSchema{
			Required: []string{"action"},
			Properties: map[string]Property{
				"action":    {Type: "string", Description: "Operation to perform", Enum: []any{"flyTo", "setPosition", "zoom", "rotate", "lookAt", "resetView"}},
				"longitude": {Type: "number", Description: "Target longitude in degrees"},
				"latitude":  {Type: "number", Description: "Target latitude in degrees"},
				"height":    {Type: "number", Description: "Target height in meters"},
				"heading":   {Type: "number", Description: "Heading in degrees"},
				"pitch":     {Type: "number", Description: "Pitch in degrees"},
				"roll":      {Type: "number", Description: "Roll in degrees"},
				"direction": {Type: "string", Description: "Zoom/rotate direction"},
				"factor":    {Type: "number", Description: "Zoom factor", Default: 2},
				"degrees":   {Type: "number", Description: "Rotation in degrees", Default: 90},
				"distance":  {Type: "number", Description: "LookAt distance in meters"},
				"duration":  {Type: "number", Description: "Flight duration in seconds", Default: 2},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			ca, err := decodeCameraAction(args)
			if err != nil {
				return "", err
			}
			return runCameraAction(engine, ca), nil
		},
	}
}

func runCameraAction(engine CameraEngine, ca CameraAction) string {
	target := types.Point{Longitude: ca.Longitude, Latitude: ca.Latitude, Height: ca.Height}

	switch ca.Action {
	case "flyTo":
		if err := engine.FlyTo(target, ca.Duration); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Flying to lon=%.5f lat=%.5f height=%.1f", ca.Longitude, ca.Latitude, ca.Height)
	case "setPosition":
		pose := types.CameraPose{
			Longitude: ca.Longitude, Latitude: ca.Latitude, Height: ca.Height,
			Heading: ca.Heading, Pitch: ca.Pitch, Roll: ca.Roll,
		}
		if err := engine.SetPosition(pose); err != nil {
			return err.Error()
		}
		return "Camera position set"
	case "zoom":
		direction := ca.Direction
		if direction == "" {
			direction = "in"
		}
		if err := engine.Zoom(direction, ca.Factor); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Zoomed %s by %.1fx", direction, ca.Factor)
	case "rotate":
		direction := ca.Direction
		if direction == "" {
			direction = "right"
		}
		if err := engine.Rotate(direction, ca.Degrees); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Rotated %s by %.1f degrees", direction, ca.Degrees)
	case "lookAt":
		if err := engine.LookAt(target, ca.Distance); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Looking at lon=%.5f lat=%.5f", ca.Longitude, ca.Latitude)
	case "resetView":
		if err := engine.ResetView(); err != nil {
			return err.Error()
		}
		return "View reset to home position"
	default:
		return fmt.Sprintf("Unknown camera action %q", ca.Action)
	}
}

// NewFeatureControlTool builds the canonical featureControl tool.
func NewFeatureControlTool(engine FeatureEngine) *Tool {
	return &Tool{
		Name:        "featureControl",
		Description: "Controls features: select, deselect, highlight, removeHighlight, setOpacity, isolate, resetOpacity, info, search, list",
		Category:    CategoryFeature,
		Capability:  "feature_control",
		Schema: ToolSchema{
			Required: []string{"action"},
			Properties: map[string]Property{
				"action":     {Type: "string", Description: "Operation to perform", Enum: []any{"select", "deselect", "highlight", "removeHighlight", "setOpacity", "isolate", "resetOpacity", "info", "search", "list"}},
				"elementId":  {Type: "string", Description: "Single feature id or name"},
				"elementIds": {Type: "array", Description: "Feature ids or names"},
				"query":      {Type: "string", Description: "Search query for the search action"},
				"opacity":    {Type: "number", Description: "Opacity in [0,1] for setOpacity"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			fa, err := decodeFeatureAction(args)
			if err != nil {
				return "", err
			}
			return runFeatureAction(engine, fa), nil
		},
	}
}

func runFeatureAction(engine FeatureEngine, fa FeatureAction) string {
	switch fa.Action {
	case "select":
		if err := engine.SelectFeatures(fa.IDs); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Selected %d feature(s)", len(fa.IDs))
	case "deselect":
		if err := engine.DeselectFeatures(fa.IDs); err != nil {
			return err.Error()
		}
		return "Selection cleared"
	case "highlight":
		if len(fa.IDs) == 0 {
			return "Highlight requires at least one feature id"
		}
		if err := engine.HighlightFeatures(fa.IDs); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Highlighted: %s", strings.Join(fa.IDs, ", "))
	case "removeHighlight":
		if err := engine.RemoveHighlights(fa.IDs); err != nil {
			return err.Error()
		}
		return "Highlights removed"
	case "setOpacity":
		if fa.Opacity < 0 || fa.Opacity > 1 {
			return fmt.Sprintf("Opacity %.2f out of range [0,1]", fa.Opacity)
		}
		if err := engine.SetFeatureOpacity(fa.IDs, fa.Opacity); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Feature opacity set to %.2f", fa.Opacity)
	case "isolate":
		if len(fa.IDs) == 0 {
			return "Isolate requires at least one feature id"
		}
		if err := engine.IsolateFeatures(fa.IDs); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Isolated: %s", strings.Join(fa.IDs, ", "))
	case "resetOpacity":
		if err := engine.ResetOpacity(); err != nil {
			return err.Error()
		}
		return "Feature opacity reset"
	case "info":
		if len(fa.IDs) != 1 {
			return "Info requires exactly one feature id"
		}
		info, err := engine.FeatureInfo(fa.IDs[0])
		if err != nil {
			return err.Error()
		}
		return info
	case "search":
		if fa.Query == "" {
			return "Search requires a query"
		}
		hits, err := engine.SearchFeatures(fa.Query)
		if err != nil {
			return err.Error()
		}
		if len(hits) == 0 {
			return fmt.Sprintf("No features match %q", fa.Query)
		}
		return "Found:\n" + strings.Join(hits, "\n")
	case "list":
		lines, err := engine.ListFeatures()
		if err != nil {
			return err.Error()
		}
		if len(lines) == 0 {
			return "No features registered"
		}
		return "Features:\n" + strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("Unknown feature action %q", fa.Action)
	}
}
