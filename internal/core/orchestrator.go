// Package core wires the command pipeline together: parse, match,
// validate, dispatch, record. It owns both the local execution path and
// the best-effort AI path, which falls back to the local path on any
// failure.
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scenepilot/internal/agents"
	"scenepilot/internal/config"
	"scenepilot/internal/logging"
	"scenepilot/internal/matcher"
	"scenepilot/internal/parser"
	"scenepilot/internal/perception"
	"scenepilot/internal/registry"
	"scenepilot/internal/session"
	"scenepilot/internal/tools"
	"scenepilot/internal/types"
	"scenepilot/internal/validation"
)

// Middleware hooks observe command execution. Before runs ahead of
// parsing; After runs on every completed result; OnError runs when a
// command produced a failure result.
type Middleware struct {
	Name    string
	Before  func(input string)
	After   func(input string, result *types.ExecuteResult)
	OnError func(input string, result *types.ExecuteResult)
}

// Orchestrator executes natural-language scene commands.
type Orchestrator struct {
	cfg       *config.Config
	reg       *registry.Registry
	parser    *parser.Parser
	matcher   *matcher.Matcher
	validator *validation.Validator
	session   *session.Manager
	tools     *tools.Registry
	engine    *tools.SceneEngine

	pipeline *agents.Pipeline

	middleware []Middleware
}

// New builds an orchestrator over shared registry, tool, and session
// state. The AI path stays disabled until AttachAI is called.
func New(cfg *config.Config, reg *registry.Registry, toolReg *tools.Registry, engine *tools.SceneEngine, sess *session.Manager) *Orchestrator {
	m := matcher.New(reg)
	return &Orchestrator{
		cfg: cfg,
		reg: reg,
		parser: parser.New(parser.Config{
			ConfidenceThreshold: cfg.Tuning.ConfidenceThreshold,
			CompoundPenalty:     cfg.Tuning.CompoundPenalty,
		}),
		matcher:   m,
		validator: validation.New(reg, m, cfg),
		session:   sess,
		tools:     toolReg,
		engine:    engine,
	}
}

// AttachAI enables the agent path with the given completion client.
func (o *Orchestrator) AttachAI(client perception.LLMClient) {
	o.pipeline = agents.NewPipeline(client, o.session, o.tools, o.cfg)
}

// ApplyConfig takes over freshly reloaded tuning values. Only the knobs
// that are safe to swap at runtime move; identity, scene bounds, and
// provider wiring keep their boot-time values.
func (o *Orchestrator) ApplyConfig(cfg *config.Config) {
	o.cfg.Tuning = cfg.Tuning
	o.parser.SetConfig(parser.Config{
		ConfidenceThreshold: cfg.Tuning.ConfidenceThreshold,
		CompoundPenalty:     cfg.Tuning.CompoundPenalty,
	})
	logging.Core("applied reloaded tuning: threshold=%.2f", cfg.Tuning.ConfidenceThreshold)
}

// ResolveReference resolves a natural-language entity reference the way
// commands do.
func (o *Orchestrator) ResolveReference(ref string) []*types.Entity {
	return o.matcher.Resolve(ref)
}

// Use registers a middleware. Hooks run in registration order.
func (o *Orchestrator) Use(mw Middleware) {
	o.middleware = append(o.middleware, mw)
}

// Execute runs the local command path: parse, match, validate, dispatch.
// It always returns a structured result; panics anywhere in the pipeline
// are converted into a failure result.
func (o *Orchestrator) Execute(ctx context.Context, input string) (result *types.ExecuteResult) {
	start := time.Now()
	log := logging.WithRequestID(logging.CategoryCore, uuid.NewString()[:8])
	log.Debug("executing %q", input)
	timer := logging.StartTimer(logging.CategoryCore, "execute")
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic executing %q: %v", input, r)
			result = &types.ExecuteResult{
				Success:    false,
				Output:     fmt.Sprintf("Internal error: %v", r),
				Error:      fmt.Sprintf("%v", r),
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
		o.finish(input, result, start)
	}()

	for _, mw := range o.middleware {
		if mw.Before != nil {
			mw.Before(input)
		}
	}

	parsed := o.parser.Parse(input)
	matched := o.matcher.Match(parsed)

	if !parsed.IsValid {
		return &types.ExecuteResult{
			Success:     false,
			Output:      formatIssues(parsed.Errors, parsed.Suggestions),
			Intent:      &parsed.Primary,
			Suggestions: parsed.Suggestions,
			Error:       strings.Join(parsed.Errors, "; "),
		}
	}

	vr := o.validator.Validate(parsed)
	if !vr.IsValid {
		// Validation errors and suggestions pass through verbatim;
		// no tool runs.
		return &types.ExecuteResult{
			Success:         false,
			Output:          formatIssues(vr.Errors, vr.Suggestions),
			Intent:          &parsed.Primary,
			MatchedEntities: entityIDs(matched),
			Suggestions:     vr.Suggestions,
			Error:           strings.Join(vr.Errors, "; "),
		}
	}

	outputs := make([]string, 0, 1+len(parsed.Secondary))
	for _, intent := range parsed.All() {
		output, ok := o.dispatch(ctx, &intent)
		outputs = append(outputs, output)
		if !ok {
			return &types.ExecuteResult{
				Success:         false,
				Output:          strings.Join(outputs, "\n"),
				Intent:          &parsed.Primary,
				MatchedEntities: entityIDs(matched),
				Error:           output,
			}
		}
	}

	o.refreshSceneState()

	return &types.ExecuteResult{
		Success:         true,
		Output:          strings.Join(append(outputs, vr.Warnings...), "\n"),
		Intent:          &parsed.Primary,
		MatchedEntities: entityIDs(matched),
		Suggestions:     o.session.Suggestions(),
	}
}

// ExecuteWithAI runs the agent path when a completion key is configured.
// Any failure in the AI path, transport or parse, degrades synchronously
// to the local Execute path for the same input.
func (o *Orchestrator) ExecuteWithAI(ctx context.Context, input string) *types.ExecuteResult {
	if o.pipeline == nil || !o.cfg.AIEnabled() {
		logging.CoreDebug("AI path unavailable, using local path for %q", input)
		return o.Execute(ctx, input)
	}

	start := time.Now()
	resp, err := func() (resp *agents.Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("agent panic: %v", r)
			}
		}()
		return o.pipeline.Process(ctx, input)
	}()
	if err != nil {
		logging.CoreWarn("AI path failed for %q, falling back to local: %v", input, err)
		return o.Execute(ctx, input)
	}

	o.refreshSceneState()

	result := &types.ExecuteResult{
		Success:                true,
		Output:                 resp.Output,
		Suggestions:            resp.Suggestions,
		ClarificationQuestions: resp.ClarificationQuestions,
	}
	if len(result.Suggestions) == 0 {
		result.Suggestions = o.session.Suggestions()
	}
	o.finish(input, result, start)
	return result
}

// dispatch routes one intent to its tool by intent-type prefix. The bool
// is false when no execution path exists or the tool transport failed.
func (o *Orchestrator) dispatch(ctx context.Context, intent *types.Intent) (string, bool) {
	tool := o.tools.GetForPrefix(intent.Type.Prefix())
	if tool == nil {
		logging.CoreWarn("no execution path for intent %s", intent.Type)
		return fmt.Sprintf("No execution path for %s", intent.Type), false
	}

	args := o.argsForIntent(intent)
	result, err := o.tools.ExecuteTool(ctx, tool, args)
	if err != nil {
		return fmt.Sprintf("Tool %s failed: %v", tool.Name, err), false
	}
	return result.Result, true
}

// argsForIntent translates a parsed intent into tool arguments.
func (o *Orchestrator) argsForIntent(intent *types.Intent) map[string]any {
	switch intent.Type {
	case types.IntentLayerShow:
		return map[string]any{"action": "show", "layerId": intent.StringParam("layerName")}
	case types.IntentLayerHide:
		return map[string]any{"action": "hide", "layerId": intent.StringParam("layerName")}
	case types.IntentLayerShowOnly:
		return map[string]any{"action": "showOnly", "layerIds": intent.StringListParam("layerNames")}
	case types.IntentLayerShowAll:
		return map[string]any{"action": "showAll"}
	case types.IntentLayerHideAll:
		return map[string]any{"action": "hideAll"}

	case types.IntentCameraFly:
		args := map[string]any{"action": "flyTo"}
		if targets := o.matcher.Resolve(intent.StringParam("target")); len(targets) > 0 {
			e := targets[0]
			args["longitude"] = e.Center.Longitude
			args["latitude"] = e.Center.Latitude
			args["height"] = e.Bounds.MaxHeight + 500
		}
		return args
	case types.IntentCameraZoom:
		return map[string]any{
			"action":    "zoom",
			"direction": intent.StringParam("direction"),
			"factor":    intent.FloatParam("factor", 2),
		}
	case types.IntentCameraRotate:
		return map[string]any{
			"action":    "rotate",
			"direction": intent.StringParam("direction"),
			"degrees":   intent.FloatParam("degrees", 90),
		}
	case types.IntentCameraReset:
		return map[string]any{"action": "resetView"}

	case types.IntentFeatureShow:
		names := []string{intent.StringParam("target")}
		if targets := o.matcher.Resolve(intent.StringParam("target")); len(targets) > 0 {
			names = names[:0]
			for _, e := range targets {
				names = append(names, e.ID)
			}
		}
		return map[string]any{"action": "highlight", "elementIds": names}
	case types.IntentFeatureClear:
		return map[string]any{"action": "removeHighlight"}
	}
	return map[string]any{}
}

// finish records the dialog turn and runs the after/error hooks. It is
// idempotent against nil results (panic during result construction).
func (o *Orchestrator) finish(input string, result *types.ExecuteResult, start time.Time) {
	if result == nil {
		return
	}
	if result.DurationMs == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
	}

	o.session.RecordTurn(types.DialogTurn{
		Input:           input,
		Intent:          result.Intent,
		MatchedEntities: result.MatchedEntities,
		Response:        result.Output,
		Success:         result.Success,
		LatencyMs:       result.DurationMs,
	})

	for _, mw := range o.middleware {
		if mw.After != nil {
			mw.After(input, result)
		}
		if !result.Success && mw.OnError != nil {
			mw.OnError(input, result)
		}
	}
}

// refreshSceneState pushes the engine's current snapshot into the session.
func (o *Orchestrator) refreshSceneState() {
	if o.engine != nil {
		o.session.SetSceneState(o.engine.SceneState())
	}
}

func formatIssues(errors, suggestions []string) string {
	var b strings.Builder
	for _, e := range errors {
		b.WriteString(e)
		b.WriteString("\n")
	}
	if len(suggestions) > 0 {
		b.WriteString("Suggestions:\n")
		for _, s := range suggestions {
			b.WriteString("  - ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func entityIDs(entities []*types.Entity) []string {
	if len(entities) == 0 {
		return nil
	}
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}
