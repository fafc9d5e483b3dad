package agents

import (
	"context"
	"fmt"
	"strings"

	"scenepilot/internal/logging"
)

const querySystemPrompt = `You answer questions about a 3D scene session. Ground every
answer ONLY in the context below. If the context does not contain the
answer, say so. Be concise.`

// AnswerQuery answers a question about the scene. Layer, object, scene,
// and status questions short-circuit to deterministic handlers; anything
// else goes to the completion service with the context digest.
func (p *Pipeline) AnswerQuery(ctx context.Context, input string) (string, error) {
	folded := strings.ToLower(input)

	switch {
	case strings.Contains(folded, "layer"):
		return p.answerLayers(ctx)
	case strings.Contains(folded, "object") || strings.Contains(folded, "feature") || strings.Contains(folded, "equipment"):
		return p.answerFeatures(ctx)
	case strings.Contains(folded, "scene") || strings.Contains(folded, "status") || strings.Contains(folded, "state"):
		return p.answerStatus(), nil
	}

	logging.AgentsDebug("query falls through to completion service: %q", input)
	reply, err := p.client.CompleteWithSystem(ctx, querySystemPrompt,
		fmt.Sprintf("Context:\n%s\n\nQuestion: %s", p.session.ContextForAI(), input))
	if err != nil {
		return "", fmt.Errorf("query completion: %w", err)
	}
	return reply, nil
}

func (p *Pipeline) answerLayers(ctx context.Context) (string, error) {
	result, err := p.tools.Execute(ctx, "layerControl", map[string]any{"action": "listLayers"})
	if err != nil {
		return "", fmt.Errorf("list layers: %w", err)
	}
	return result.Result, nil
}

func (p *Pipeline) answerFeatures(ctx context.Context) (string, error) {
	result, err := p.tools.Execute(ctx, "featureControl", map[string]any{"action": "list"})
	if err != nil {
		return "", fmt.Errorf("list features: %w", err)
	}
	return result.Result, nil
}

func (p *Pipeline) answerStatus() string {
	state := p.session.SceneState()
	var b strings.Builder
	fmt.Fprintf(&b, "View mode: %s\n", state.ViewMode)
	fmt.Fprintf(&b, "Layers: %d registered, %d visible\n", state.LayerCount, state.VisibleLayers)
	fmt.Fprintf(&b, "Features: %d\n", state.FeatureCount)
	fmt.Fprintf(&b, "Camera: lon=%.5f lat=%.5f height=%.1f\n",
		state.Camera.Longitude, state.Camera.Latitude, state.Camera.Height)
	fmt.Fprintf(&b, "Commands this session: %d (success rate %.0f%%)",
		p.session.CommandCount(), p.session.SuccessRate()*100)
	return b.String()
}
