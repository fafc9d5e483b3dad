package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scenepilot/internal/logging"
	"scenepilot/internal/perception"
)

const executionRules = `Rules:
- To act on the scene, emit tool calls as: toolName: {"action": "...", ...}
- Emit one tool call per action, on its own line.
- Only use tools from the catalogue above.
- If no tool applies, answer in plain prose instead.

Examples:
User: hide the terrain layer
Assistant: layerControl: {"action": "hide", "layerId": "Terrain"}

User: show only architecture and structural
Assistant: layerControl: {"action": "showOnly", "layerIds": ["Architecture", "Structural"]}

User: fly to building a and highlight the main pump
Assistant: cameraControl: {"action": "flyTo", "longitude": 13.405, "latitude": 52.52, "height": 500}
featureControl: {"action": "highlight", "elementId": "Main Pump"}`

// ExecuteCommand sends the input to the completion service under the
// assembled system prompt, scans the reply for tool-call tokens, executes
// each match through the tool registry, and concatenates the results.
// Replies without tool calls are returned as-is.
func (p *Pipeline) ExecuteCommand(ctx context.Context, input string) (*Response, error) {
	systemPrompt := p.buildExecutionPrompt()

	messages := append(p.historyWindow(), perception.Message{Role: "user", Content: input})
	reply, err := p.client.CompleteChat(ctx, systemPrompt, messages)
	if err != nil {
		return nil, fmt.Errorf("execution completion: %w", err)
	}

	matches := toolCallPattern.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		logging.AgentsDebug("no tool calls in reply, returning text as-is")
		return &Response{Output: strings.TrimSpace(reply)}, nil
	}

	maxCalls := p.cfg.Tuning.MaxIterations
	if maxCalls <= 0 {
		maxCalls = 5
	}

	var outputs []string
	calls := 0
	for _, m := range matches {
		if calls >= maxCalls {
			logging.AgentsWarn("tool-call budget of %d exhausted, dropping remaining calls", maxCalls)
			break
		}
		name, rawArgs := m[1], m[2]
		if !p.tools.Has(name) {
			logging.AgentsDebug("skipping unknown tool token %q", name)
			continue
		}

		var args map[string]any
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			outputs = append(outputs, fmt.Sprintf("Could not parse parameters for %s: %v", name, err))
			continue
		}

		result, err := p.tools.Execute(ctx, name, args)
		calls++
		if err != nil {
			outputs = append(outputs, fmt.Sprintf("%s failed: %v", name, err))
			continue
		}
		outputs = append(outputs, result.Result)
	}

	if len(outputs) == 0 {
		return &Response{Output: strings.TrimSpace(reply)}, nil
	}
	return &Response{
		Output:    strings.Join(outputs, "\n"),
		ToolCalls: calls,
	}, nil
}

// buildExecutionPrompt assembles the tool catalogue (filtered by enabled
// capability flags), the context digest, and the execution rules.
func (p *Pipeline) buildExecutionPrompt() string {
	var b strings.Builder
	b.WriteString("You control a 3D scene through tools.\n\nTool catalogue:\n")

	for _, tool := range p.tools.All() {
		if tool.Capability != "" && !p.cfg.HasCapability(tool.Capability) {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		if len(tool.Schema.Properties) > 0 {
			params, _ := json.Marshal(tool.Schema.Properties)
			fmt.Fprintf(&b, "  parameters: %s\n", params)
		}
	}

	b.WriteString("\nCurrent scene:\n")
	b.WriteString(p.session.ContextForAI())
	b.WriteString("\n")
	b.WriteString(executionRules)
	return b.String()
}
