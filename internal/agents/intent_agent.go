package agents

import (
	"context"
	"fmt"

	"scenepilot/internal/logging"
)

const intentSystemPrompt = `You classify user input for a 3D scene control assistant.
Reply with ONLY a JSON object of the shape:
{"type": "<execute|query|clarify|help|greeting|feedback|other>", "confidence": <0..1>, "reason": "<short reason>"}

Guidance:
- "execute": a concrete scene command (show/hide layers, camera moves, highlighting)
- "query": a question about the scene, its layers, objects, or status
- "clarify": the request is too vague or ambiguous to act on
- "help": the user asks what they can do
- "greeting": small talk or a greeting
- "feedback": a comment on a previous result
- "other": anything else`

// defaultClassification is returned whenever the completion service fails
// or replies with something unparseable.
func defaultClassification() Classification {
	return Classification{Type: ClassOther, Confidence: 0.5}
}

// ClassifyInput asks the completion service to classify the input. Any
// failure, transport or parse, degrades to the default classification
// rather than an error.
func (p *Pipeline) ClassifyInput(ctx context.Context, input string) Classification {
	reply, err := p.client.CompleteWithSystem(ctx, intentSystemPrompt,
		fmt.Sprintf("Classify this input: %q", input))
	if err != nil {
		logging.AgentsWarn("intent classification failed: %v", err)
		return defaultClassification()
	}

	var verdict Classification
	if err := decodeJSONInto(reply, &verdict); err != nil {
		logging.AgentsWarn("intent classification unparseable: %v", err)
		return defaultClassification()
	}
	if verdict.Type == "" {
		return defaultClassification()
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return verdict
}
