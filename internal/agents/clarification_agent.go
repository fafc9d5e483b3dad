package agents

import (
	"context"
	"fmt"
	"strings"

	"scenepilot/internal/logging"
)

const ambiguitySystemPrompt = `You check whether a scene-control request is ambiguous.
Reply with ONLY a JSON object: {"ambiguous": <true|false>, "reason": "<short reason>"}`

const clarifySystemPrompt = `The user's scene-control request was ambiguous. Produce ONE
clarifying question and exactly THREE suggested rephrasings the user could
pick instead. Reply with ONLY a JSON object:
{"question": "<question>", "suggestions": ["<rephrasing>", "<rephrasing>", "<rephrasing>"]}`

type ambiguityVerdict struct {
	Ambiguous bool   `json:"ambiguous"`
	Reason    string `json:"reason,omitempty"`
}

type clarifyReply struct {
	Question    string   `json:"question"`
	Suggestions []string `json:"suggestions"`
}

// Clarify runs the two-stage clarification flow: an ambiguity check first,
// then question generation. When the first stage says the input is not
// ambiguous after all, it is handed straight to the execution agent.
func (p *Pipeline) Clarify(ctx context.Context, input string) (*Response, error) {
	reply, err := p.client.CompleteWithSystem(ctx, ambiguitySystemPrompt,
		fmt.Sprintf("Request: %q\nScene context:\n%s", input, p.session.ContextForAI()))
	if err != nil {
		return nil, fmt.Errorf("ambiguity check: %w", err)
	}

	var verdict ambiguityVerdict
	if err := decodeJSONInto(reply, &verdict); err == nil && !verdict.Ambiguous {
		logging.AgentsDebug("clarification skipped, input judged unambiguous: %s", verdict.Reason)
		return p.ExecuteCommand(ctx, input)
	}

	reply, err = p.client.CompleteWithSystem(ctx, clarifySystemPrompt,
		fmt.Sprintf("Ambiguous request: %q", input))
	if err != nil {
		return nil, fmt.Errorf("clarification generation: %w", err)
	}

	var clar clarifyReply
	if err := decodeJSONInto(reply, &clar); err != nil {
		return nil, fmt.Errorf("clarification reply: %w", err)
	}
	if strings.TrimSpace(clar.Question) == "" {
		return nil, fmt.Errorf("clarification reply missing question")
	}

	return &Response{
		Output:                 clar.Question,
		ClarificationQuestions: []string{clar.Question},
		Suggestions:            clar.Suggestions,
	}, nil
}
