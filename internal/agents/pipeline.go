// Package agents implements the AI command path: an intent agent that
// classifies input, a clarification agent for ambiguous requests, a query
// agent for questions about the scene, and an execution agent that turns
// completion-service replies into tool calls.
//
// Every agent is best-effort. Callers are expected to fall back to the
// local parse path when anything here returns an error.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"scenepilot/internal/config"
	"scenepilot/internal/logging"
	"scenepilot/internal/perception"
	"scenepilot/internal/session"
	"scenepilot/internal/tools"
)

// Input classification types produced by the intent agent.
const (
	ClassExecute  = "execute"
	ClassQuery    = "query"
	ClassClarify  = "clarify"
	ClassHelp     = "help"
	ClassGreeting = "greeting"
	ClassFeedback = "feedback"
	ClassOther    = "other"
)

// toolCallPattern matches tool-call tokens in completion replies: a bare
// identifier, a colon, and a single-level JSON object. Nested braces are
// not supported.
var toolCallPattern = regexp.MustCompile(`(\w+):\s*(\{[^}]+\})`)

// Classification is the intent agent's structured verdict.
type Classification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Pipeline wires the agents to their shared dependencies.
type Pipeline struct {
	client  perception.LLMClient
	session *session.Manager
	tools   *tools.Registry
	cfg     *config.Config
}

// NewPipeline creates an agent pipeline.
func NewPipeline(client perception.LLMClient, sess *session.Manager, toolReg *tools.Registry, cfg *config.Config) *Pipeline {
	return &Pipeline{
		client:  client,
		session: sess,
		tools:   toolReg,
		cfg:     cfg,
	}
}

// Response is what the pipeline hands back to the orchestrator.
type Response struct {
	Output                 string
	ClarificationQuestions []string
	Suggestions            []string
	ToolCalls              int
}

// Process classifies the input and routes it to the right agent.
// Low-confidence classifications and explicit clarify verdicts go to the
// clarification agent; queries go to the query agent; everything else,
// including unrecognized classification types, goes to the execution agent.
func (p *Pipeline) Process(ctx context.Context, input string) (*Response, error) {
	verdict := p.ClassifyInput(ctx, input)
	logging.Agents("classified %q as %s (%.2f)", input, verdict.Type, verdict.Confidence)

	if verdict.Confidence < p.cfg.Tuning.RoutingThreshold || verdict.Type == ClassClarify {
		return p.Clarify(ctx, input)
	}

	switch verdict.Type {
	case ClassQuery:
		output, err := p.AnswerQuery(ctx, input)
		if err != nil {
			return nil, err
		}
		return &Response{Output: output}, nil
	case ClassHelp:
		return &Response{Output: p.helpText()}, nil
	case ClassGreeting:
		return &Response{Output: "Hello. Tell me what to do with the scene, e.g. \"show the Architecture layer\" or \"fly to Building A\"."}, nil
	default:
		// execute, feedback, other, and anything unrecognized
		return p.ExecuteCommand(ctx, input)
	}
}

func (p *Pipeline) helpText() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	b.WriteString("  Layers:  show/hide <name>, show only <names>, show all, hide all\n")
	b.WriteString("  Camera:  fly to <place>, zoom in/out, rotate left/right, reset view\n")
	b.WriteString("  Features: highlight <name>, clear highlights\n")
	b.WriteString("  Queries: what layers are there, what is <feature>\n")
	return b.String()
}

// historyWindow renders the last N dialog turns as chat messages,
// alternating user input and assistant response.
func (p *Pipeline) historyWindow() []perception.Message {
	window := p.cfg.Tuning.HistoryWindow
	turns := p.session.History()
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	msgs := make([]perception.Message, 0, len(turns)*2)
	for _, turn := range turns {
		msgs = append(msgs,
			perception.Message{Role: "user", Content: turn.Input},
			perception.Message{Role: "assistant", Content: turn.Response},
		)
	}
	return msgs
}

// extractJSON pulls the first JSON object out of a completion reply,
// tolerating markdown code fences and surrounding prose.
func extractJSON(reply string) (string, bool) {
	reply = strings.TrimSpace(reply)
	if fenced := strings.Index(reply, "```"); fenced >= 0 {
		rest := reply[fenced+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			reply = rest[:end]
		} else {
			reply = rest
		}
	}

	start := strings.Index(reply, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(reply); i++ {
		switch reply[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return reply[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeJSONInto(reply string, v any) error {
	raw, ok := extractJSON(reply)
	if !ok {
		return fmt.Errorf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("malformed JSON in reply: %w", err)
	}
	return nil
}
