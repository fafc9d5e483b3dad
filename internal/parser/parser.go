// Package parser maps raw user text to typed, parameterized intents with a
// confidence score. Recognition is pattern-based over a closed command
// vocabulary; anything the patterns cannot place becomes IntentUnknown with
// errors and suggestions rather than a failure.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"scenepilot/internal/logging"
	"scenepilot/internal/types"
)

// Config holds the parser's calibratable knobs.
type Config struct {
	// ConfidenceThreshold is the minimum accepted confidence; matches
	// below it are flagged as errors in the parse summary.
	ConfidenceThreshold float64

	// CompoundPenalty is subtracted from the averaged confidence per
	// extra clause in a compound command.
	CompoundPenalty float64
}

// DefaultConfig mirrors the production tuning defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.4,
		CompoundPenalty:     0.1,
	}
}

// patternSet binds one intent type to its ordered patterns.
// Order across sets matters: more specific phrasings come first so that
// equal-confidence ties resolve to the most specific intent.
type patternSet struct {
	intentType types.IntentType
	patterns   []*regexp.Regexp

	// compound marks intent types whose own parameter grammar contains
	// conjunctions (a show-only layer list); their confidence carries a
	// 0.9 factor since the match is inherently more ambiguous.
	compound bool
}

// Ordered most-specific first: show-only and show/hide-all come before
// the generic show/hide patterns that would otherwise swallow them.
var patternSets = []patternSet{
	{
		intentType: types.IntentLayerShowOnly,
		compound:   true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^show\s+only\s+(?:the\s+)?(.+?)(?:\s+layers?)?$`),
			regexp.MustCompile(`(?i)^only\s+show\s+(?:the\s+)?(.+?)(?:\s+layers?)?$`),
			regexp.MustCompile(`(?i)^isolate\s+(?:the\s+)?(.+?)(?:\s+layers?)?$`),
		},
	},
	{
		intentType: types.IntentLayerShowAll,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^show\s+all(?:\s+(?:the\s+)?layers)?$`),
			regexp.MustCompile(`(?i)^turn\s+on\s+all(?:\s+(?:the\s+)?layers)?$`),
			regexp.MustCompile(`(?i)^show\s+everything$`),
		},
	},
	{
		intentType: types.IntentLayerHideAll,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^hide\s+all(?:\s+(?:the\s+)?layers)?$`),
			regexp.MustCompile(`(?i)^turn\s+off\s+all(?:\s+(?:the\s+)?layers)?$`),
			regexp.MustCompile(`(?i)^hide\s+everything$`),
			regexp.MustCompile(`(?i)^clear\s+the\s+scene$`),
		},
	},
	{
		intentType: types.IntentLayerShow,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:show|display|enable|unhide|turn\s+on)\s+(?:the\s+)?(.+?)(?:\s+layers?)?$`),
		},
	},
	{
		intentType: types.IntentLayerHide,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:hide|disable|turn\s+off)\s+(?:the\s+)?(.+?)(?:\s+layers?)?$`),
		},
	},
	{
		intentType: types.IntentCameraFly,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:fly|go|navigate|jump|take\s+me)\s+to\s+(?:the\s+)?(.+)$`),
		},
	},
	{
		intentType: types.IntentCameraZoom,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^zoom\s+(in|out)(?:\s+(?:by\s+)?(\d+(?:\.\d+)?)\s*(?:x|times)?)?`),
			regexp.MustCompile(`(?i)^zoom$`),
		},
	},
	{
		intentType: types.IntentCameraRotate,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:rotate|orbit|spin)(?:\s+(?:the\s+)?(?:camera|view))?(?:\s+(left|right|clockwise|counterclockwise))?(?:\s+(?:by\s+)?(\d+(?:\.\d+)?)\s*(?:degrees|deg)?)?`),
		},
	},
	{
		intentType: types.IntentCameraReset,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^reset\s+(?:the\s+)?(?:view|camera)`),
			regexp.MustCompile(`(?i)^(?:go\s+)?home(?:\s+view)?$`),
		},
	},
	{
		intentType: types.IntentFeatureShow,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:highlight|mark|flag)\s+(?:the\s+)?(.+)$`),
			regexp.MustCompile(`(?i)^select\s+(?:the\s+)?(.+)$`),
		},
	},
	{
		intentType: types.IntentFeatureClear,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(?:clear|remove)\s+(?:all\s+)?highlights?$`),
			regexp.MustCompile(`(?i)^deselect\s+all$`),
		},
	},
}

// compoundSplitters separate a compound command into clauses. Tried in
// order; the first splitter whose clauses all parse independently wins.
var compoundSplitters = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[,;]?\s+then\s+`),
	regexp.MustCompile(`(?i)\s*;\s*`),
	regexp.MustCompile(`(?i)\s*,\s+and\s+`),
	regexp.MustCompile(`(?i)\s+and\s+`),
	regexp.MustCompile(`\s*,\s*`),
}

// listSplitter separates the layer-name list of a show-only command.
var listSplitter = regexp.MustCompile(`(?i)\s*,\s*|\s+and\s+`)

// Parser turns free text into parsed intents.
type Parser struct {
	mu  sync.RWMutex
	cfg Config
}

// New creates a parser with the given tuning.
func New(cfg Config) *Parser {
	return &Parser{cfg: cfg}
}

// SetConfig swaps the tuning knobs (used by live config reload). Safe to
// call while other goroutines are parsing.
func (p *Parser) SetConfig(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Parser) tuning() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Parse classifies text. It first attempts a compound split; when every
// clause parses on its own the intents are combined with a per-clause
// confidence penalty. Otherwise the single best-matching pattern wins.
func (p *Parser) Parse(text string) *types.ParsedIntent {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return p.validate(&types.ParsedIntent{Primary: unknownIntent(trimmed)})
	}

	if parsed, ok := p.parseCompound(trimmed); ok {
		logging.ParserDebug("compound parse: %q -> %d intents conf=%.2f",
			trimmed, 1+len(parsed.Secondary), parsed.Primary.Confidence)
		return p.validate(parsed)
	}

	intent := p.parseSingle(trimmed)
	logging.ParserDebug("single parse: %q -> %s conf=%.2f", trimmed, intent.Type, intent.Confidence)
	return p.validate(&types.ParsedIntent{Primary: intent})
}

// parseCompound tries the splitters in order. A split is only accepted
// when every clause independently parses to a known intent at or above
// the threshold, so layer lists ("show only A and B") survive intact.
func (p *Parser) parseCompound(text string) (*types.ParsedIntent, bool) {
	tuning := p.tuning()
	for _, splitter := range compoundSplitters {
		clauses := splitter.Split(text, -1)
		if len(clauses) < 2 {
			continue
		}

		intents := make([]types.Intent, 0, len(clauses))
		ok := true
		for _, clause := range clauses {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				ok = false
				break
			}
			intent := p.parseSingle(clause)
			if intent.Type == types.IntentUnknown || intent.Confidence < tuning.ConfidenceThreshold {
				ok = false
				break
			}
			intents = append(intents, intent)
		}
		if !ok {
			continue
		}

		// Overall confidence: clause average minus a penalty per extra
		// clause, floored at zero.
		sum := 0.0
		for _, it := range intents {
			sum += it.Confidence
		}
		conf := sum/float64(len(intents)) - tuning.CompoundPenalty*float64(len(intents)-1)
		if conf < 0 {
			conf = 0
		}

		primary := intents[0]
		primary.Confidence = conf
		return &types.ParsedIntent{Primary: primary, Secondary: intents[1:]}, true
	}
	return nil, false
}

// parseSingle selects the matching pattern for an input. Pattern sets
// run most-specific first, and the first full-string match wins
// outright: the generic layer patterns also consume "show only ..." and
// "show all", so set order, not score, decides between full matches.
// Partial matches fall back to the highest score.
func (p *Parser) parseSingle(text string) types.Intent {
	best := unknownIntent(text)

	for _, set := range patternSets {
		for _, re := range set.patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			intent := types.Intent{
				Type:       set.intentType,
				Confidence: scoreMatch(m[0], text, set.compound),
				Params:     extractParams(set.intentType, m),
				Metadata: &types.IntentMetadata{
					Source:    "parser",
					Timestamp: time.Now(),
				},
			}
			if m[0] == text {
				return intent
			}
			if intent.Confidence > best.Confidence {
				best = intent
			}
		}
	}

	return best
}

// scoreMatch computes the confidence for one pattern match:
// 0.8 x (matched length / input length), +0.2 for an exact full-string
// match, x0.9 when the intent type is compound-flagged, capped at 1.0.
func scoreMatch(matched, input string, compoundFlagged bool) float64 {
	if len(input) == 0 {
		return 0
	}
	conf := 0.8 * float64(len(matched)) / float64(len(input))
	if matched == input {
		conf += 0.2
	}
	if compoundFlagged {
		conf *= 0.9
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// extractParams pulls typed parameters out of the capture groups.
func extractParams(t types.IntentType, m []string) map[string]any {
	params := make(map[string]any)

	switch t {
	case types.IntentLayerShow, types.IntentLayerHide:
		params["layerName"] = cleanTarget(m[1])

	case types.IntentLayerShowOnly:
		names := make([]string, 0, 2)
		for _, part := range listSplitter.Split(m[1], -1) {
			if name := cleanTarget(part); name != "" {
				names = append(names, name)
			}
		}
		params["layerNames"] = names

	case types.IntentCameraFly:
		params["target"] = cleanTarget(m[1])

	case types.IntentCameraZoom:
		direction := "in"
		if len(m) > 1 && m[1] != "" {
			direction = strings.ToLower(m[1])
		}
		params["direction"] = direction
		params["factor"] = 2.0
		if len(m) > 2 && m[2] != "" {
			if f, err := strconv.ParseFloat(m[2], 64); err == nil {
				params["factor"] = f
			}
		}

	case types.IntentCameraRotate:
		direction := "right"
		if len(m) > 1 && m[1] != "" {
			direction = strings.ToLower(m[1])
		}
		params["direction"] = direction
		params["degrees"] = 90.0
		if len(m) > 2 && m[2] != "" {
			if d, err := strconv.ParseFloat(m[2], 64); err == nil {
				params["degrees"] = d
			}
		}

	case types.IntentFeatureShow:
		params["target"] = cleanTarget(m[1])
	}

	return params
}

// cleanTarget normalizes a captured entity reference.
func cleanTarget(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " layers")
	s = strings.TrimSuffix(s, " layer")
	return strings.TrimSpace(s)
}

// validate runs the parser-level validation pass, attaching errors and
// suggestions for the orchestrator to surface.
func (p *Parser) validate(parsed *types.ParsedIntent) *types.ParsedIntent {
	if parsed.Primary.Type == types.IntentUnknown {
		parsed.Errors = append(parsed.Errors, "could not recognize a command in the input")
		parsed.Suggestions = append(parsed.Suggestions,
			`Try rephrasing, e.g. "show the Architecture layer" or "fly to Building A"`)
		parsed.IsValid = false
		return parsed
	}

	if threshold := p.tuning().ConfidenceThreshold; parsed.Primary.Confidence < threshold {
		parsed.Errors = append(parsed.Errors,
			fmt.Sprintf("confidence %.2f below threshold %.2f", parsed.Primary.Confidence, threshold))
		parsed.Suggestions = append(parsed.Suggestions, "Try a more direct phrasing of the command")
	}

	for _, intent := range parsed.All() {
		switch intent.Type {
		case types.IntentLayerShowOnly:
			if len(intent.StringListParam("layerNames")) == 0 {
				parsed.Errors = append(parsed.Errors, "show-only requires at least one layer name")
				parsed.Suggestions = append(parsed.Suggestions,
					`Name the layers to keep, e.g. "show only Architecture and Structural"`)
			}
		case types.IntentLayerShow, types.IntentLayerHide:
			if intent.StringParam("layerName") == "" {
				parsed.Errors = append(parsed.Errors, fmt.Sprintf("%s requires a layer name", intent.Type))
				parsed.Suggestions = append(parsed.Suggestions, `Name the layer, e.g. "hide the Site layer"`)
			}
		case types.IntentCameraFly:
			if intent.StringParam("target") == "" {
				parsed.Errors = append(parsed.Errors, "fly-to requires a destination")
				parsed.Suggestions = append(parsed.Suggestions, `Name a destination, e.g. "fly to Building A"`)
			}
		}
	}

	parsed.IsValid = len(parsed.Errors) == 0
	return parsed
}

func unknownIntent(text string) types.Intent {
	return types.Intent{
		Type:       types.IntentUnknown,
		Confidence: 0,
		Metadata: &types.IntentMetadata{
			Source:    "parser",
			Timestamp: time.Now(),
			Context:   text,
		},
	}
}
