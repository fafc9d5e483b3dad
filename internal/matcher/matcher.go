// Package matcher resolves free-text entity references from parsed intents
// to registry records. Resolution is staged: exact name/alias lookup, then
// fuzzy substring matching, then semantic (category/tag) matching, then
// spatial-relation phrases ("near the substation"). Results are always
// deduplicated by entity id.
package matcher

import (
	"sort"
	"strings"

	"scenepilot/internal/logging"
	"scenepilot/internal/registry"
	"scenepilot/internal/types"
)

// spatial relation phrase prefixes, longest first.
var relationPrefixes = []struct {
	prefix   string
	relation registry.SpatialRelation
}{
	{"adjacent to ", registry.RelationAdjacent},
	{"next to ", registry.RelationAdjacent},
	{"inside ", registry.RelationInside},
	{"within ", registry.RelationInside},
	{"above ", registry.RelationAbove},
	{"on top of ", registry.RelationAbove},
	{"below ", registry.RelationBelow},
	{"under ", registry.RelationBelow},
	{"near ", registry.RelationNear},
	{"around ", registry.RelationNear},
	{"close to ", registry.RelationNear},
}

// Matcher resolves entity references against one registry.
type Matcher struct {
	reg *registry.Registry
}

// New creates a matcher over the given registry.
func New(reg *registry.Registry) *Matcher {
	return &Matcher{reg: reg}
}

// Match resolves every entity reference carried by the parsed intents.
// The result is deduplicated by entity id and ordered deterministically.
func (m *Matcher) Match(parsed *types.ParsedIntent) []*types.Entity {
	seen := make(map[string]bool)
	var out []*types.Entity

	add := func(entities []*types.Entity) {
		for _, e := range entities {
			if !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		}
	}

	for _, intent := range parsed.All() {
		for _, ref := range referencesOf(&intent) {
			add(m.Resolve(ref))
		}
	}

	logging.MatcherDebug("matched %d entities for %s", len(out), parsed.Primary.Type)
	return out
}

// Resolve maps one free-text reference to entities. Earlier stages win:
// a non-empty exact result suppresses fuzzy and semantic matching.
func (m *Matcher) Resolve(ref string) []*types.Entity {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}

	if rel, target, ok := splitRelation(ref); ok {
		return m.resolveSpatial(rel, target)
	}

	if exact := m.reg.FindByName(ref); len(exact) > 0 {
		return exact
	}
	if fuzzy := m.fuzzyMatch(ref); len(fuzzy) > 0 {
		return fuzzy
	}
	return m.semanticMatch(ref)
}

// HasExact reports whether ref resolves by exact name or alias lookup.
func (m *Matcher) HasExact(ref string) bool {
	return len(m.reg.FindByName(ref)) > 0
}

// Suggestions returns up to max "did you mean" candidate names for an
// unresolved reference, ranked by similarity.
func (m *Matcher) Suggestions(ref string, max int) []string {
	folded := fold(ref)
	if folded == "" || max <= 0 {
		return nil
	}

	type scored struct {
		name  string
		score int
	}
	var candidates []scored
	for _, e := range m.reg.All() {
		name := e.Name
		s := similarity(folded, fold(name))
		for _, alias := range e.Aliases {
			if as := similarity(folded, fold(alias)); as > s {
				s, name = as, alias
			}
		}
		if s > 0 {
			candidates = append(candidates, scored{name: name, score: s})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return names
}

// fuzzyMatch finds entities whose name or alias contains the reference as
// a substring, or vice versa.
func (m *Matcher) fuzzyMatch(ref string) []*types.Entity {
	folded := fold(ref)
	var out []*types.Entity
	for _, e := range m.reg.All() {
		if substringMatch(folded, fold(e.Name)) {
			out = append(out, e)
			continue
		}
		for _, alias := range e.Aliases {
			if substringMatch(folded, fold(alias)) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// semanticMatch finds entities whose category or tags match the reference.
func (m *Matcher) semanticMatch(ref string) []*types.Entity {
	folded := fold(ref)
	// Singular form so "pumps" finds tag "pump".
	singular := strings.TrimSuffix(folded, "s")

	var out []*types.Entity
	for _, e := range m.reg.All() {
		if c := fold(e.Semantics.Category); c != "" && (c == folded || c == singular) {
			out = append(out, e)
			continue
		}
		for _, tag := range e.Semantics.Tags {
			if t := fold(tag); t == folded || t == singular {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// resolveSpatial resolves "near X"-style references. The anchor itself is
// resolved non-spatially; the first anchor with results wins.
func (m *Matcher) resolveSpatial(rel registry.SpatialRelation, target string) []*types.Entity {
	anchors := m.reg.FindByName(target)
	if len(anchors) == 0 {
		anchors = m.fuzzyMatch(target)
	}
	for _, anchor := range anchors {
		related, err := m.reg.FindSpatialRelation(anchor.ID, rel)
		if err != nil {
			logging.MatcherDebug("spatial resolve %s %q: %v", rel, target, err)
			continue
		}
		if len(related) > 0 {
			return related
		}
	}
	return nil
}

// referencesOf lists the entity references an intent carries.
func referencesOf(intent *types.Intent) []string {
	switch intent.Type {
	case types.IntentLayerShow, types.IntentLayerHide:
		if name := intent.StringParam("layerName"); name != "" {
			return []string{name}
		}
	case types.IntentLayerShowOnly:
		return intent.StringListParam("layerNames")
	case types.IntentCameraFly, types.IntentFeatureShow:
		if target := intent.StringParam("target"); target != "" {
			return []string{target}
		}
	}
	return nil
}

func splitRelation(ref string) (registry.SpatialRelation, string, bool) {
	folded := fold(ref)
	for _, rp := range relationPrefixes {
		if strings.HasPrefix(folded, rp.prefix) {
			target := strings.TrimSpace(folded[len(rp.prefix):])
			target = strings.TrimPrefix(target, "the ")
			if target != "" {
				return rp.relation, target, true
			}
		}
	}
	return "", "", false
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func substringMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(b, a) || strings.Contains(a, b)
}

// similarity is a cheap rank score: shared prefix length plus a bonus for
// substring containment. Zero means no meaningful overlap.
func similarity(a, b string) int {
	if a == b {
		return 1000
	}
	score := 0
	if strings.Contains(b, a) || strings.Contains(a, b) {
		score += 100
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	prefix := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	if prefix < 2 {
		return score
	}
	return score + prefix
}
