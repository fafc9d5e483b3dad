// Package retrieval holds the equipment knowledge base: metadata records
// with a prose rendering, keyword search, LLM-backed summaries, and a
// grouped database export.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"scenepilot/internal/logging"
	"scenepilot/internal/perception"
	"scenepilot/internal/session"
)

// ErrAllDuplicates is returned by InsertBatch when every record in the
// batch already exists.
var ErrAllDuplicates = errors.New("all elements already exist")

// DefaultTopK bounds search results when the caller passes no limit.
const DefaultTopK = 50

// Equipment is one equipment metadata record. Element is the scene
// element ID the record is attached to.
type Equipment struct {
	Element                string   `json:"element"`
	Name                   string   `json:"name"`
	System                 string   `json:"system"`
	Category               string   `json:"subcategory"`
	Concept                string   `json:"equipment_concept"`
	Function               string   `json:"function"`
	ApplicableCodes        []string `json:"applicable_codes,omitempty"`
	MaintenanceStrategy    string   `json:"maintenance_strategy,omitempty"`
	InspectionRequirements []string `json:"inspection_requirements,omitempty"`
}

// Describe renders the record as the prose block used for search and as
// LLM context.
func (e *Equipment) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Equipment %s (element ID %s) is part of the %s.\n", e.Name, e.Element, e.System)
	fmt.Fprintf(&b, "It is a %s with function: %s.\n", e.Concept, e.Function)
	if len(e.ApplicableCodes) > 0 {
		fmt.Fprintf(&b, "It adheres to codes: %s.\n", strings.Join(e.ApplicableCodes, ", "))
	}
	if e.MaintenanceStrategy != "" {
		fmt.Fprintf(&b, "Maintenance strategy: %s.\n", e.MaintenanceStrategy)
	}
	if len(e.InspectionRequirements) > 0 {
		fmt.Fprintf(&b, "Inspection includes: %s.\n", strings.Join(e.InspectionRequirements, ", "))
	}
	return b.String()
}

// Store is an in-memory equipment database. An optional session manager
// receives query records and relevant-equipment updates as searches run.
type Store struct {
	mu        sync.RWMutex
	records   []*Equipment
	byElement map[string]*Equipment

	session *session.Manager
}

func New() *Store {
	return &Store{byElement: make(map[string]*Equipment)}
}

// BindSession routes search activity into the session's retrieval context.
func (s *Store) BindSession(sess *session.Manager) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// InsertBatch adds records, skipping any element ID already stored.
// Duplicates inside the batch collapse to the last occurrence. Returns
// the number inserted; ErrAllDuplicates when nothing was new.
func (s *Store) InsertBatch(records []Equipment) (int, error) {
	unique := make(map[string]Equipment, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if r.Element == "" {
			continue
		}
		if _, seen := unique[r.Element]; !seen {
			order = append(order, r.Element)
		}
		unique[r.Element] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, id := range order {
		if _, exists := s.byElement[id]; exists {
			continue
		}
		r := unique[id]
		rec := &r
		s.byElement[id] = rec
		s.records = append(s.records, rec)
		inserted++
	}

	if inserted == 0 && len(order) > 0 {
		return 0, ErrAllDuplicates
	}
	logging.RetrievalDebug("inserted %d equipment records (total %d)", inserted, len(s.records))
	return inserted, nil
}

// Get returns the record for an element ID, or nil.
func (s *Store) Get(element string) *Equipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byElement[element]
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns the records in insertion order.
func (s *Store) All() []*Equipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Equipment(nil), s.records...)
}

// Search ranks records against a keyword query and returns the top k.
// Matches on name, system, and concept weigh more than matches in the
// long-form fields. The bound session, if any, records the query and the
// matched equipment names.
func (s *Store) Search(query string, topK int) []*Equipment {
	if topK <= 0 {
		topK = DefaultTopK
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	s.mu.RLock()
	type scored struct {
		rec   *Equipment
		score int
		order int
	}
	var hits []scored
	for i, rec := range s.records {
		if sc := scoreRecord(rec, terms); sc > 0 {
			hits = append(hits, scored{rec, sc, i})
		}
	}
	sess := s.session
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]*Equipment, len(hits))
	names := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.rec
		names[i] = h.rec.Name
	}

	if sess != nil {
		sess.RecordQuery(query, fmt.Sprintf("%d equipment records matched", len(out)))
		sess.AddRelevantEquipment(names...)
		if len(out) == 1 {
			sess.SetEquipmentFocus(out[0].Name)
		}
	}
	logging.RetrievalDebug("search %q matched %d of %d records", query, len(out), s.Count())
	return out
}

const summarySystemPrompt = "You are an engineering assistant. Answer from the equipment information provided; say so when the records do not cover the question."

// Summarize answers a free-form question over the top-k matching records
// using the completion client.
func (s *Store) Summarize(ctx context.Context, client perception.LLMClient, query string, topK int) (string, error) {
	if client == nil {
		return "", errors.New("no completion client configured")
	}
	matches := s.Search(query, topK)
	if len(matches) == 0 {
		return "", fmt.Errorf("no equipment records match %q", query)
	}

	var b strings.Builder
	b.WriteString("Equipment information:\n\n")
	for _, rec := range matches {
		b.WriteString(rec.Describe())
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Answer the question: %q", query)

	answer, err := client.CompleteWithSystem(ctx, summarySystemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("summarize %q: %w", query, err)
	}

	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess != nil {
		sess.RecordQuery(query, answer)
	}
	return strings.TrimSpace(answer), nil
}

// ExportMetadata describes one database export.
type ExportMetadata struct {
	ExportTime      time.Time        `json:"export_time"`
	DatabaseVersion string           `json:"database_version"`
	TotalEquipment  int              `json:"total_equipment"`
	Statistics      ExportStatistics `json:"statistics"`
}

type ExportStatistics struct {
	EquipmentBySystem   map[string]int `json:"equipment_by_system"`
	EquipmentByCategory map[string]int `json:"equipment_by_category"`
}

// DatabaseExport is the full-database JSON document.
type DatabaseExport struct {
	Metadata  ExportMetadata `json:"metadata"`
	Equipment []*Equipment   `json:"equipment_database"`
}

// Export builds the grouped full-database document.
func (s *Store) Export() (*DatabaseExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, errors.New("no data to export, database is empty")
	}

	bySystem := make(map[string]int)
	byCategory := make(map[string]int)
	for _, rec := range s.records {
		bySystem[orUnknown(rec.System)]++
		byCategory[orUnknown(rec.Category)]++
	}

	return &DatabaseExport{
		Metadata: ExportMetadata{
			ExportTime:      time.Now(),
			DatabaseVersion: "1.0",
			TotalEquipment:  len(s.records),
			Statistics: ExportStatistics{
				EquipmentBySystem:   bySystem,
				EquipmentByCategory: byCategory,
			},
		},
		Equipment: append([]*Equipment(nil), s.records...),
	}, nil
}

// WriteExport writes the export document as indented JSON.
func (s *Store) WriteExport(path string) error {
	doc, err := s.Export()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	logging.RetrievalDebug("exported %d records to %s", doc.Metadata.TotalEquipment, path)
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// scoreRecord counts query-term hits, weighting the identifying fields.
func scoreRecord(rec *Equipment, terms []string) int {
	name := strings.ToLower(rec.Name)
	system := strings.ToLower(rec.System)
	concept := strings.ToLower(rec.Concept)
	rest := strings.ToLower(strings.Join(append([]string{
		rec.Category, rec.Function, rec.MaintenanceStrategy,
	}, append(rec.ApplicableCodes, rec.InspectionRequirements...)...), " "))

	score := 0
	for _, term := range terms {
		if strings.Contains(name, term) {
			score += 3
		}
		if strings.Contains(system, term) || strings.Contains(concept, term) {
			score += 2
		}
		if strings.Contains(rest, term) {
			score++
		}
	}
	return score
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"of": true, "in": true, "on": true, "for": true, "to": true,
	"what": true, "which": true, "where": true, "how": true,
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}
