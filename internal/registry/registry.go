// Package registry provides the indexed store of addressable scene objects.
// Entities (layers and features) are indexed three ways: a case-folded
// alias index, a type index, and a coarse 1-degree spatial grid. Queries
// compose filters as set intersections and never error on empty results.
package registry

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"scenepilot/internal/logging"
	"scenepilot/internal/types"
)

// EarthRadiusMeters is the radius used for great-circle distance.
const EarthRadiusMeters = 6371000.0

// Spatial relation thresholds.
const (
	nearThresholdMeters     = 100.0
	adjacentToleranceMeters = 1.0
)

// SpatialRelation names a supported relation for FindSpatialRelation.
type SpatialRelation string

const (
	RelationNear     SpatialRelation = "near"
	RelationAbove    SpatialRelation = "above"
	RelationBelow    SpatialRelation = "below"
	RelationInside   SpatialRelation = "inside"
	RelationAdjacent SpatialRelation = "adjacent"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrInvalidEntity  = errors.New("invalid entity")
)

// gridKey identifies one 1-degree cell of the spatial grid.
type gridKey struct {
	X int // floor(lon + 180)
	Y int // floor(lat + 90)
}

func cellFor(p types.Point) gridKey {
	return gridKey{
		X: int(math.Floor(p.Longitude + 180)),
		Y: int(math.Floor(p.Latitude + 90)),
	}
}

// idSet is a set of entity identifiers.
type idSet map[string]struct{}

// Query composes optional filters; nil/zero fields are skipped.
// All present filters must match (set intersection).
type Query struct {
	Name     string
	Type     string
	Category string
	Tag      string
	Bounds   *types.BoundingBox
	Near     *NearFilter
	Visible  *bool
}

// NearFilter restricts results to a great-circle radius around a point.
type NearFilter struct {
	Point  types.Point
	Radius float64 // meters
}

// Registry is the indexed entity store. It is safe for concurrent use,
// though the pipeline mutates it from a single logical thread per session.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*types.Entity
	byName   map[string]idSet // case-folded alias -> ids
	byType   map[string]idSet
	grid     map[gridKey]idSet
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entities: make(map[string]*types.Entity),
		byName:   make(map[string]idSet),
		byType:   make(map[string]idSet),
		grid:     make(map[gridKey]idSet),
	}
}

// Register adds or replaces an entity. The display name is folded into the
// alias index, so a lookup by name always succeeds. Spatial bounds must be
// axis-aligned with min <= max on every axis.
func (r *Registry) Register(e *types.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEntity)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: missing display name", ErrInvalidEntity)
	}
	if !e.Bounds.Valid() {
		return fmt.Errorf("%w: bounds min > max", ErrInvalidEntity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entities[e.ID]; ok {
		r.unindexLocked(old)
		e.CreatedAt = old.CreatedAt
	} else {
		e.CreatedAt = time.Now()
	}
	e.UpdatedAt = time.Now()

	// The name lives in Aliases so every name index and alias scan sees
	// it. HasAlias matches the name itself, so check the slice directly.
	hasName := false
	for _, a := range e.Aliases {
		if strings.EqualFold(strings.TrimSpace(a), e.Name) {
			hasName = true
			break
		}
	}
	if !hasName {
		e.Aliases = append(e.Aliases, e.Name)
	}

	r.entities[e.ID] = e
	r.indexLocked(e)

	logging.RegistryDebug("registered entity %s (%s, type=%s, aliases=%d)", e.ID, e.Name, e.Type, len(e.Aliases))
	return nil
}

// Unregister removes an entity, reporting whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[id]
	if !ok {
		return false
	}
	r.unindexLocked(e)
	delete(r.entities, id)
	return true
}

// Get returns the entity with the given id.
func (r *Registry) Get(id string) (*types.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	return e, ok
}

// Count returns the number of registered entities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Clear removes every entity and index entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = make(map[string]*types.Entity)
	r.byName = make(map[string]idSet)
	r.byType = make(map[string]idSet)
	r.grid = make(map[gridKey]idSet)
}

// indexLocked adds e to all indexes. Caller holds the write lock.
func (r *Registry) indexLocked(e *types.Entity) {
	for _, alias := range e.Aliases {
		key := strings.ToLower(strings.TrimSpace(alias))
		if key == "" {
			continue
		}
		if r.byName[key] == nil {
			r.byName[key] = make(idSet)
		}
		r.byName[key][e.ID] = struct{}{}
	}

	if r.byType[e.Type] == nil {
		r.byType[e.Type] = make(idSet)
	}
	r.byType[e.Type][e.ID] = struct{}{}

	cell := cellFor(e.Center)
	if r.grid[cell] == nil {
		r.grid[cell] = make(idSet)
	}
	r.grid[cell][e.ID] = struct{}{}
}

// unindexLocked removes e from all indexes. Caller holds the write lock.
func (r *Registry) unindexLocked(e *types.Entity) {
	for _, alias := range e.Aliases {
		key := strings.ToLower(strings.TrimSpace(alias))
		if set, ok := r.byName[key]; ok {
			delete(set, e.ID)
			if len(set) == 0 {
				delete(r.byName, key)
			}
		}
	}
	if set, ok := r.byType[e.Type]; ok {
		delete(set, e.ID)
		if len(set) == 0 {
			delete(r.byType, e.Type)
		}
	}
	cell := cellFor(e.Center)
	if set, ok := r.grid[cell]; ok {
		delete(set, e.ID)
		if len(set) == 0 {
			delete(r.grid, cell)
		}
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// Find returns entities matching every filter present in q.
// An empty intersection yields an empty slice, never an error.
func (r *Registry) Find(q Query) []*types.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Start from the narrowest available index. A filter that hits no
	// index entry constrains the candidate set to empty; only absent
	// filters leave it unconstrained.
	var candidates idSet
	constrained := false
	apply := func(s idSet) {
		if !constrained {
			candidates = copySet(s)
			constrained = true
			return
		}
		candidates = intersect(candidates, s)
	}
	if q.Name != "" {
		apply(r.byName[strings.ToLower(strings.TrimSpace(q.Name))])
	}
	if q.Type != "" {
		apply(r.byType[q.Type])
	}
	if q.Near != nil {
		apply(r.cellsAroundLocked(q.Near.Point, q.Near.Radius))
	}

	var pool []*types.Entity
	if constrained {
		pool = make([]*types.Entity, 0, len(candidates))
		for id := range candidates {
			pool = append(pool, r.entities[id])
		}
	} else {
		pool = make([]*types.Entity, 0, len(r.entities))
		for _, e := range r.entities {
			pool = append(pool, e)
		}
	}

	out := pool[:0]
	for _, e := range pool {
		if q.Category != "" && !strings.EqualFold(e.Semantics.Category, q.Category) {
			continue
		}
		if q.Tag != "" && !hasTag(e, q.Tag) {
			continue
		}
		if q.Bounds != nil && !q.Bounds.OverlapsHorizontally(e.Bounds) {
			continue
		}
		if q.Near != nil && Distance(q.Near.Point, e.Center) > q.Near.Radius {
			continue
		}
		if q.Visible != nil && e.Visible != *q.Visible {
			continue
		}
		out = append(out, e)
	}

	sortByID(out)
	return out
}

// FindByName returns every entity whose name or alias equals name,
// case-insensitively.
func (r *Registry) FindByName(name string) []*types.Entity {
	return r.Find(Query{Name: name})
}

// FindByType returns every entity of the given type tag.
func (r *Registry) FindByType(typeTag string) []*types.Entity {
	return r.Find(Query{Type: typeTag})
}

// FindByCategory returns every entity with the given semantic category.
func (r *Registry) FindByCategory(category string) []*types.Entity {
	return r.Find(Query{Category: category})
}

// FindByBounds returns entities whose bounds overlap the given box
// horizontally.
func (r *Registry) FindByBounds(bounds types.BoundingBox) []*types.Entity {
	return r.Find(Query{Bounds: &bounds})
}

// FindNear returns entities whose great-circle distance from point is
// <= radius meters. Boundary entities at exactly radius are included.
func (r *Registry) FindNear(point types.Point, radius float64) []*types.Entity {
	return r.Find(Query{Near: &NearFilter{Point: point, Radius: radius}})
}

// All returns every registered entity, sorted by id.
func (r *Registry) All() []*types.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sortByID(out)
	return out
}

// FindSpatialRelation returns entities standing in the given relation to
// the target entity. The target itself is never included.
func (r *Registry) FindSpatialRelation(targetID string, relation SpatialRelation) ([]*types.Entity, error) {
	r.mu.RLock()
	target, ok := r.entities[targetID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, targetID)
	}

	var out []*types.Entity
	for _, e := range r.All() {
		if e.ID == targetID {
			continue
		}
		match := false
		switch relation {
		case RelationNear:
			match = Distance(target.Center, e.Center) <= nearThresholdMeters
		case RelationAbove:
			match = e.Bounds.MinHeight >= target.Bounds.MaxHeight &&
				e.Bounds.OverlapsHorizontally(target.Bounds)
		case RelationBelow:
			match = e.Bounds.MaxHeight <= target.Bounds.MinHeight &&
				e.Bounds.OverlapsHorizontally(target.Bounds)
		case RelationInside:
			match = target.Bounds.Contains(e.Bounds)
		case RelationAdjacent:
			match = boxGapMeters(target.Bounds, e.Bounds) <= adjacentToleranceMeters
		default:
			return nil, fmt.Errorf("unknown spatial relation: %s", relation)
		}
		if match {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// UpdateVisibility sets the visibility flag in place.
func (r *Registry) UpdateVisibility(id string, visible bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	e.Visible = visible
	e.UpdatedAt = time.Now()
	return nil
}

// UpdateSpatial replaces the spatial envelope and re-indexes the grid cell.
func (r *Registry) UpdateSpatial(id string, bounds types.BoundingBox, center types.Point) error {
	if !bounds.Valid() {
		return fmt.Errorf("%w: bounds min > max", ErrInvalidEntity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}

	oldCell := cellFor(e.Center)
	newCell := cellFor(center)
	if oldCell != newCell {
		if set, ok := r.grid[oldCell]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.grid, oldCell)
			}
		}
		if r.grid[newCell] == nil {
			r.grid[newCell] = make(idSet)
		}
		r.grid[newCell][id] = struct{}{}
	}

	e.Bounds = bounds
	e.Center = center
	e.UpdatedAt = time.Now()
	return nil
}

// UpdateSemantic replaces the semantic block.
func (r *Registry) UpdateSemantic(id string, sem types.Semantics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	e.Semantics = sem
	e.UpdatedAt = time.Now()
	return nil
}

// =============================================================================
// SPATIAL MATH
// =============================================================================

// Distance returns the great-circle (haversine) distance between two
// points in meters.
func Distance(a, b types.Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// cellsAroundLocked collects candidate ids from every grid cell that could
// contain a point within radius meters of p. Caller holds at least the
// read lock.
func (r *Registry) cellsAroundLocked(p types.Point, radius float64) idSet {
	// One degree of latitude is ~111 km; longitude shrinks with latitude.
	latExtent := radius / 111320.0
	cosLat := math.Cos(p.Latitude * math.Pi / 180)
	lonExtent := latExtent
	if cosLat > 1e-6 {
		lonExtent = latExtent / cosLat
	}

	minCell := cellFor(types.Point{Longitude: p.Longitude - lonExtent, Latitude: p.Latitude - latExtent})
	maxCell := cellFor(types.Point{Longitude: p.Longitude + lonExtent, Latitude: p.Latitude + latExtent})

	out := make(idSet)
	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for id := range r.grid[gridKey{X: x, Y: y}] {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

// boxGapMeters approximates the horizontal gap between two boxes in meters.
// Overlapping boxes have a gap of zero.
func boxGapMeters(a, b types.BoundingBox) float64 {
	lonGap := math.Max(0, math.Max(b.West-a.East, a.West-b.East))
	latGap := math.Max(0, math.Max(b.South-a.North, a.South-b.North))

	midLat := (a.Center().Latitude + b.Center().Latitude) / 2
	lonMeters := lonGap * 111320.0 * math.Cos(midLat*math.Pi/180)
	latMeters := latGap * 111320.0
	return math.Hypot(lonMeters, latMeters)
}

// copySet clones a set; nil input yields an empty (but constrained) set.
func copySet(s idSet) idSet {
	out := make(idSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// intersect returns the intersection of two sets.
func intersect(a, b idSet) idSet {
	out := make(idSet)
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func hasTag(e *types.Entity, tag string) bool {
	for _, t := range e.Semantics.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func sortByID(entities []*types.Entity) {
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
}
