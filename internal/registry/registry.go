// Package registry provides the field registry: the namespace of metrics and
// dimensions shared by a schema source or a whole warehouse.
package registry

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// FieldRegistry maps field names to their definitions.
// A name is registered at most once; later registrations never overwrite
// an existing definition unless forced.
type FieldRegistry struct {
	mu sync.RWMutex

	// byName maps field names to definitions: "revenue" → *Field
	byName map[string]*core.Field

	// origin records where each field was first defined, for error messages
	origin map[string]string
}

// NewFieldRegistry creates a new empty registry.
func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{
		byName: make(map[string]*core.Field),
		origin: make(map[string]string),
	}
}

// Register adds a field unless one of the same name exists.
// It reports whether the field was added. Registering a name that already
// exists with the other kind is a field conflict.
func (r *FieldRegistry) Register(f *core.Field, origin string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[f.Name]; ok {
		if existing.Kind != f.Kind {
			return false, core.ErrConfig(core.ErrFieldConflict,
				"%q is a %s in %s and a %s in %s", f.Name, existing.Kind, r.origin[f.Name], f.Kind, origin)
		}
		return false, nil
	}
	r.byName[f.Name] = f
	r.origin[f.Name] = origin
	return true, nil
}

// Force adds or replaces a field definition.
func (r *FieldRegistry) Force(f *core.Field, origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[f.Name] = f
	r.origin[f.Name] = origin
}

// Merge registers a copy of every field of other that is not yet present.
// Existing definitions win; a kind mismatch is a field conflict.
func (r *FieldRegistry) Merge(other View) error {
	for _, f := range other.Fields() {
		if _, err := r.Register(f, other.Origin(f.Name)); err != nil {
			return err
		}
	}
	return nil
}

// GetField returns a field of either kind.
func (r *FieldRegistry) GetField(name string) (*core.Field, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

// GetMetric returns the named field only when it is a metric.
func (r *FieldRegistry) GetMetric(name string) (*core.Field, bool) {
	f, ok := r.GetField(name)
	if !ok || !f.IsMetric() {
		return nil, false
	}
	return f, true
}

// GetDimension returns the named field only when it is a dimension.
func (r *FieldRegistry) GetDimension(name string) (*core.Field, bool) {
	f, ok := r.GetField(name)
	if !ok || !f.IsDimension() {
		return nil, false
	}
	return f, true
}

// HasField reports whether a field of either kind exists.
func (r *FieldRegistry) HasField(name string) bool {
	_, ok := r.GetField(name)
	return ok
}

// HasMetric reports whether name is a metric.
func (r *FieldRegistry) HasMetric(name string) bool {
	_, ok := r.GetMetric(name)
	return ok
}

// HasDimension reports whether name is a dimension.
func (r *FieldRegistry) HasDimension(name string) bool {
	_, ok := r.GetDimension(name)
	return ok
}

// Origin returns where the field was first defined.
func (r *FieldRegistry) Origin(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.origin[name]
}

// Fields returns all fields sorted by name.
func (r *FieldRegistry) Fields() []*core.Field {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fields := make([]*core.Field, 0, len(r.byName))
	for _, f := range r.byName {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Name < fields[j].Name
	})
	return fields
}

// MetricNames returns the sorted metric names.
func (r *FieldRegistry) MetricNames() []string {
	return r.names(core.FieldMetric)
}

// DimensionNames returns the sorted dimension names.
func (r *FieldRegistry) DimensionNames() []string {
	return r.names(core.FieldDimension)
}

func (r *FieldRegistry) names(kind core.FieldKind) []string {
	var out []string
	for _, f := range r.Fields() {
		if f.Kind == kind {
			out = append(out, f.Name)
		}
	}
	return out
}

// Count returns the number of registered fields.
func (r *FieldRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// View returns a read-only view of the registry.
func (r *FieldRegistry) View() View {
	return View{r: r}
}

// View exposes the lookups of a FieldRegistry without its mutators.
// Every field it returns is a copy.
type View struct {
	r *FieldRegistry
}

// GetField returns a copy of a field of either kind.
func (v View) GetField(name string) (*core.Field, bool) {
	f, ok := v.r.GetField(name)
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// GetMetric returns a copy of the named metric.
func (v View) GetMetric(name string) (*core.Field, bool) {
	if !v.r.HasMetric(name) {
		return nil, false
	}
	return v.GetField(name)
}

// GetDimension returns a copy of the named dimension.
func (v View) GetDimension(name string) (*core.Field, bool) {
	if !v.r.HasDimension(name) {
		return nil, false
	}
	return v.GetField(name)
}

// HasField reports whether a field of either kind exists.
func (v View) HasField(name string) bool { return v.r.HasField(name) }

// HasMetric reports whether name is a metric.
func (v View) HasMetric(name string) bool { return v.r.HasMetric(name) }

// HasDimension reports whether name is a dimension.
func (v View) HasDimension(name string) bool { return v.r.HasDimension(name) }

// Origin returns where the field was first defined.
func (v View) Origin(name string) string {
	if v.r == nil {
		return ""
	}
	return v.r.Origin(name)
}

// Fields returns copies of all fields sorted by name.
func (v View) Fields() []*core.Field {
	if v.r == nil {
		return nil
	}
	fields := v.r.Fields()
	for i, f := range fields {
		fields[i] = f.Clone()
	}
	return fields
}

// MetricNames returns the sorted metric names.
func (v View) MetricNames() []string {
	if v.r == nil {
		return nil
	}
	return v.r.MetricNames()
}

// DimensionNames returns the sorted dimension names.
func (v View) DimensionNames() []string {
	if v.r == nil {
		return nil
	}
	return v.r.DimensionNames()
}

// Count returns the number of fields.
func (v View) Count() int {
	if v.r == nil {
		return 0
	}
	return v.r.Count()
}

// Chain looks names up in each scope in order, returning the first hit.
type Chain []interface {
	GetField(name string) (*core.Field, bool)
}

// GetField implements the binder's field scope.
func (c Chain) GetField(name string) (*core.Field, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if f, ok := s.GetField(name); ok {
			return f, true
		}
	}
	return nil, false
}
