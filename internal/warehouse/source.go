package warehouse

import (
	"sort"

	"github.com/leapstack-labs/leapmetrics/internal/dag"
	"github.com/leapstack-labs/leapmetrics/internal/datasource"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// source is the warehouse's own copy of a ready datasource's active tables
// and join graph. Planning reads only these copies.
type source struct {
	name   string
	tables map[string]*core.Table
	names  []string // sorted
	graph  *dag.Graph
}

func snapshot(ds *datasource.DataSource) *source {
	src := &source{
		name:   ds.Name(),
		tables: make(map[string]*core.Table),
		graph:  ds.Graph(),
	}
	for _, t := range ds.Tables() {
		src.tables[t.Name] = t
		src.names = append(src.names, t.Name)
	}
	sort.Strings(src.names)
	return src
}

func (s *source) table(name string) (*core.Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// tablesOfType returns the tables of typ sorted by name.
func (s *source) tablesOfType(typ core.TableType) []*core.Table {
	var out []*core.Table
	for _, name := range s.names {
		if t := s.tables[name]; t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

// tablesWithField returns the tables of typ with an active column binding field.
func (s *source) tablesWithField(field string, typ core.TableType) []*core.Table {
	var out []*core.Table
	for _, t := range s.tablesOfType(typ) {
		if t.HasField(field) {
			out = append(out, t)
		}
	}
	return out
}
