package datasource

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/dag"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// link is a discovered parent/child join.
type link struct {
	parent, child string
	keys          []string
	explicit      bool
}

// containsKey reports whether every primary key column of p is an active
// column of c.
func containsKey(p, c *core.Table) bool {
	if len(p.PrimaryKey) == 0 {
		return false
	}
	for _, k := range p.PrimaryKey {
		if _, ok := c.ActiveColumn(k); !ok {
			return false
		}
	}
	return true
}

// canParent applies the direction rule that a metric table never parents a
// dimension table.
func canParent(p, c *core.Table) bool {
	return !(p.Type == core.TableMetric && c.Type == core.TableDimension)
}

// prefer picks the parent when two tables contain each other's key:
// shorter key, then dimension before metric, then lexical order.
func prefer(a, b *core.Table) bool {
	if len(a.PrimaryKey) != len(b.PrimaryKey) {
		return len(a.PrimaryKey) < len(b.PrimaryKey)
	}
	if a.Type != b.Type {
		return a.Type == core.TableDimension
	}
	return a.Name < b.Name
}

// structuralLinks derives parent/child links by key containment. tables must
// be sorted by name. Explicit parents are included only when their key is
// contained; buildGraph reports the invalid ones.
func structuralLinks(tables []*core.Table) []link {
	byName := make(map[string]*core.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	var links []link
	explicitChild := make(map[[2]string]bool)
	for _, c := range tables {
		if c.Parent == "" {
			continue
		}
		if p, ok := byName[c.Parent]; ok && p.Name != c.Name && containsKey(p, c) {
			links = append(links, link{parent: p.Name, child: c.Name, keys: append([]string(nil), p.PrimaryKey...), explicit: true})
			explicitChild[[2]string{p.Name, c.Name}] = true
		}
	}

	for i, a := range tables {
		for _, b := range tables[i+1:] {
			if explicitChild[[2]string{a.Name, b.Name}] || explicitChild[[2]string{b.Name, a.Name}] {
				continue
			}
			ab := containsKey(a, b) && canParent(a, b)
			ba := containsKey(b, a) && canParent(b, a)
			if ab && ba {
				if prefer(a, b) {
					ba = false
				} else {
					ab = false
				}
			}
			switch {
			case ab:
				links = append(links, link{parent: a.Name, child: b.Name, keys: append([]string(nil), a.PrimaryKey...)})
			case ba:
				links = append(links, link{parent: b.Name, child: a.Name, keys: append([]string(nil), b.PrimaryKey...)})
			}
		}
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].child != links[j].child {
			return links[i].child < links[j].child
		}
		return links[i].parent < links[j].parent
	})
	return links
}

// bindOrder returns table names parents first, falling back to name order
// when the links contain a cycle. The cycle is reported by buildGraph.
func bindOrder(tables []*core.Table, links []link) []string {
	g := dag.NewGraph()
	names := make([]string, len(tables))
	for i, t := range tables {
		g.AddNode(t.Name, t)
		names[i] = t.Name
	}
	for _, l := range links {
		_ = g.AddEdge(l.parent, l.child, l.keys)
	}
	sorted, err := g.TopologicalSort()
	if err != nil {
		return names
	}
	order := make([]string, len(sorted))
	for i, n := range sorted {
		order[i] = n.ID
	}
	return order
}

func parentTables(child string, links []link, tables map[string]*core.Table) []*core.Table {
	var out []*core.Table
	for _, l := range links {
		if l.child == child {
			out = append(out, tables[l.parent])
		}
	}
	return out
}

// buildGraph runs the join graph builder over the active tables of a bound
// source and validates every link.
func buildGraph(ds string, tables []*core.Table, logger *slog.Logger) (*dag.Graph, error) {
	byName := make(map[string]*core.Table, len(tables))
	g := dag.NewGraph()
	for _, t := range tables {
		byName[t.Name] = t
		g.AddNode(t.Name, nil)
	}

	for _, c := range tables {
		if c.Parent == "" {
			continue
		}
		p, ok := byName[c.Parent]
		if !ok {
			return nil, core.ErrConfig(core.ErrInvalidConfig, "parent table %q does not exist or is inactive", c.Parent).At(ds, c.Name, "")
		}
		if p.Name == c.Name {
			return nil, core.ErrConfig(core.ErrInvalidConfig, "table cannot be its own parent").At(ds, c.Name, "")
		}
		if !containsKey(p, c) {
			return nil, core.ErrConfig(core.ErrInvalidConfig,
				"parent %q primary key [%s] is not contained in the table's active columns",
				p.Name, strings.Join(p.PrimaryKey, ", ")).At(ds, c.Name, "")
		}
	}

	for _, l := range structuralLinks(tables) {
		p, c := byName[l.parent], byName[l.child]
		for _, k := range l.keys {
			pc, _ := p.ActiveColumn(k)
			cc, _ := c.ActiveColumn(k)
			pt, ct := pc.EffectiveType(), cc.EffectiveType()
			if pt.IsZero() || ct.IsZero() {
				continue
			}
			if pt.Family() != ct.Family() {
				return nil, core.ErrConfig(core.ErrKeyTypeMismatch,
					"%s.%s is %s but %s.%s is %s", p.Name, k, pt.String(), c.Name, k, ct.String()).At(ds, c.Name, k)
			}
		}
		if err := g.AddEdge(l.parent, l.child, l.keys); err != nil {
			return nil, core.ErrConfig(core.ErrInvalidConfig, "%v", err).At(ds, l.child, "")
		}
		e, _ := g.GetEdge(l.parent, l.child)
		logger.Debug("join edge", "edge", e.String(), "explicit", l.explicit)
	}

	if cyclic, path := g.HasCycle(); cyclic {
		return nil, core.ErrConfig(core.ErrGraphCycle, "%s", strings.Join(path, " -> ")).At(ds, "", "")
	}
	logger.Debug("join graph built", "tables", g.NodeCount(), "edges", g.EdgeCount(), "roots", g.GetRoots())
	return g, nil
}
