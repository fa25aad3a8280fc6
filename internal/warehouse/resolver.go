package warehouse

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/dag"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// route reaches one grain field from the anchor: the path walks parent
// edges and ends at the first table binding the field.
type route struct {
	path []string
	ref  ColumnRef
}

// cover is the cheapest route choice for one anchor.
type cover struct {
	source *source
	anchor *core.Table
	routes map[string]route
	tables []string // sorted
	edges  int
}

// better orders covers: fewer tables, fewer edges, lexical table list, then
// source name.
func (c *cover) better(o *cover) bool {
	if o == nil {
		return true
	}
	if len(c.tables) != len(o.tables) {
		return len(c.tables) < len(o.tables)
	}
	if c.edges != o.edges {
		return c.edges < o.edges
	}
	if a, b := strings.Join(c.tables, ","), strings.Join(o.tables, ","); a != b {
		return a < b
	}
	return c.source.name < o.source.name
}

// GetDimensionTableSet finds the cheapest connected set of DIMENSION tables
// in one source that covers every grain dimension.
func (wh *Warehouse) GetDimensionTableSet(grain []string) (*TableSet, error) {
	grain = normalize(grain)
	if len(grain) == 0 {
		return nil, &core.UnsupportedGrainError{Reason: "empty grain"}
	}
	if err := wh.checkDimensions("", grain); err != nil {
		return nil, err
	}

	isDim := func(t *core.Table) bool { return t.Type == core.TableDimension }
	var best *cover
	closest := grain
	for _, name := range wh.names {
		src := wh.frozen[name]
		for _, anchor := range src.tablesOfType(core.TableDimension) {
			if !bindsAny(anchor, grain) {
				continue
			}
			c, missing := search(src, anchor, grain, isDim)
			if c == nil {
				closest = nearer(closest, missing)
				continue
			}
			if c.better(best) {
				best = c
			}
		}
	}
	if best == nil {
		return nil, &core.UnsupportedGrainError{
			Grain:   grain,
			Missing: closest,
			Reason:  "no join-connected dimension tables cover the grain",
		}
	}

	ts := best.tableSet(grain, nil)
	wh.logger.Debug("resolved dimension table set",
		"grain", grain, "datasource", ts.DataSource, "tables", ts.Tables)
	return ts, nil
}

// GetMetricTableSet finds the cheapest set anchored at a METRIC table
// binding metric that reaches every grain dimension over parent joins.
func (wh *Warehouse) GetMetricTableSet(metric string, grain []string) (*TableSet, error) {
	grain = normalize(grain)
	if !wh.fields.HasMetric(metric) {
		return nil, &core.UnsupportedGrainError{
			Metric: metric,
			Grain:  grain,
			Reason: "not a metric",
			Cause:  core.ErrUnknownField,
		}
	}
	if err := wh.checkDimensions(metric, grain); err != nil {
		return nil, err
	}

	var best *cover
	closest := grain
	for _, name := range wh.names {
		src := wh.frozen[name]
		for _, anchor := range src.tablesWithField(metric, core.TableMetric) {
			c, missing := search(src, anchor, grain, nil)
			if c == nil {
				closest = nearer(closest, missing)
				continue
			}
			if c.better(best) {
				best = c
			}
		}
	}
	if best == nil {
		return nil, &core.UnsupportedGrainError{
			Metric:  metric,
			Grain:   grain,
			Missing: closest,
			Reason:  "no metric table reaches the grain",
		}
	}

	ts := best.tableSet(grain, []string{metric})
	col, _ := best.anchor.FieldColumn(metric)
	ts.FieldMap[metric] = columnRef(best.anchor.Name, col, metric)
	wh.logger.Debug("resolved metric table set",
		"metric", metric, "grain", grain, "datasource", ts.DataSource, "tables", ts.Tables)
	return ts, nil
}

// GetSupportedDimensions returns the dimensions every metric can reach: the
// intersection of each metric's reachable dimensions, sorted.
func (wh *Warehouse) GetSupportedDimensions(metrics []string) ([]string, error) {
	metrics = normalize(metrics)
	var supported map[string]bool
	for _, m := range metrics {
		if !wh.fields.HasMetric(m) {
			return nil, &core.UnsupportedGrainError{Metric: m, Reason: "not a metric", Cause: core.ErrUnknownField}
		}
		reach := wh.reachableDimensions(m)
		if supported == nil {
			supported = reach
			continue
		}
		for d := range supported {
			if !reach[d] {
				delete(supported, d)
			}
		}
	}

	out := make([]string, 0, len(supported))
	for d := range supported {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// reachableDimensions collects the dimensions bound anywhere on a metric
// table binding m or its ancestors. A dimension reachable only through an
// incomplete join is left out.
func (wh *Warehouse) reachableDimensions(m string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range wh.names {
		src := wh.frozen[name]
		g := src.graph
		for _, anchor := range src.tablesWithField(m, core.TableMetric) {
			ids := append([]string{anchor.Name}, g.GetUpstreamNodes(anchor.Name)...)
			for _, id := range ids {
				t, _ := src.table(id)
				for _, f := range t.FieldNames() {
					if out[f] || !wh.fields.HasDimension(f) {
						continue
					}
					if id == anchor.Name || len(routes(src, anchor, f, nil)) > 0 {
						out[f] = true
					}
				}
			}
		}
	}
	return out
}

func (wh *Warehouse) checkDimensions(metric string, grain []string) error {
	var unknown []string
	for _, d := range grain {
		if !wh.fields.HasDimension(d) {
			unknown = append(unknown, d)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return &core.UnsupportedGrainError{
		Metric:  metric,
		Grain:   grain,
		Missing: unknown,
		Reason:  "not a dimension",
		Cause:   core.ErrUnknownField,
	}
}

// search finds the cheapest cover of grain from anchor. allow restricts the
// tables a route may enter; nil allows all. When some field has no route it
// returns those fields instead.
func search(src *source, anchor *core.Table, grain []string, allow func(*core.Table) bool) (*cover, []string) {
	options := make(map[string][]route, len(grain))
	var missing []string
	for _, f := range grain {
		rs := routes(src, anchor, f, allow)
		if len(rs) == 0 {
			missing = append(missing, f)
			continue
		}
		options[f] = rs
	}
	if len(missing) > 0 {
		return nil, missing
	}

	// Fewest options first prunes earliest.
	order := append([]string(nil), grain...)
	sort.SliceStable(order, func(i, j int) bool { return len(options[order[i]]) < len(options[order[j]]) })

	tables := map[string]int{anchor.Name: 1}
	edges := make(map[[2]string]int)
	chosen := make(map[string]route, len(grain))
	var best *cover

	var walk func(i int)
	walk = func(i int) {
		if best != nil && (len(tables) > len(best.tables) ||
			(len(tables) == len(best.tables) && len(edges) > best.edges)) {
			return
		}
		if i == len(order) {
			c := &cover{source: src, anchor: anchor, tables: sortedKeys(tables), edges: len(edges)}
			if c.better(best) {
				c.routes = make(map[string]route, len(chosen))
				for f, r := range chosen {
					c.routes[f] = r
				}
				best = c
			}
			return
		}
		f := order[i]
		for _, r := range options[f] {
			chosen[f] = r
			for j, id := range r.path {
				tables[id]++
				if j > 0 {
					edges[[2]string{r.path[j-1], id}]++
				}
			}
			walk(i + 1)
			for j, id := range r.path {
				release(tables, id)
				if j > 0 {
					release(edges, [2]string{r.path[j-1], id})
				}
			}
		}
		delete(chosen, f)
	}
	walk(0)
	return best, nil
}

func release[K comparable](m map[K]int, k K) {
	if m[k]--; m[k] == 0 {
		delete(m, k)
	}
}

// routes lists the distinct routes from anchor to tables binding field.
func routes(src *source, anchor *core.Table, field string, allow func(*core.Table) bool) []route {
	g := src.graph
	allowID := func(id string) bool {
		t, ok := src.table(id)
		return ok && (allow == nil || allow(t))
	}

	seen := make(map[string]bool)
	var out []route
	for _, id := range append([]string{anchor.Name}, g.GetUpstreamNodes(anchor.Name)...) {
		t, _ := src.table(id)
		if !allowID(id) || !t.HasField(field) {
			continue
		}
		for _, path := range g.AllPaths(anchor.Name, id, allowID) {
			r, ok := routeFor(src, path, field)
			if !ok || incomplete(anchor, g, r.path) {
				continue
			}
			key := strings.Join(r.path, ">")
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

// routeFor cuts path at the first table binding field.
func routeFor(src *source, path []string, field string) (route, bool) {
	for i, id := range path {
		t, _ := src.table(id)
		if c, ok := t.FieldColumn(field); ok {
			return route{path: path[:i+1], ref: columnRef(id, c, field)}, true
		}
	}
	return route{}, false
}

// incomplete reports whether the first join of path leaves the anchor over
// a key bound to one of the anchor's incomplete dimensions.
func incomplete(anchor *core.Table, g *dag.Graph, path []string) bool {
	if len(path) < 2 || len(anchor.IncompleteDimensions) == 0 {
		return false
	}
	e, ok := g.GetEdge(path[1], path[0])
	if !ok {
		return false
	}
	for _, k := range e.Keys {
		c, ok := anchor.ActiveColumn(k)
		if !ok {
			continue
		}
		for _, f := range c.Fields {
			for _, d := range anchor.IncompleteDimensions {
				if f == d {
					return true
				}
			}
		}
	}
	return false
}

// tableSet turns the chosen routes into a TableSet.
func (c *cover) tableSet(grain, targets []string) *TableSet {
	g := c.source.graph
	ts := &TableSet{
		DataSource: c.source.name,
		Anchor:     c.anchor.Name,
		Tables:     []string{c.anchor.Name},
		Grain:      grain,
		Targets:    targets,
		FieldMap:   make(map[string]ColumnRef, len(grain)+len(targets)),
	}

	pending := make(map[[2]string]bool)
	for _, f := range grain {
		r := c.routes[f]
		ts.FieldMap[f] = r.ref
		for j := 1; j < len(r.path); j++ {
			pending[[2]string{r.path[j-1], r.path[j]}] = true
		}
	}

	// Emit joins breadth first from the anchor, each in lexical order.
	in := map[string]bool{c.anchor.Name: true}
	for len(pending) > 0 {
		var next [][2]string
		for e := range pending {
			if in[e[0]] {
				next = append(next, e)
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Slice(next, func(i, j int) bool {
			if next[i][0] != next[j][0] {
				return next[i][0] < next[j][0]
			}
			return next[i][1] < next[j][1]
		})
		for _, e := range next {
			delete(pending, e)
			if in[e[1]] {
				continue
			}
			edge, _ := g.GetEdge(e[1], e[0])
			ts.Joins = append(ts.Joins, JoinPart{Child: e[0], Parent: e[1], Keys: edge.Keys})
			ts.Tables = append(ts.Tables, e[1])
			in[e[1]] = true
		}
	}
	return ts
}

func bindsAny(t *core.Table, fields []string) bool {
	for _, f := range fields {
		if t.HasField(f) {
			return true
		}
	}
	return false
}

// nearer keeps the shorter missing list, preferring the earlier one on ties.
func nearer(current, missing []string) []string {
	if len(missing) < len(current) {
		return missing
	}
	return current
}

// normalize dedupes and sorts requested names.
func normalize(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
