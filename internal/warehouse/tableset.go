package warehouse

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/aggregation"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// ColumnRef locates the column a field is read from. Expression is set for
// fields derived from the column, such as type conversion fields.
type ColumnRef struct {
	Table      string
	Column     string
	Expression string
}

func (r ColumnRef) String() string {
	if r.Expression != "" {
		return r.Table + ": " + r.Expression
	}
	return r.Table + "." + r.Column
}

func columnRef(table string, c *core.Column, field string) ColumnRef {
	expr, _ := c.Formula(field)
	return ColumnRef{Table: table, Column: c.Name, Expression: expr}
}

// JoinPart joins Child to Parent on the parent's key columns.
type JoinPart struct {
	Child  string
	Parent string
	Keys   []string
}

// TableSet is a joinable group of tables in one source that can project
// the requested fields at a single grain. It is built per request.
type TableSet struct {
	DataSource string

	// Anchor is the table every join starts from.
	Anchor string

	// Tables starts with the anchor, followed by joined tables in join order.
	Tables []string

	// Joins are ordered so each child is already part of the set.
	Joins []JoinPart

	Grain []string

	// Targets are the metrics the set was planned for, if any.
	Targets []string

	// FieldMap maps every grain field and target to its column.
	FieldMap map[string]ColumnRef
}

// Len returns the number of tables in the set.
func (ts *TableSet) Len() int { return len(ts.Tables) }

// CoveredFields returns the mapped field names, sorted.
func (ts *TableSet) CoveredFields() []string {
	out := make([]string, 0, len(ts.FieldMap))
	for f := range ts.FieldMap {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// CoveredMetrics returns the warehouse metrics bound on the anchor table,
// sorted. Any of them can be read from the set at its grain.
func (ts *TableSet) CoveredMetrics(wh *Warehouse) []string {
	src, ok := wh.frozen[ts.DataSource]
	if !ok {
		return nil
	}
	anchor, ok := src.table(ts.Anchor)
	if !ok {
		return nil
	}
	var out []string
	for _, name := range anchor.FieldNames() {
		if wh.HasMetric(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// JoinKeysFor returns the keys joining table into the set. The anchor has none.
func (ts *TableSet) JoinKeysFor(table string) []string {
	for _, j := range ts.Joins {
		if j.Parent == table {
			return j.Keys
		}
	}
	return nil
}

// Projection is how a metric is selected from a table set.
type Projection struct {
	Metric     string
	Expression string

	// Wrapped is set when the expression was wrapped in the metric's
	// aggregation because it carried none of its own.
	Wrapped bool
}

// Project builds the select expression of metric over the set. A formula
// that already aggregates is used as is; anything else is wrapped in the
// metric's aggregation. A nil classifier uses aggregation.Default.
func (ts *TableSet) Project(metric *core.Field, classifier *aggregation.Registry) Projection {
	if classifier == nil {
		classifier = aggregation.Default
	}
	expr := metric.Formula
	if expr == "" {
		if ref, ok := ts.FieldMap[metric.Name]; ok {
			expr = ref.String()
		} else {
			expr = metric.Name
		}
	}
	if classifier.Contains(expr) {
		return Projection{Metric: metric.Name, Expression: expr}
	}
	agg := strings.ToUpper(metric.AggregationOrDefault())
	return Projection{Metric: metric.Name, Expression: agg + "(" + expr + ")", Wrapped: true}
}
