package binder

import (
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// defaultFieldNames picks the field names for an unbound column.
// The second result reports whether they were inherited from a parent key.
func defaultFieldNames(t *core.Table, col *core.Column, opts Options) ([]string, bool) {
	if names := inheritedFields(col, opts.Parents, opts.Scope); len(names) > 0 {
		return names, true
	}
	if t.IsPrimaryKey(col.Name) || isNameColumn(col.Name) {
		return []string{shortName(t, col.Name, opts.Tables)}, false
	}
	return []string{QualifiedName(t.Name, col.Name)}, false
}

// inheritedFields returns the non-metric fields of the parent key column
// sharing col's name.
func inheritedFields(col *core.Column, parents []*core.Table, scope FieldScope) []string {
	for _, p := range parents {
		if !p.IsPrimaryKey(col.Name) {
			continue
		}
		pc, ok := p.ActiveColumn(col.Name)
		if !ok {
			continue
		}
		var names []string
		for _, name := range pc.Fields {
			if scope != nil {
				if f, ok := scope.GetField(name); ok && f.IsMetric() {
					continue
				}
			}
			names = append(names, name)
		}
		if len(names) > 0 {
			return names
		}
	}
	return nil
}

// shortName keeps the bare column name unless another active table has a
// column of the same name and the column is not already table-prefixed.
func shortName(t *core.Table, column string, tables []*core.Table) string {
	prefix := Singular(t.Name) + "_"
	if strings.HasPrefix(column, prefix) {
		return column
	}
	for _, other := range tables {
		if other.Name == t.Name {
			continue
		}
		if _, ok := other.ActiveColumn(column); ok {
			return prefix + column
		}
	}
	return column
}

// QualifiedName is the default field name of a non-key column.
func QualifiedName(table, column string) string {
	return table + "_" + column
}

// Singular strips one trailing "s" from a table name.
func Singular(table string) string {
	if len(table) > 1 && strings.HasSuffix(table, "s") {
		return table[:len(table)-1]
	}
	return table
}

func isNameColumn(column string) bool {
	return column == "name" || strings.HasSuffix(column, "_name")
}

// isKeyLike reports whether a column identifies rows rather than measuring them.
func isKeyLike(t *core.Table, col *core.Column, parents []*core.Table) bool {
	if t.IsPrimaryKey(col.Name) || col.Name == "id" || strings.HasSuffix(col.Name, "_id") {
		return true
	}
	for _, p := range parents {
		if p.IsPrimaryKey(col.Name) {
			return true
		}
	}
	return false
}
