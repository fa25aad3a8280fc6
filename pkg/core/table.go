package core

import (
	"fmt"
	"strings"
)

// TableType tags a table as holding dimensions or metrics.
type TableType string

// Table types.
const (
	TableDimension TableType = "dimension"
	TableMetric    TableType = "metric"
)

// ParseTableType parses a config value, accepting any letter case.
func ParseTableType(s string) (TableType, error) {
	switch TableType(strings.ToLower(strings.TrimSpace(s))) {
	case TableDimension:
		return TableDimension, nil
	case TableMetric:
		return TableMetric, nil
	}
	return "", fmt.Errorf("invalid table type %q (expected dimension or metric)", s)
}

// Column is a physical column and the fields bound to it.
type Column struct {
	Name         string
	Type         DataType
	PrimaryKey   bool
	Nullable     bool
	Position     int
	Active       bool
	Fields       []string
	TypeOverride *DataType

	// AllowTypeConversions derives date and time dimensions from the column.
	AllowTypeConversions bool
	TypeConversionPrefix string

	// Formulas maps a bound field to the expression computing it from this
	// column. Fields without an entry read the column as is.
	Formulas map[string]string
}

// EffectiveType returns the override when one is declared.
func (c *Column) EffectiveType() DataType {
	if c.TypeOverride != nil && !c.TypeOverride.IsZero() {
		return *c.TypeOverride
	}
	return c.Type
}

// HasField reports whether the column binds the named field.
func (c *Column) HasField(name string) bool {
	for _, f := range c.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Formula returns the expression a bound field is computed with, if any.
func (c *Column) Formula(field string) (string, bool) {
	f, ok := c.Formulas[field]
	return f, ok
}

// AddField binds a field name, ignoring duplicates.
func (c *Column) AddField(name string) {
	if !c.HasField(name) {
		c.Fields = append(c.Fields, name)
	}
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := *c
	out.Fields = append([]string(nil), c.Fields...)
	if c.Formulas != nil {
		out.Formulas = make(map[string]string, len(c.Formulas))
		for k, v := range c.Formulas {
			out.Formulas[k] = v
		}
	}
	if c.TypeOverride != nil {
		t := *c.TypeOverride
		out.TypeOverride = &t
	}
	return &out
}

// Table is a physical table within one schema source.
// Join edges are not stored here; they belong to the source's join graph.
type Table struct {
	Name                 string
	Type                 TableType
	PrimaryKey           []string
	CreateFields         bool
	Active               bool
	Parent               string
	IncompleteDimensions []string
	Columns              []*Column

	// HasMetadata is set when the table carries field metadata, either from a
	// pre-built schema or from config. Tables without it are ignored.
	HasMetadata bool
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ActiveColumn returns the named column only when it is active.
func (t *Table) ActiveColumn(name string) (*Column, bool) {
	c, ok := t.Column(name)
	if !ok || !c.Active {
		return nil, false
	}
	return c, true
}

// ActiveColumns returns active columns in declaration order.
func (t *Table) ActiveColumns() []*Column {
	cols := make([]*Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Active {
			cols = append(cols, c)
		}
	}
	return cols
}

// IsPrimaryKey reports whether the column is part of the table's primary key.
func (t *Table) IsPrimaryKey(column string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == column {
			return true
		}
	}
	return false
}

// FieldNames returns the distinct field names bound to active columns.
func (t *Table) FieldNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, c := range t.ActiveColumns() {
		for _, f := range c.Fields {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			names = append(names, f)
		}
	}
	return names
}

// HasField reports whether an active column binds the field.
func (t *Table) HasField(name string) bool {
	_, ok := t.FieldColumn(name)
	return ok
}

// FieldColumn returns the first active column binding the field.
func (t *Table) FieldColumn(name string) (*Column, bool) {
	for _, c := range t.ActiveColumns() {
		if c.HasField(name) {
			return c, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := *t
	out.PrimaryKey = append([]string(nil), t.PrimaryKey...)
	out.IncompleteDimensions = append([]string(nil), t.IncompleteDimensions...)
	out.Columns = make([]*Column, len(t.Columns))
	for i, c := range t.Columns {
		out.Columns[i] = c.Clone()
	}
	return &out
}

// Schema is a set of tables, either reflected from a connection or built by hand.
type Schema struct {
	Tables []*Table
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{Tables: make([]*Table, len(s.Tables))}
	for i, t := range s.Tables {
		out.Tables[i] = t.Clone()
	}
	return out
}
