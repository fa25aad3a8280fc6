package core

import (
	"fmt"
	"strings"
)

// FieldKind distinguishes metrics from dimensions.
type FieldKind string

// Field kinds.
const (
	FieldMetric    FieldKind = "metric"
	FieldDimension FieldKind = "dimension"
)

// DefaultAggregation is used for metrics that do not declare one.
const DefaultAggregation = "sum"

// TypeFamily is the semantic family of a physical column type.
// Join keys are compared by family, not by exact physical type.
type TypeFamily string

// Type families.
const (
	FamilyInteger   TypeFamily = "integer"
	FamilyNumeric   TypeFamily = "numeric"
	FamilyString    TypeFamily = "string"
	FamilyBoolean   TypeFamily = "boolean"
	FamilyDate      TypeFamily = "date"
	FamilyTimestamp TypeFamily = "timestamp"
	FamilyTime      TypeFamily = "time"
	FamilyOther     TypeFamily = "other"
)

// DataType is a physical type as reported by a database or declared in config.
type DataType struct {
	Name   string `koanf:"name" json:"name" yaml:"name"`
	Length int    `koanf:"length" json:"length,omitempty" yaml:"length,omitempty"`
}

// ParseDataType parses declarations like "VARCHAR(50)" or "integer".
func ParseDataType(s string) DataType {
	s = strings.TrimSpace(s)
	if s == "" {
		return DataType{}
	}
	name := s
	length := 0
	if open := strings.IndexByte(s, '('); open > 0 && strings.HasSuffix(s, ")") {
		name = strings.TrimSpace(s[:open])
		args := s[open+1 : len(s)-1]
		if comma := strings.IndexByte(args, ','); comma >= 0 {
			args = args[:comma]
		}
		_, _ = fmt.Sscanf(strings.TrimSpace(args), "%d", &length)
	}
	return DataType{Name: strings.ToUpper(name), Length: length}
}

// String renders the type the way it would appear in DDL.
func (t DataType) String() string {
	if t.Length > 0 {
		return fmt.Sprintf("%s(%d)", t.Name, t.Length)
	}
	return t.Name
}

// IsZero reports whether no type information is present.
func (t DataType) IsZero() bool {
	return t.Name == ""
}

// Family maps the type name to its semantic family.
func (t DataType) Family() TypeFamily {
	name := strings.ToUpper(strings.TrimSpace(t.Name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "INT", "INTEGER", "INT2", "INT4", "INT8", "SMALLINT", "BIGINT", "TINYINT", "HUGEINT",
		"UBIGINT", "UINTEGER", "USMALLINT", "UTINYINT", "SERIAL", "BIGSERIAL", "INT64", "INT32":
		return FamilyInteger
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "DECIMAL", "NUMERIC",
		"MONEY", "FLOAT64", "NUMBER":
		return FamilyNumeric
	case "TEXT", "VARCHAR", "CHAR", "CHARACTER", "CHARACTER VARYING", "STRING", "NVARCHAR",
		"NCHAR", "CLOB", "UUID", "BPCHAR":
		return FamilyString
	case "BOOL", "BOOLEAN":
		return FamilyBoolean
	case "DATE":
		return FamilyDate
	case "TIMESTAMP", "DATETIME", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP_NS", "TIMESTAMP_MS", "TIMESTAMP_S":
		return FamilyTimestamp
	case "TIME", "TIMETZ", "TIME WITH TIME ZONE", "TIME WITHOUT TIME ZONE":
		return FamilyTime
	}
	return FamilyOther
}

// IsNumeric reports whether values of this type can be summed.
func (t DataType) IsNumeric() bool {
	f := t.Family()
	return f == FamilyInteger || f == FamilyNumeric
}

// Field is a named, warehouse-wide logical quantity.
// Fields are not owned by tables; any number of columns may bind the same name.
type Field struct {
	Name        string
	Kind        FieldKind
	Type        DataType
	Formula     string
	Aggregation string
	Rounding    *int
	Description string
}

// IsMetric reports whether the field is a metric.
func (f *Field) IsMetric() bool { return f.Kind == FieldMetric }

// IsDimension reports whether the field is a dimension.
func (f *Field) IsDimension() bool { return f.Kind == FieldDimension }

// Clone returns a copy of the field.
func (f *Field) Clone() *Field {
	out := *f
	if f.Rounding != nil {
		r := *f.Rounding
		out.Rounding = &r
	}
	return &out
}

// AggregationOrDefault returns the configured aggregation or DefaultAggregation.
func (f *Field) AggregationOrDefault() string {
	if f.Aggregation == "" {
		return DefaultAggregation
	}
	return f.Aggregation
}

// FieldConfig is the config-file representation of a metric or dimension.
type FieldConfig struct {
	Name        string `koanf:"name"`
	Type        string `koanf:"type"`
	Formula     string `koanf:"formula"`
	Aggregation string `koanf:"aggregation"`
	Rounding    *int   `koanf:"rounding"`
	Description string `koanf:"description"`
}

// ToField converts the config entry into a Field of the given kind.
func (c FieldConfig) ToField(kind FieldKind) *Field {
	f := &Field{
		Name:        c.Name,
		Kind:        kind,
		Type:        ParseDataType(c.Type),
		Formula:     c.Formula,
		Aggregation: strings.ToLower(c.Aggregation),
		Rounding:    c.Rounding,
		Description: c.Description,
	}
	if kind == FieldMetric && f.Aggregation == "" {
		f.Aggregation = DefaultAggregation
	}
	return f
}

// ValidFieldName reports whether name is usable as a field name.
func ValidFieldName(name string) bool {
	return ValidIdentifier(name)
}

// ValidIdentifier reports whether s contains only letters, digits and underscores
// and does not start with a digit.
func ValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
