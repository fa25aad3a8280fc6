package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDataType(t *testing.T) {
	tests := []struct {
		in   string
		want DataType
	}{
		{"integer", DataType{Name: "INTEGER"}},
		{"VARCHAR(50)", DataType{Name: "VARCHAR", Length: 50}},
		{" numeric(10, 2) ", DataType{Name: "NUMERIC", Length: 10}},
		{"", DataType{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDataType(tt.in))
		})
	}
}

func TestDataType_Family(t *testing.T) {
	tests := []struct {
		name string
		want TypeFamily
	}{
		{"INTEGER", FamilyInteger},
		{"bigint", FamilyInteger},
		{"DOUBLE", FamilyNumeric},
		{"DECIMAL(18,3)", FamilyNumeric},
		{"character varying", FamilyString},
		{"TEXT", FamilyString},
		{"DATE", FamilyDate},
		{"TIMESTAMP WITH TIME ZONE", FamilyTimestamp},
		{"BOOLEAN", FamilyBoolean},
		{"BLOB", FamilyOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DataType{Name: tt.name}.Family())
		})
	}
}

func TestDataType_String(t *testing.T) {
	assert.Equal(t, "VARCHAR(50)", DataType{Name: "VARCHAR", Length: 50}.String())
	assert.Equal(t, "INTEGER", DataType{Name: "INTEGER"}.String())
}

func TestFieldConfig_ToField(t *testing.T) {
	m := FieldConfig{Name: "revenue", Type: "numeric(10,2)"}.ToField(FieldMetric)
	assert.Equal(t, "sum", m.Aggregation)
	assert.True(t, m.IsMetric())
	assert.Equal(t, FamilyNumeric, m.Type.Family())

	d := FieldConfig{Name: "partner_name"}.ToField(FieldDimension)
	assert.Empty(t, d.Aggregation)
	assert.True(t, d.IsDimension())
	assert.Equal(t, "sum", d.AggregationOrDefault())

	avg := FieldConfig{Name: "rpl", Aggregation: "AVG"}.ToField(FieldMetric)
	assert.Equal(t, "avg", avg.Aggregation)
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("partner_id"))
	assert.True(t, ValidIdentifier("_x1"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("1abc"))
	assert.False(t, ValidIdentifier("a-b"))
	assert.False(t, ValidIdentifier("a b"))
}
