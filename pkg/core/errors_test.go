package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	err := ErrConfig(ErrNoFields, "no columns bind a field").At("testdb", "leads", "")
	assert.Equal(t, "table has no bound fields: no columns bind a field (datasource testdb, table leads)", err.Error())

	wrapped := fmt.Errorf("build warehouse: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNoFields))
	assert.False(t, errors.Is(wrapped, ErrGraphCycle))
	assert.True(t, IsConfigError(wrapped))
	assert.False(t, IsUnsupportedGrain(wrapped))

	var ce *ConfigError
	require.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "leads", ce.Table)
}

func TestConfigError_AtKeepsExistingLocation(t *testing.T) {
	err := &ConfigError{Kind: ErrKeyTypeMismatch, Table: "sales", Column: "lead_id"}
	err.At("db", "leads", "id")
	assert.Equal(t, "db", err.DataSource)
	assert.Equal(t, "sales", err.Table)
	assert.Equal(t, "lead_id", err.Column)
}

func TestUnsupportedGrainError(t *testing.T) {
	err := &UnsupportedGrainError{
		Metric:  "revenue",
		Grain:   []string{"partner_name", "sale_id"},
		Missing: []string{"sale_id"},
	}
	assert.Equal(t, `unsupported grain for metric "revenue": [partner_name, sale_id] (unreachable: sale_id)`, err.Error())
	assert.True(t, IsUnsupportedGrain(fmt.Errorf("plan: %w", err)))
	assert.False(t, IsConfigError(err))

	unknown := &UnsupportedGrainError{Grain: []string{"nope"}, Reason: "no such field", Cause: ErrUnknownField}
	assert.True(t, errors.Is(unknown, ErrUnknownField))
	assert.Equal(t, "unsupported grain: [nope]: no such field", unknown.Error())
}

func TestParseIfExists(t *testing.T) {
	p, ok := ParseIfExists("")
	assert.True(t, ok)
	assert.Equal(t, IfExistsFail, p)

	p, ok = ParseIfExists("Replace")
	assert.True(t, ok)
	assert.Equal(t, IfExistsReplace, p)

	_, ok = ParseIfExists("append")
	assert.False(t, ok)
}

func TestParseTableType(t *testing.T) {
	tt, err := ParseTableType("METRIC")
	require.NoError(t, err)
	assert.Equal(t, TableMetric, tt)

	_, err = ParseTableType("fact")
	assert.Error(t, err)
}
