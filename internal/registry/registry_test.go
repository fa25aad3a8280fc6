package registry

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metric(name string) *core.Field {
	return &core.Field{Name: name, Kind: core.FieldMetric, Aggregation: core.DefaultAggregation}
}

func dimension(name string) *core.Field {
	return &core.Field{Name: name, Kind: core.FieldDimension}
}

func TestFieldRegistry_Register(t *testing.T) {
	r := NewFieldRegistry()

	added, err := r.Register(metric("revenue"), "warehouse")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, r.Count(), "expected count 1")

	got, ok := r.GetMetric("revenue")
	assert.True(t, ok, "expected to find metric")
	assert.Equal(t, "warehouse", r.Origin("revenue"))
	assert.Equal(t, "revenue", got.Name)

	_, ok = r.GetDimension("revenue")
	assert.False(t, ok, "metric must not resolve as dimension")
}

func TestFieldRegistry_NeverOverwrites(t *testing.T) {
	r := NewFieldRegistry()
	original := &core.Field{Name: "partner_name", Kind: core.FieldDimension, Type: core.DataType{Name: "VARCHAR", Length: 50}}
	_, err := r.Register(original, "warehouse")
	require.NoError(t, err)

	added, err := r.Register(&core.Field{Name: "partner_name", Kind: core.FieldDimension, Type: core.DataType{Name: "TEXT"}}, "testdb")
	require.NoError(t, err)
	assert.False(t, added)

	got, _ := r.GetField("partner_name")
	assert.Same(t, original, got)
	assert.Equal(t, 50, got.Type.Length)
}

func TestFieldRegistry_KindConflict(t *testing.T) {
	r := NewFieldRegistry()
	_, err := r.Register(metric("leads"), "db1")
	require.NoError(t, err)

	_, err = r.Register(dimension("leads"), "db2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFieldConflict))
	assert.Contains(t, err.Error(), "db1")
	assert.Contains(t, err.Error(), "db2")
}

func TestFieldRegistry_ForceReplaces(t *testing.T) {
	r := NewFieldRegistry()
	_, _ = r.Register(dimension("x"), "a")
	r.Force(metric("x"), "b")

	assert.True(t, r.HasMetric("x"))
	assert.False(t, r.HasDimension("x"))
	assert.Equal(t, "b", r.Origin("x"))
}

func TestFieldRegistry_MergeAndNames(t *testing.T) {
	a := NewFieldRegistry()
	_, _ = a.Register(metric("revenue"), "a")
	_, _ = a.Register(dimension("partner_name"), "a")

	b := NewFieldRegistry()
	_, _ = b.Register(metric("leads"), "b")
	_, _ = b.Register(dimension("campaign_name"), "b")
	_, _ = b.Register(metric("revenue"), "b")

	require.NoError(t, a.Merge(b.View()))
	assert.Equal(t, []string{"leads", "revenue"}, a.MetricNames())
	assert.Equal(t, []string{"campaign_name", "partner_name"}, a.DimensionNames())
	assert.Equal(t, "a", a.Origin("revenue"), "existing definition wins on merge")

	c := NewFieldRegistry()
	_, _ = c.Register(dimension("revenue"), "c")
	assert.True(t, errors.Is(a.Merge(c.View()), core.ErrFieldConflict))
}

func TestChain_GetField(t *testing.T) {
	local := NewFieldRegistry()
	global := NewFieldRegistry()
	_, _ = local.Register(dimension("partner_id"), "local")
	_, _ = global.Register(metric("revenue"), "global")
	_, _ = global.Register(&core.Field{Name: "partner_id", Kind: core.FieldDimension, Description: "global"}, "global")

	scope := Chain{local, nil, global}
	f, ok := scope.GetField("partner_id")
	require.True(t, ok)
	assert.Empty(t, f.Description, "first scope wins")

	_, ok = scope.GetField("revenue")
	assert.True(t, ok)

	_, ok = scope.GetField("missing")
	assert.False(t, ok)
}

func TestView_ReturnsCopies(t *testing.T) {
	r := NewFieldRegistry()
	rounding := 2
	_, _ = r.Register(&core.Field{Name: "revenue", Kind: core.FieldMetric, Rounding: &rounding}, "warehouse")
	_, _ = r.Register(dimension("partner_name"), "warehouse")
	v := r.View()

	f, ok := v.GetMetric("revenue")
	require.True(t, ok)
	f.Kind = core.FieldDimension
	*f.Rounding = 5
	for _, f := range v.Fields() {
		f.Kind = core.FieldMetric
	}

	assert.True(t, v.HasMetric("revenue"))
	assert.True(t, v.HasDimension("partner_name"))
	got, _ := r.GetMetric("revenue")
	assert.Equal(t, 2, *got.Rounding)
	assert.Equal(t, 2, v.Count())
	assert.Equal(t, "warehouse", v.Origin("partner_name"))

	_, ok = v.GetDimension("revenue")
	assert.False(t, ok)
	assert.Empty(t, View{}.Fields())
	assert.False(t, View{}.HasField("revenue"))
}
