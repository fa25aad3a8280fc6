package datasource

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapmetrics/internal/registry"
	"github.com/leapstack-labs/leapmetrics/pkg/adapter"
	"github.com/leapstack-labs/leapmetrics/internal/testutil"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqliteadapter "github.com/leapstack-labs/leapmetrics/pkg/adapters/sqlite"
)

func col(name, typ string, fields ...string) *core.Column {
	return &core.Column{Name: name, Type: core.ParseDataType(typ), Active: true, Fields: fields}
}

func tbl(name string, typ core.TableType, pk []string, cols ...*core.Column) *core.Table {
	t := &core.Table{Name: name, Type: typ, PrimaryKey: pk, CreateFields: true, Active: true, Columns: cols}
	markPrimaryKey(t)
	return t
}

// salesSchema is a partners <- campaigns <- leads <- sales chain.
func salesSchema() *core.Schema {
	return &core.Schema{Tables: []*core.Table{
		tbl("partners", core.TableDimension, []string{"partner_id"},
			col("partner_id", "INTEGER"),
			col("partner_name", "VARCHAR(50)"),
		),
		tbl("campaigns", core.TableDimension, []string{"campaign_id"},
			col("campaign_id", "INTEGER"),
			col("partner_id", "INTEGER"),
			col("campaign_name", "VARCHAR(50)"),
			col("category", "VARCHAR(20)"),
		),
		tbl("leads", core.TableMetric, []string{"lead_id"},
			col("lead_id", "INTEGER"),
			col("campaign_id", "INTEGER"),
			col("created_at", "TIMESTAMP"),
		),
		tbl("sales", core.TableMetric, []string{"sale_id"},
			col("sale_id", "INTEGER"),
			col("lead_id", "INTEGER"),
			col("revenue", "DECIMAL(10,2)"),
			col("quantity", "INTEGER"),
		),
	}}
}

func newSource(t *testing.T, opts ...Option) (*DataSource, error) {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	ds, err := New(context.Background(), "testdb", opts...)
	if ds != nil {
		t.Cleanup(func() { _ = ds.Close() })
	}
	return ds, err
}

func recordStates(states *[]State) Option {
	return WithStateHook(func(_, to State) { *states = append(*states, to) })
}

func TestNew_StatesWithoutReflection(t *testing.T) {
	var states []State
	ds, err := newSource(t, WithSchema(salesSchema()), recordStates(&states))
	require.NoError(t, err)

	assert.Equal(t, []State{StateBinding, StateJoinLinking, StateReady}, states)
	assert.Equal(t, StateReady, ds.State())
	assert.Equal(t, "testdb", ds.Name())
}

func TestNew_SalesChain(t *testing.T) {
	ds, err := newSource(t, WithSchema(salesSchema()))
	require.NoError(t, err)

	g := ds.Graph()
	assert.Equal(t, 3, g.EdgeCount())
	e, ok := g.GetEdge("partners", "campaigns")
	require.True(t, ok)
	assert.Equal(t, []string{"partner_id"}, e.Keys)
	_, ok = g.GetEdge("campaigns", "leads")
	assert.True(t, ok)
	_, ok = g.GetEdge("leads", "sales")
	assert.True(t, ok, "metric tables may parent other metric tables")

	assert.Equal(t, []string{"partners", "campaigns", "leads", "sales"}, ds.BindOrder())

	names := func(ts []*core.Table) []string {
		var out []string
		for _, t := range ts {
			out = append(out, t.Name)
		}
		return out
	}
	assert.Equal(t, []string{"campaigns", "partners"}, names(ds.DimensionTables()))
	assert.Equal(t, []string{"leads", "sales"}, names(ds.MetricTables()))
	assert.Equal(t, []string{"campaigns", "leads"}, names(ds.TablesWithField("campaign_id", "")))
	assert.Equal(t, []string{"leads"}, names(ds.TablesWithField("campaign_id", core.TableMetric)))

	revenue, ok := ds.Fields().GetMetric("sales_revenue")
	require.True(t, ok)
	assert.Equal(t, "sum", revenue.Aggregation)
	assert.True(t, ds.Fields().HasDimension("lead_id"))
	assert.True(t, ds.Fields().HasDimension("leads_created_at"))

	// Every active table binds at least one field.
	for _, tb := range ds.Tables() {
		assert.NotEmpty(t, tb.FieldNames(), tb.Name)
	}
}

func TestNew_RoundTripParentKeyID(t *testing.T) {
	schema := &core.Schema{Tables: []*core.Table{
		tbl("p", core.TableDimension, []string{"id"},
			col("id", "INTEGER"),
			col("label", "TEXT"),
		),
		tbl("c", core.TableDimension, []string{"c_id"},
			col("c_id", "INTEGER"),
			col("id", "INTEGER"),
			col("color", "TEXT"),
		),
	}}
	ds, err := newSource(t, WithSchema(schema))
	require.NoError(t, err)

	p, _ := ds.Table("p")
	c, _ := ds.Table("c")
	assert.Equal(t, []string{"p_id", "p_label"}, p.FieldNames())
	assert.Equal(t, []string{"c_id", "p_id", "c_color"}, c.FieldNames())

	e, ok := ds.Graph().GetEdge("p", "c")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, e.Keys)
}

func TestNew_OverlayMergesBindings(t *testing.T) {
	schema := salesSchema()
	partners, _ := schema.Table("partners")
	partners.CreateFields = false
	partners.Columns[0].Fields = []string{"partner_id"}

	ds, err := newSource(t, WithSchema(schema), WithConfig(core.DataSourceConfig{
		Dimensions: []core.FieldConfig{{Name: "partner", Type: "INTEGER"}},
		Tables: map[string]core.TableConfig{
			"partners": {Columns: map[string]core.ColumnConfig{
				"partner_id":   {Fields: []string{"partner"}},
				"partner_name": {Active: core.Bool(false)},
			}},
			"campaigns": {Columns: map[string]core.ColumnConfig{
				"category": {Active: core.Bool(false)},
			}},
		},
	}))
	require.NoError(t, err)

	got, _ := ds.Table("partners")
	pid, _ := got.Column("partner_id")
	assert.Equal(t, []string{"partner_id", "partner"}, pid.Fields)
	assert.Equal(t, []string{"partner_id", "partner"}, got.FieldNames())

	assert.Empty(t, ds.TablesWithField("campaigns_category", ""), "inactive columns are invisible")
	assert.False(t, ds.Fields().HasField("campaigns_category"))
	assert.Equal(t, "testdb", ds.Fields().Origin("partner"))
}

func TestNew_AllMetricTables(t *testing.T) {
	overlay := map[string]core.TableConfig{}
	for _, name := range []string{"partners", "campaigns", "leads", "sales"} {
		overlay[name] = core.TableConfig{Type: "METRIC"}
	}
	ds, err := newSource(t, WithSchema(salesSchema()), WithConfig(core.DataSourceConfig{Tables: overlay}))
	require.NoError(t, err)

	assert.Empty(t, ds.DimensionTables())
	assert.Len(t, ds.MetricTables(), 4)
}

func TestNew_NoFieldsFails(t *testing.T) {
	var states []State
	cleaned := 0
	_, err := newSource(t,
		WithSchema(salesSchema()),
		WithConfig(core.DataSourceConfig{Tables: map[string]core.TableConfig{
			"partners": {CreateFields: core.Bool(false)},
		}}),
		recordStates(&states),
		WithCleanup(func() error { cleaned++; return nil }),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoFields))

	var ce *core.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "partners", ce.Table)
	assert.Equal(t, "testdb", ce.DataSource)

	assert.Equal(t, StateFailed, states[len(states)-1])
	assert.Equal(t, 1, cleaned, "cleanups run when construction fails")
}

func TestNew_KeyTypeMismatch(t *testing.T) {
	schema := salesSchema()
	campaigns, _ := schema.Table("campaigns")
	partnerID, _ := campaigns.Column("partner_id")
	partnerID.Type = core.ParseDataType("VARCHAR(10)")

	_, err := newSource(t, WithSchema(schema))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrKeyTypeMismatch))
	assert.Contains(t, err.Error(), "partner_id")
}

func TestNew_TypeOverrideResolvesMismatch(t *testing.T) {
	schema := salesSchema()
	campaigns, _ := schema.Table("campaigns")
	partnerID, _ := campaigns.Column("partner_id")
	partnerID.Type = core.ParseDataType("VARCHAR(10)")

	_, err := newSource(t, WithSchema(schema), WithConfig(core.DataSourceConfig{
		Tables: map[string]core.TableConfig{
			"campaigns": {Columns: map[string]core.ColumnConfig{"partner_id": {Type: "BIGINT"}}},
		},
	}))
	assert.NoError(t, err)
}

func TestNew_ExplicitParent(t *testing.T) {
	tests := []struct {
		name    string
		parent  string
		wantErr error
	}{
		{name: "valid", parent: "partners"},
		{name: "missing table", parent: "regions", wantErr: core.ErrInvalidConfig},
		{name: "key not contained", parent: "sales", wantErr: core.ErrInvalidConfig},
		{name: "self", parent: "campaigns", wantErr: core.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := newSource(t, WithSchema(salesSchema()), WithConfig(core.DataSourceConfig{
				Tables: map[string]core.TableConfig{"campaigns": {Parent: tt.parent}},
			}))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			_, ok := ds.Graph().GetEdge("partners", "campaigns")
			assert.True(t, ok)
		})
	}
}

func TestNew_MutualKeysPreferDimension(t *testing.T) {
	schema := &core.Schema{Tables: []*core.Table{
		tbl("a_facts", core.TableMetric, []string{"id"},
			col("id", "INTEGER"),
			col("amount", "INTEGER"),
		),
		tbl("b_dims", core.TableDimension, []string{"id"},
			col("id", "INTEGER"),
			col("b_name", "TEXT"),
		),
		tbl("c_dims", core.TableDimension, []string{"id"},
			col("id", "INTEGER"),
			col("c_name", "TEXT"),
		),
	}}
	ds, err := newSource(t, WithSchema(schema))
	require.NoError(t, err)

	g := ds.Graph()
	assert.Equal(t, []string{"b_dims", "c_dims"}, g.GetParents("a_facts"), "metric tables never parent dimension tables")
	assert.Equal(t, []string{"b_dims"}, g.GetParents("c_dims"), "lexical order breaks remaining ties")
	assert.Empty(t, g.GetParents("b_dims"))
}

func TestNew_Cycle(t *testing.T) {
	schema := &core.Schema{Tables: []*core.Table{
		tbl("a", core.TableDimension, []string{"a_id"}, col("a_id", "INTEGER"), col("c_id", "INTEGER")),
		tbl("b", core.TableDimension, []string{"b_id"}, col("b_id", "INTEGER"), col("a_id", "INTEGER")),
		tbl("c", core.TableDimension, []string{"c_id"}, col("c_id", "INTEGER"), col("b_id", "INTEGER")),
	}}
	_, err := newSource(t, WithSchema(schema))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrGraphCycle))
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "nothing to build from"},
		{name: "unknown table", opts: []Option{WithSchema(salesSchema()), WithConfig(core.DataSourceConfig{
			Tables: map[string]core.TableConfig{"regions": {Type: "dimension"}},
		})}},
		{name: "unknown column", opts: []Option{WithSchema(salesSchema()), WithConfig(core.DataSourceConfig{
			Tables: map[string]core.TableConfig{"sales": {Columns: map[string]core.ColumnConfig{"nope": {}}}},
		})}},
		{name: "bad table type", opts: []Option{WithSchema(salesSchema()), WithConfig(core.DataSourceConfig{
			Tables: map[string]core.TableConfig{"sales": {Type: "fact"}},
		})}},
		{name: "duplicate source field", opts: []Option{WithSchema(salesSchema()), WithConfig(core.DataSourceConfig{
			Metrics: []core.FieldConfig{{Name: "m"}, {Name: "m"}},
		})}},
		{name: "invalid field name", opts: []Option{WithSchema(salesSchema()), WithConfig(core.DataSourceConfig{
			Dimensions: []core.FieldConfig{{Name: "bad name"}},
		})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newSource(t, tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestNew_Names(t *testing.T) {
	_, err := New(context.Background(), "bad-name", WithSchema(salesSchema()))
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))

	ds, err := New(context.Background(), "", WithSchema(salesSchema()))
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()
	assert.True(t, strings.HasPrefix(ds.Name(), "ds_"), ds.Name())
	assert.Len(t, ds.Name(), len("ds_20060102150405_12345678"))
}

func TestNew_ScopeIsNeverOverwritten(t *testing.T) {
	scope := registry.NewFieldRegistry()
	_, _ = scope.Register(&core.Field{Name: "partner_name", Kind: core.FieldDimension, Type: core.DataType{Name: "VARCHAR", Length: 80}}, "warehouse")

	ds, err := newSource(t, WithSchema(salesSchema()), WithScope(scope))
	require.NoError(t, err)

	assert.False(t, ds.Fields().HasField("partner_name"), "the warehouse definition is reused")
	f, _ := scope.GetField("partner_name")
	assert.Equal(t, 80, f.Type.Length)
}

func TestNew_ReflectWithOverlay(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reflect.db")

	seed := sqliteadapter.New(nil)
	require.NoError(t, seed.Connect(ctx, core.ConnectConfig{Database: path}))
	require.NoError(t, seed.Exec(ctx, `CREATE TABLE partners (partner_id INTEGER PRIMARY KEY, partner_name TEXT)`))
	require.NoError(t, seed.Exec(ctx, `CREATE TABLE sales (sale_id INTEGER PRIMARY KEY, partner_id INTEGER, revenue REAL)`))
	require.NoError(t, seed.Exec(ctx, `CREATE TABLE audit_log (id INTEGER PRIMARY KEY, note TEXT)`))
	require.NoError(t, seed.Close())

	var states []State
	ds, err := newSource(t,
		WithConfig(core.DataSourceConfig{
			Connect: &core.ConnectConfig{Type: "sqlite", Database: path},
			Tables: map[string]core.TableConfig{
				"partners": {Type: "dimension", CreateFields: core.Bool(true)},
				"sales":    {Type: "metric", CreateFields: core.Bool(true)},
			},
		}),
		recordStates(&states),
	)
	require.NoError(t, err)

	assert.Equal(t, []State{StateReflecting, StateBinding, StateJoinLinking, StateReady}, states)

	audit, ok := ds.Table("audit_log")
	require.True(t, ok)
	assert.False(t, audit.Active, "tables without metadata are ignored")
	assert.Len(t, ds.Tables(), 2)

	sales, _ := ds.Table("sales")
	assert.Equal(t, []string{"sale_id"}, sales.PrimaryKey, "primary key comes from reflection")
	assert.True(t, ds.Fields().HasMetric("sales_revenue"))
	_, ok = ds.Graph().GetEdge("partners", "sales")
	assert.True(t, ok)

	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())
}

func TestNew_ReflectOnly(t *testing.T) {
	ctx := context.Background()
	adp := sqliteadapter.New(nil)
	require.NoError(t, adp.Connect(ctx, core.ConnectConfig{}))
	defer func() { _ = adp.Close() }()
	require.NoError(t, adp.Exec(ctx, `CREATE TABLE partners (partner_id INTEGER PRIMARY KEY, partner_name TEXT)`))
	require.NoError(t, adp.Exec(ctx, `CREATE TABLE other (id INTEGER PRIMARY KEY)`))

	ds, err := newSource(t,
		WithAdapter(adp),
		WithReflectOnly("partners"),
		WithConfig(core.DataSourceConfig{Tables: map[string]core.TableConfig{
			"partners": {Type: "dimension", CreateFields: core.Bool(true)},
		}}),
	)
	require.NoError(t, err)
	_, ok := ds.Table("other")
	assert.False(t, ok)

	require.NoError(t, ds.Close())
	assert.True(t, adp.IsConnected(), "a caller supplied adapter stays open")
}

// refusingAdapter fails to connect and counts Close calls.
type refusingAdapter struct {
	core.Adapter
	closed *int
}

func (a *refusingAdapter) Connect(context.Context, core.ConnectConfig) error {
	return errors.New("connection refused")
}

func (a *refusingAdapter) Close() error {
	*a.closed++
	return nil
}

func TestNew_ConnectFailureClosesAdapter(t *testing.T) {
	closed := 0
	adapter.Register("refusing", func(*slog.Logger) adapter.Adapter {
		return &refusingAdapter{closed: &closed}
	})

	var states []State
	ds, err := newSource(t,
		WithConfig(core.DataSourceConfig{Connect: &core.ConnectConfig{Type: "refusing"}}),
		recordStates(&states),
	)
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.Contains(t, err.Error(), "failed to connect datasource testdb")
	assert.Equal(t, 1, closed, "an adapter created for the source is closed when Connect fails")
	assert.Equal(t, []State{StateReflecting, StateFailed}, states)
}

func TestNew_BindingLogsCarrySourceOnce(t *testing.T) {
	logger, logs := testutil.NewLogCapture()
	ds, err := New(context.Background(), "testdb", WithSchema(salesSchema()), WithLogger(logger))
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()

	lines := logs.Matching("synthesized field")
	require.NotEmpty(t, lines)
	for _, l := range lines {
		assert.Equal(t, 1, strings.Count(l, "datasource=testdb"), l)
		assert.Contains(t, l, "table=")
	}
}

func TestClose_RunsCleanupsOnce(t *testing.T) {
	calls := 0
	ds, err := New(context.Background(), "adhoc", WithSchema(salesSchema()),
		WithCleanup(func() error { calls++; return nil }))
	require.NoError(t, err)

	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())
	assert.Equal(t, 1, calls)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "join-linking", StateJoinLinking.String())
	assert.Equal(t, "State(42)", State(42).String())
}
