package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapmetrics/internal/cli/testutil"
	"github.com/leapstack-labs/leapmetrics/internal/config"
	intutil "github.com/leapstack-labs/leapmetrics/internal/testutil"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

func loadProject(t *testing.T, format string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFile(testutil.SetupTestProject(t))
	require.NoError(t, err)
	cfg.OutputFormat = format
	return cfg
}

func execute(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	// Matches the root command, which reports errors itself.
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx := config.WithLogger(context.Background(), intutil.NewTestLogger(t))
	if cfg != nil {
		ctx = config.WithConfig(ctx, cfg)
	}
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

func TestFieldsCommand(t *testing.T) {
	cfg := loadProject(t, config.OutputJSON)

	out, err := execute(t, NewFieldsCommand(), cfg)
	require.NoError(t, err)

	var views []fieldView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	byName := make(map[string]fieldView)
	for _, v := range views {
		byName[v.Name] = v
	}
	require.Contains(t, byName, "revenue")
	assert.Equal(t, "metric", byName["revenue"].Kind)
	assert.Equal(t, "warehouse", byName["revenue"].Origin)
	assert.Equal(t, "dimension", byName["partner_name"].Kind)
	assert.Equal(t, "files", byName["partner_name"].Origin)

	out, err = execute(t, NewFieldsCommand(), cfg, "--kind", "metric")
	require.NoError(t, err)
	views = nil
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "revenue", views[0].Name)

	_, err = execute(t, NewFieldsCommand(), cfg, "--kind", "other")
	assert.ErrorContains(t, err, "invalid --kind")
}

func TestFieldsCommand_Table(t *testing.T) {
	cfg := loadProject(t, config.OutputTable)

	out, err := execute(t, NewFieldsCommand(), cfg)
	require.NoError(t, err)
	testutil.AssertContains(t, out, "Fields (")
	testutil.AssertContains(t, out, "partner_name")
	testutil.AssertContains(t, out, "Metric")
	testutil.AssertContains(t, out, "Dimension")
	testutil.AssertNoANSI(t, out)
}

func TestTablesCommand(t *testing.T) {
	cfg := loadProject(t, config.OutputYAML)

	out, err := execute(t, NewTablesCommand(), cfg)
	require.NoError(t, err)

	var views []tableView
	require.NoError(t, yaml.Unmarshal([]byte(out), &views))
	require.Len(t, views, 3)
	assert.Equal(t, "partners", views[0].Table)
	assert.Equal(t, "campaigns", views[1].Table)
	assert.Equal(t, []string{"partners"}, views[1].Parents)
	assert.Equal(t, []string{"sales"}, views[1].Children)
	assert.Equal(t, "sales", views[2].Table)
	assert.Equal(t, []string{"sale_id", "campaign_id", "revenue"}, views[2].Fields)
}

func TestPlanMetricCommand(t *testing.T) {
	cfg := loadProject(t, config.OutputJSON)

	out, err := execute(t, NewPlanCommand(), cfg, "metric", "--metric", "revenue", "--grain", "partner_name")
	require.NoError(t, err)

	var v planView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "files", v.DataSource)
	assert.Equal(t, "sales", v.Anchor)
	assert.Equal(t, []string{"sales", "campaigns", "partners"}, v.Tables)
	assert.Equal(t, []joinView{
		{Child: "sales", Parent: "campaigns", Keys: []string{"campaign_id"}},
		{Child: "campaigns", Parent: "partners", Keys: []string{"partner_id"}},
	}, v.Joins)
	assert.Equal(t, "partners.partner_name", v.FieldMap["partner_name"])
	assert.Equal(t, "SUM(sales.revenue)", v.Projection)
	assert.Contains(t, v.Covered, "revenue")
}

func TestPlanMetricCommand_NoGrain(t *testing.T) {
	cfg := loadProject(t, config.OutputTable)

	out, err := execute(t, NewPlanCommand(), cfg, "metric", "-m", "revenue")
	require.NoError(t, err)
	testutil.AssertContains(t, out, "Anchor:     sales")
	testutil.AssertContains(t, out, "SUM(sales.revenue)")
	testutil.AssertContains(t, out, "Covers:")
	testutil.AssertNotContains(t, out, "Joins")
}

func TestPlanDimensionsCommand(t *testing.T) {
	cfg := loadProject(t, config.OutputJSON)

	out, err := execute(t, NewPlanCommand(), cfg, "dimensions", "--grain", "partner_name,campaign_name")
	require.NoError(t, err)

	var v planView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "campaigns", v.Anchor)
	assert.Equal(t, []string{"campaigns", "partners"}, v.Tables)
	assert.Empty(t, v.Projection)
}

func TestPlanCommand_Unsupported(t *testing.T) {
	cfg := loadProject(t, config.OutputJSON)

	out, err := execute(t, NewPlanCommand(), cfg, "metric", "--metric", "revenue", "--grain", "nope")
	require.Error(t, err)
	assert.True(t, core.IsUnsupportedGrain(err))

	assert.NotContains(t, out, "Usage:")
	var v unsupportedView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "revenue", v.Metric)
	assert.Equal(t, []string{"nope"}, v.Grain)
	assert.Contains(t, v.Error, "unsupported grain")

	cfg.OutputFormat = config.OutputTable
	out, err = execute(t, NewPlanCommand(), cfg, "dimensions", "-g", "nope")
	require.Error(t, err)
	assert.True(t, core.IsUnsupportedGrain(err))
	assert.Empty(t, out)
}

func TestSupportedCommand(t *testing.T) {
	cfg := loadProject(t, config.OutputJSON)

	out, err := execute(t, NewSupportedCommand(), cfg, "--metrics", "revenue")
	require.NoError(t, err)

	var v supportedView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, []string{"revenue"}, v.Metrics)
	assert.Contains(t, v.Dimensions, "partner_name")
	assert.Contains(t, v.Dimensions, "campaign_name")

	_, err = execute(t, NewSupportedCommand(), cfg, "--metrics", "ghost")
	assert.Error(t, err)
}

func TestNewCommandContext_Errors(t *testing.T) {
	_, err := execute(t, NewFieldsCommand(), nil)
	assert.ErrorContains(t, err, "no configuration loaded")

	_, err = execute(t, NewFieldsCommand(), &config.Config{OutputFormat: config.OutputTable})
	assert.ErrorContains(t, err, "no datasources configured")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", "", " c "}))
	assert.Nil(t, splitList(nil))
}

func TestRenderer(t *testing.T) {
	buf := new(bytes.Buffer)
	r := NewRenderer(buf, "YAML")
	assert.True(t, r.Structured())
	require.NoError(t, r.Value(map[string]int{"a": 1}))
	assert.Equal(t, "a: 1\n", buf.String())

	buf.Reset()
	r = NewRenderer(buf, "")
	assert.False(t, r.Structured())
	r.Line("x=%d", 1)
	assert.Equal(t, "x=1\n", buf.String())
}
