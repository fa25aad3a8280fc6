package commands

import (
	"errors"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmetrics/internal/warehouse"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

type joinView struct {
	Child  string   `json:"child" yaml:"child"`
	Parent string   `json:"parent" yaml:"parent"`
	Keys   []string `json:"keys" yaml:"keys"`
}

type planView struct {
	DataSource string            `json:"datasource" yaml:"datasource"`
	Anchor     string            `json:"anchor" yaml:"anchor"`
	Tables     []string          `json:"tables" yaml:"tables"`
	Joins      []joinView        `json:"joins" yaml:"joins"`
	Grain      []string          `json:"grain" yaml:"grain"`
	Targets    []string          `json:"targets,omitempty" yaml:"targets,omitempty"`
	FieldMap   map[string]string `json:"field_map" yaml:"field_map"`
	Projection string            `json:"projection,omitempty" yaml:"projection,omitempty"`
	Covered    []string          `json:"covered_metrics,omitempty" yaml:"covered_metrics,omitempty"`
}

type unsupportedView struct {
	Error   string   `json:"error" yaml:"error"`
	Grain   []string `json:"grain" yaml:"grain"`
	Metric  string   `json:"metric,omitempty" yaml:"metric,omitempty"`
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

func newPlanView(ts *warehouse.TableSet) planView {
	v := planView{
		DataSource: ts.DataSource,
		Anchor:     ts.Anchor,
		Tables:     ts.Tables,
		Joins:      make([]joinView, 0, len(ts.Joins)),
		Grain:      ts.Grain,
		Targets:    ts.Targets,
		FieldMap:   make(map[string]string, len(ts.FieldMap)),
	}
	for _, j := range ts.Joins {
		v.Joins = append(v.Joins, joinView{Child: j.Child, Parent: j.Parent, Keys: j.Keys})
	}
	for f, ref := range ts.FieldMap {
		v.FieldMap[f] = ref.String()
	}
	return v
}

// NewPlanCommand creates the plan command and its subcommands.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve the table set for a grain",
		Long: `Resolve which tables of one datasource must be joined, and how, to read
a set of dimensions or a metric at a grain.

A grain that no datasource can satisfy is reported with the fields the
closest candidate is missing.`,
	}
	cmd.AddCommand(newPlanDimensionsCommand())
	cmd.AddCommand(newPlanMetricCommand())
	return cmd
}

func newPlanDimensionsCommand() *cobra.Command {
	var grain []string

	cmd := &cobra.Command{
		Use:     "dimensions",
		Short:   "Plan the dimension tables for a grain",
		Example: `  leapmetrics plan dimensions --grain partner_name,campaign_name`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			fields := splitList(grain)
			ts, err := cmdCtx.Warehouse.GetDimensionTableSet(fields)
			if err != nil {
				return renderUnsupported(cmdCtx.Renderer, "", fields, err)
			}
			return renderPlan(cmdCtx.Renderer, newPlanView(ts))
		},
	}
	cmd.Flags().StringSliceVarP(&grain, "grain", "g", nil, "Dimensions of the grain (comma-separated)")
	_ = cmd.MarkFlagRequired("grain")
	return cmd
}

func newPlanMetricCommand() *cobra.Command {
	var (
		metric string
		grain  []string
	)

	cmd := &cobra.Command{
		Use:   "metric",
		Short: "Plan the tables that compute a metric at a grain",
		Example: `  # Revenue by partner
  leapmetrics plan metric --metric revenue --grain partner_name

  # Total revenue, no grain
  leapmetrics plan metric --metric revenue -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			fields := splitList(grain)
			ts, err := cmdCtx.Warehouse.GetMetricTableSet(metric, fields)
			if err != nil {
				return renderUnsupported(cmdCtx.Renderer, metric, fields, err)
			}
			v := newPlanView(ts)
			if m, ok := cmdCtx.Warehouse.GetMetric(metric); ok {
				v.Projection = ts.Project(m, nil).Expression
			}
			v.Covered = ts.CoveredMetrics(cmdCtx.Warehouse)
			return renderPlan(cmdCtx.Renderer, v)
		},
	}
	cmd.Flags().StringVarP(&metric, "metric", "m", "", "Metric to plan")
	cmd.Flags().StringSliceVarP(&grain, "grain", "g", nil, "Dimensions of the grain (comma-separated)")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}

func renderPlan(r *Renderer, v planView) error {
	if r.Structured() {
		return r.Value(v)
	}

	r.Line("Datasource: %s", v.DataSource)
	r.Line("Anchor:     %s", v.Anchor)
	if v.Projection != "" {
		r.Line("Projection: %s", v.Projection)
	}
	if len(v.Covered) > 0 {
		r.Line("Covers:     %s", join(v.Covered))
	}

	joins := make([]table.Row, 0, len(v.Joins))
	for _, j := range v.Joins {
		joins = append(joins, table.Row{j.Child, j.Parent, join(j.Keys)})
	}
	if len(joins) > 0 {
		r.Table("Joins", table.Row{"Child", "Parent", "Keys"}, joins)
	}

	names := make([]string, 0, len(v.FieldMap))
	for f := range v.FieldMap {
		names = append(names, f)
	}
	sort.Strings(names)
	fields := make([]table.Row, 0, len(names))
	for _, f := range names {
		fields = append(fields, table.Row{f, v.FieldMap[f]})
	}
	r.Table("Fields", table.Row{"Field", "Column"}, fields)
	return nil
}

// renderUnsupported reports an unsatisfiable grain. In structured output the
// report is the document and the command still fails.
func renderUnsupported(r *Renderer, metric string, grain []string, err error) error {
	var ug *core.UnsupportedGrainError
	if !errors.As(err, &ug) {
		return err
	}
	if r.Structured() {
		if rerr := r.Value(unsupportedView{Error: ug.Error(), Grain: grain, Metric: metric, Missing: ug.Missing}); rerr != nil {
			return rerr
		}
	}
	return err
}
