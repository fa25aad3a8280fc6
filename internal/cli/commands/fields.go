package commands

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

type fieldView struct {
	Name        string `json:"name" yaml:"name"`
	Kind        string `json:"kind" yaml:"kind"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Aggregation string `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	Rounding    *int   `json:"rounding,omitempty" yaml:"rounding,omitempty"`
	Formula     string `json:"formula,omitempty" yaml:"formula,omitempty"`
	Origin      string `json:"origin" yaml:"origin"`
}

// NewFieldsCommand creates the fields command.
func NewFieldsCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the metrics and dimensions of the warehouse",
		Long: `List every field the warehouse knows: warehouse-level definitions,
datasource definitions and fields synthesized from table columns.`,
		Example: `  # List all fields
  leapmetrics fields

  # List only metrics as JSON
  leapmetrics fields --kind metric -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFields(cmd, kind)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only list fields of this kind (metric|dimension)")
	_ = cmd.RegisterFlagCompletionFunc("kind", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(core.FieldMetric), string(core.FieldDimension)}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runFields(cmd *cobra.Command, kind string) error {
	switch core.FieldKind(kind) {
	case "", core.FieldMetric, core.FieldDimension:
	default:
		return fmt.Errorf("invalid --kind %q (expected metric or dimension)", kind)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	fields := cmdCtx.Warehouse.Fields()
	var views []fieldView
	for _, f := range fields.Fields() {
		if kind != "" && string(f.Kind) != kind {
			continue
		}
		views = append(views, fieldView{
			Name:        f.Name,
			Kind:        string(f.Kind),
			Type:        f.Type.String(),
			Aggregation: f.Aggregation,
			Rounding:    f.Rounding,
			Formula:     f.Formula,
			Origin:      fields.Origin(f.Name),
		})
	}

	r := cmdCtx.Renderer
	if r.Structured() {
		return r.Value(views)
	}

	titleCaser := cases.Title(language.English)
	rows := make([]table.Row, 0, len(views))
	for _, v := range views {
		rounding := ""
		if v.Rounding != nil {
			rounding = strconv.Itoa(*v.Rounding)
		}
		rows = append(rows, table.Row{v.Name, titleCaser.String(v.Kind), v.Type, v.Aggregation, rounding, v.Formula, v.Origin})
	}
	r.Table(fmt.Sprintf("Fields (%d)", len(views)),
		table.Row{"Name", "Kind", "Type", "Aggregation", "Rounding", "Formula", "Origin"}, rows)
	return nil
}
