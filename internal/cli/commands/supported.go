package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type supportedView struct {
	Metrics    []string `json:"metrics" yaml:"metrics"`
	Dimensions []string `json:"dimensions" yaml:"dimensions"`
}

// NewSupportedCommand creates the supported command.
func NewSupportedCommand() *cobra.Command {
	var metrics []string

	cmd := &cobra.Command{
		Use:     "supported",
		Short:   "List the dimensions every given metric can be grouped by",
		Example: `  leapmetrics supported --metrics revenue,leads`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			names := splitList(metrics)
			dims, err := cmdCtx.Warehouse.GetSupportedDimensions(names)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.Structured() {
				return r.Value(supportedView{Metrics: names, Dimensions: dims})
			}
			rows := make([]table.Row, 0, len(dims))
			for _, d := range dims {
				rows = append(rows, table.Row{d})
			}
			r.Table(fmt.Sprintf("Supported dimensions (%d)", len(dims)), table.Row{"Dimension"}, rows)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&metrics, "metrics", "m", nil, "Metrics to intersect (comma-separated)")
	_ = cmd.MarkFlagRequired("metrics")
	return cmd
}
