package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type tableView struct {
	DataSource string   `json:"datasource" yaml:"datasource"`
	Table      string   `json:"table" yaml:"table"`
	Type       string   `json:"type" yaml:"type"`
	PrimaryKey []string `json:"primary_key" yaml:"primary_key"`
	Parents    []string `json:"parents,omitempty" yaml:"parents,omitempty"`
	Children   []string `json:"children,omitempty" yaml:"children,omitempty"`
	Fields     []string `json:"fields" yaml:"fields"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List active tables with their keys and join edges",
		Long: `List the active tables of every datasource in bind order, with the
primary key, the parent tables they join to, the child tables joining
them and the fields they bind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var views []tableView
			for _, name := range cmdCtx.Warehouse.GetDataSourceNames() {
				ds, _ := cmdCtx.Warehouse.GetDataSource(name)
				g := ds.Graph()
				for _, tn := range ds.BindOrder() {
					t, _ := ds.Table(tn)
					views = append(views, tableView{
						DataSource: name,
						Table:      t.Name,
						Type:       string(t.Type),
						PrimaryKey: t.PrimaryKey,
						Parents:    g.GetParents(t.Name),
						Children:   g.GetChildren(t.Name),
						Fields:     t.FieldNames(),
					})
				}
			}

			r := cmdCtx.Renderer
			if r.Structured() {
				return r.Value(views)
			}
			rows := make([]table.Row, 0, len(views))
			for _, v := range views {
				rows = append(rows, table.Row{v.DataSource, v.Table, v.Type, join(v.PrimaryKey), join(v.Parents), join(v.Children), join(v.Fields)})
			}
			r.Table(fmt.Sprintf("Tables (%d)", len(views)),
				table.Row{"Datasource", "Table", "Type", "Primary Key", "Parents", "Children", "Fields"}, rows)
			return nil
		},
	}
}
