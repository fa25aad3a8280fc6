package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapmetrics/internal/config"
)

// Renderer writes command results as a table or as structured documents.
type Renderer struct {
	w      io.Writer
	format string
}

// NewRenderer returns a renderer for one of the config output formats.
// Unknown formats render tables.
func NewRenderer(w io.Writer, format string) *Renderer {
	return &Renderer{w: w, format: strings.ToLower(format)}
}

// Structured reports whether results are rendered as JSON or YAML.
func (r *Renderer) Structured() bool {
	return r.format == config.OutputJSON || r.format == config.OutputYAML
}

// Value renders v as a JSON or YAML document.
func (r *Renderer) Value(v any) error {
	switch r.format {
	case config.OutputYAML:
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// Table renders rows under a header in a box-drawn table.
func (r *Renderer) Table(title string, header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}

// Line writes one formatted line of text output.
func (r *Renderer) Line(format string, args ...any) {
	_, _ = fmt.Fprintf(r.w, format+"\n", args...)
}

func join(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
