package adhoc

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Records is an in-memory table.
type Records struct {
	Table      string
	Columns    []ColumnSpec
	Rows       [][]any
	PrimaryKey []string
}

// Name implements Source.
func (r *Records) Name() string { return r.Table }

// Load implements Source.
func (r *Records) Load(context.Context) (*Data, error) {
	return &Data{Columns: r.Columns, Rows: r.Rows, PrimaryKey: r.PrimaryKey}, nil
}

// Options are the adhoc_table_options of a data_url table.
type Options struct {
	// Format overrides detection from the URL extension:
	// csv, tsv, json, html, xlsx or sqlite.
	Format string `mapstructure:"format"`

	// Delimiter is the CSV field separator.
	Delimiter string `mapstructure:"delimiter"`

	// Sheet selects the Excel sheet; the first sheet by default.
	Sheet string `mapstructure:"sheet"`

	// Orient is the JSON layout: records or table. Detected when empty.
	Orient string `mapstructure:"orient"`

	// Table names the table to copy out of a SQLite database; the ad hoc
	// table name by default.
	Table string `mapstructure:"table"`
}

type parseFunc func(ctx context.Context, data []byte, opts Options) (*Data, error)

func inMemory(fn func([]byte, Options) (*Data, error)) parseFunc {
	return func(_ context.Context, data []byte, opts Options) (*Data, error) { return fn(data, opts) }
}

var parsers = map[string]parseFunc{
	"csv":     inMemory(parseCSV),
	"tsv":     inMemory(parseCSV),
	"txt":     inMemory(parseCSV),
	"json":    inMemory(parseJSON),
	"html":    inMemory(parseHTML),
	"htm":     inMemory(parseHTML),
	"xlsx":    inMemory(parseExcel),
	"xlsm":    inMemory(parseExcel),
	"sqlite":  parseSQLite,
	"sqlite3": parseSQLite,
	"db":      parseSQLite,
}

// URLSource loads a table from a data URL.
type URLSource struct {
	Table   string
	URL     string
	Options Options

	parse parseFunc
}

// Name implements Source.
func (s *URLSource) Name() string { return s.Table }

// Load fetches and parses the data URL.
func (s *URLSource) Load(ctx context.Context) (*Data, error) {
	raw, err := openURL(ctx, s.URL)
	if err != nil {
		return nil, err
	}
	data, err := s.parse(ctx, raw, s.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.URL, err)
	}
	return data, nil
}

// FromConfig builds the source of a data_url table. The format comes from
// adhoc_table_options or the URL extension.
func FromConfig(table string, tc core.TableConfig) (*URLSource, error) {
	var opts Options
	if len(tc.AdhocOptions) > 0 {
		if err := mapstructure.Decode(tc.AdhocOptions, &opts); err != nil {
			return nil, core.ErrConfig(core.ErrInvalidConfig, "invalid adhoc_table_options: %v", err).At("", table, "")
		}
	}

	dataURL := tc.DataURL
	format := strings.ToLower(opts.Format)
	if isGoogleSheet(dataURL) {
		export, err := sheetExportURL(dataURL)
		if err != nil {
			return nil, core.ErrConfig(core.ErrInvalidConfig, "%v", err).At("", table, "")
		}
		dataURL = export
		if format == "" {
			format = "csv"
		}
	}
	if format == "" {
		format = extension(dataURL)
	}
	if opts.Table == "" {
		opts.Table = table
	}
	if format == "tsv" && opts.Delimiter == "" {
		opts.Delimiter = "\t"
	}
	parse, ok := parsers[format]
	if !ok {
		return nil, core.ErrConfig(core.ErrInvalidConfig,
			"cannot determine format of %q (set adhoc_table_options.format)", tc.DataURL).At("", table, "")
	}
	return &URLSource{Table: table, URL: dataURL, Options: opts, parse: parse}, nil
}

// fromHeader turns a header row plus string rows into Data.
func fromHeader(rows [][]string) (*Data, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	cols := make([]ColumnSpec, len(rows[0]))
	for i, name := range rows[0] {
		cols[i] = ColumnSpec{Name: strings.TrimSpace(name)}
	}
	data := &Data{Columns: cols, Rows: make([][]any, 0, len(rows)-1)}
	for _, r := range rows[1:] {
		row := make([]any, len(r))
		for i, v := range r {
			row[i] = v
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}

func parseCSV(raw []byte, opts Options) (*Data, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	if opts.Delimiter != "" {
		d := []rune(opts.Delimiter)
		if len(d) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", opts.Delimiter)
		}
		r.Comma = d[0]
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return fromHeader(rows)
}

// parseJSON reads either a list of records or a table-schema document
// ({"schema": {"fields": [...], "primaryKey": [...]}, "data": [...]}).
func parseJSON(raw []byte, opts Options) (*Data, error) {
	orient := strings.ToLower(opts.Orient)
	if orient == "" {
		orient = "records"
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
			orient = "table"
		}
	}
	switch orient {
	case "records":
		return parseRecords(json.NewDecoder(bytes.NewReader(raw)))
	case "table":
		return parseTableSchema(raw)
	}
	return nil, fmt.Errorf("unsupported JSON orient %q", opts.Orient)
}

// parseRecords decodes [{...}, ...] keeping columns in first-seen key order.
func parseRecords(dec *json.Decoder) (*Data, error) {
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	data := &Data{}
	index := make(map[string]int)
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		values := make(map[int]any)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("expected object key, got %v", tok)
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, err
			}
			i, seen := index[key]
			if !seen {
				i = len(data.Columns)
				index[key] = i
				data.Columns = append(data.Columns, ColumnSpec{Name: key})
			}
			values[i] = jsonValue(v)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		row := make([]any, len(data.Columns))
		for i, v := range values {
			row[i] = v
		}
		data.Rows = append(data.Rows, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	return data, nil
}

type tableSchemaDoc struct {
	Schema struct {
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
		PrimaryKey []string `json:"primaryKey"`
	} `json:"schema"`
	Data []map[string]any `json:"data"`
}

func parseTableSchema(raw []byte) (*Data, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc tableSchemaDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if len(doc.Schema.Fields) == 0 {
		return nil, fmt.Errorf("table schema has no fields")
	}

	data := &Data{PrimaryKey: doc.Schema.PrimaryKey}
	for _, f := range doc.Schema.Fields {
		data.Columns = append(data.Columns, ColumnSpec{Name: f.Name, Type: schemaType(f.Type)})
	}
	for _, rec := range doc.Data {
		row := make([]any, len(data.Columns))
		for i, c := range data.Columns {
			row[i] = jsonValue(rec[c.Name])
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}

// schemaType maps Table Schema field types to column types.
func schemaType(t string) string {
	switch t {
	case "integer":
		return "INTEGER"
	case "number":
		return "REAL"
	case "boolean":
		return "BOOLEAN"
	case "datetime", "date":
		return "TIMESTAMP"
	case "string":
		return "TEXT"
	}
	return ""
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	}
	return v
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// parseHTML reads the single <table> of a document. Header cells come from
// the first row.
func parseHTML(raw []byte, _ Options) (*Data, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	tables := findAll(doc, atom.Table)
	if len(tables) != 1 {
		return nil, fmt.Errorf("expected exactly one <table>, found %d", len(tables))
	}

	var rows [][]string
	for _, tr := range findAll(tables[0], atom.Tr) {
		var cells []string
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
				cells = append(cells, strings.TrimSpace(textContent(c)))
			}
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return fromHeader(rows)
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func parseExcel(raw []byte, opts Options) (*Data, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	return fromHeader(rows)
}
