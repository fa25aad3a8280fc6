package binder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// conversion derives one dimension from a date or timestamp column.
// Format holds a single %s for the column name.
type conversion struct {
	Name   string
	Type   string
	Format string
}

// Shared by duckdb and postgres.
var ansiDate = []conversion{
	{"year", "INTEGER", "CAST(EXTRACT(YEAR FROM %s) AS INTEGER)"},
	{"quarter", "VARCHAR(8)", "CAST(EXTRACT(YEAR FROM %[1]s) AS VARCHAR) || '-Q' || CAST(EXTRACT(QUARTER FROM %[1]s) AS VARCHAR)"},
	{"month_of_year", "INTEGER", "CAST(EXTRACT(MONTH FROM %s) AS INTEGER)"},
	{"date", "DATE", "CAST(%s AS DATE)"},
	{"day_of_week", "INTEGER", "CAST(EXTRACT(DOW FROM %s) AS INTEGER)"},
}

var ansiTime = []conversion{
	{"hour", "TIMESTAMP", "DATE_TRUNC('hour', %s)"},
	{"hour_of_day", "INTEGER", "CAST(EXTRACT(HOUR FROM %s) AS INTEGER)"},
}

var dialectConversions = map[string]map[core.TypeFamily][]conversion{
	"sqlite": {
		core.FamilyDate: {
			{"year", "INTEGER", "CAST(strftime('%%Y', %s) AS INTEGER)"},
			{"quarter", "VARCHAR(8)", "strftime('%%Y', %[1]s) || '-Q' || ((CAST(strftime('%%m', %[1]s) AS INTEGER) + 2) / 3)"},
			{"month", "VARCHAR(8)", "strftime('%%Y-%%m', %s)"},
			{"month_of_year", "INTEGER", "CAST(strftime('%%m', %s) AS INTEGER)"},
			{"date", "DATE", "DATE(%s)"},
			{"day_of_week", "INTEGER", "CAST(strftime('%%w', %s) AS INTEGER)"},
		},
		core.FamilyTimestamp: {
			{"hour", "TIMESTAMP", "strftime('%%Y-%%m-%%d %%H:00:00', %s)"},
			{"hour_of_day", "INTEGER", "CAST(strftime('%%H', %s) AS INTEGER)"},
		},
	},
	"duckdb": {
		core.FamilyDate:      append(append([]conversion{}, ansiDate...), conversion{"month", "VARCHAR(8)", "strftime(%s, '%%Y-%%m')"}),
		core.FamilyTimestamp: ansiTime,
	},
	"postgres": {
		core.FamilyDate:      append(append([]conversion{}, ansiDate...), conversion{"month", "VARCHAR(8)", "TO_CHAR(%s, 'YYYY-MM')"}),
		core.FamilyTimestamp: ansiTime,
	},
}

// conversionsFor lists the conversions a dialect offers for a column type.
// Timestamps get the date conversions plus the time of day ones.
func conversionsFor(dialect string, typ core.DataType) []conversion {
	byFamily, ok := dialectConversions[strings.ToLower(dialect)]
	if !ok {
		return nil
	}
	switch typ.Family() {
	case core.FamilyDate:
		return byFamily[core.FamilyDate]
	case core.FamilyTimestamp:
		return append(append([]conversion{}, byFamily[core.FamilyDate]...), byFamily[core.FamilyTimestamp]...)
	}
	return nil
}

// addConversions binds derived dimensions to columns that allow type
// conversions. A field the table already binds is skipped, and a name
// already defined in scope keeps its definition.
func addConversions(t *core.Table, opts Options, lookup func(string) (*core.Field, bool),
	created map[string]*core.Field, res *Result, logger *slog.Logger) error {
	existing := make(map[string]struct{})
	for _, name := range t.FieldNames() {
		existing[name] = struct{}{}
	}

	families := make(map[core.TypeFamily]string)
	for _, col := range t.ActiveColumns() {
		if !col.AllowTypeConversions {
			continue
		}
		typ := col.EffectiveType()
		convs := conversionsFor(opts.Dialect, typ)
		if len(convs) == 0 {
			logger.Debug("no type conversions", "column", col.Name, "type", typ.String(), "dialect", opts.Dialect)
			continue
		}
		if other, dup := families[typ.Family()]; dup {
			return core.ErrConfig(core.ErrInvalidConfig,
				"columns %s and %s both allow type conversions for %s", other, col.Name, typ.String()).
				At(opts.DataSource, t.Name, col.Name)
		}
		families[typ.Family()] = col.Name

		for _, conv := range convs {
			name := col.TypeConversionPrefix + conv.Name
			if !core.ValidFieldName(name) {
				return core.ErrConfig(core.ErrInvalidConfig, "invalid conversion field name %q", name).
					At(opts.DataSource, t.Name, col.Name)
			}
			if _, ok := existing[name]; ok {
				logger.Debug("skipping conversion field", "column", col.Name, "field", name)
				continue
			}
			if f, ok := lookup(name); ok && f.IsMetric() {
				logger.Debug("skipping conversion field defined as metric", "column", col.Name, "field", name)
				continue
			}

			col.AddField(name)
			if col.Formulas == nil {
				col.Formulas = make(map[string]string)
			}
			col.Formulas[name] = fmt.Sprintf(conv.Format, col.Name)
			existing[name] = struct{}{}
			logger.Debug("added conversion field", "column", col.Name, "field", name)

			if _, ok := lookup(name); ok {
				continue
			}
			f := &core.Field{
				Name:        name,
				Kind:        core.FieldDimension,
				Type:        core.ParseDataType(conv.Type),
				Description: "Automatic conversion field",
			}
			created[name] = f
			res.Created = append(res.Created, f)
		}
	}
	return nil
}
