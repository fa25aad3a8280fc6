// Package binder attaches logical field names to the physical columns of a
// table and synthesizes definitions for fields no scope defines yet.
package binder

import (
	"log/slog"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// FieldScope resolves field names already defined for the table's source.
type FieldScope interface {
	GetField(name string) (*core.Field, bool)
}

// Options configures a Bind call.
type Options struct {
	// Scope holds source-local and warehouse-level fields.
	Scope FieldScope

	// Parents are the already bound parent tables of the table.
	// A column named like one of a parent's primary key columns inherits
	// that key's fields.
	Parents []*core.Table

	// Tables are all active tables of the source, used to decide whether a
	// short field name is ambiguous.
	Tables []*core.Table

	// DataSource names the owning source in errors.
	DataSource string

	// Dialect selects the SQL used for type conversion fields. Without a
	// known dialect no conversion fields are added.
	Dialect string

	Logger *slog.Logger
}

// Result describes what Bind did to one table.
type Result struct {
	Table string

	// Created holds synthesized field definitions in column order.
	Created []*core.Field

	// Bound holds every field name bound to an active column.
	Bound []string
}

// Bind binds fields to the active columns of t in place.
//
// Columns carrying explicit or pre-built bindings keep them. When the table
// has create_fields set, unbound columns receive a default field name and
// any bound name missing from scope gets a synthesized definition.
// Date and timestamp columns allowing type conversions then gain derived
// dimensions written in the dialect's SQL.
func Bind(t *core.Table, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("table", t.Name)

	res := &Result{Table: t.Name}
	created := make(map[string]*core.Field)
	lookup := func(name string) (*core.Field, bool) {
		if f, ok := created[name]; ok {
			return f, true
		}
		if opts.Scope != nil {
			return opts.Scope.GetField(name)
		}
		return nil, false
	}

	for _, col := range t.ActiveColumns() {
		for _, name := range col.Fields {
			if !core.ValidFieldName(name) {
				return nil, core.ErrConfig(core.ErrInvalidConfig, "invalid field name %q", name).
					At(opts.DataSource, t.Name, col.Name)
			}
		}

		inherited := false
		if len(col.Fields) == 0 && t.CreateFields {
			var names []string
			names, inherited = defaultFieldNames(t, col, opts)
			for _, name := range names {
				col.AddField(name)
			}
			logger.Debug("assigned default fields", "column", col.Name, "fields", names, "inherited", inherited)
		}

		for _, name := range col.Fields {
			if existing, ok := lookup(name); ok {
				if t.Type == core.TableDimension && existing.IsMetric() {
					return nil, core.ErrConfig(core.ErrFieldConflict,
						"dimension table binds metric %q", name).At(opts.DataSource, t.Name, col.Name)
				}
				continue
			}
			if !t.CreateFields {
				// The definition must come from source or warehouse config.
				continue
			}

			f := synthesize(t, col, name, inherited || isKeyLike(t, col, opts.Parents))
			created[name] = f
			res.Created = append(res.Created, f)
			logger.Debug("synthesized field", "column", col.Name, "field", name, "kind", f.Kind, "type", f.Type.String())
		}
	}

	if err := addConversions(t, opts, lookup, created, res, logger); err != nil {
		return nil, err
	}

	res.Bound = t.FieldNames()
	if len(res.Bound) == 0 {
		return nil, core.ErrConfig(core.ErrNoFields, "no active column binds a field").
			At(opts.DataSource, t.Name, "")
	}
	return res, nil
}

// synthesize builds a definition for a field first seen on col.
func synthesize(t *core.Table, col *core.Column, name string, key bool) *core.Field {
	typ := col.EffectiveType()
	f := &core.Field{Name: name, Kind: core.FieldDimension, Type: typ}
	if t.Type != core.TableMetric || key || isNameColumn(col.Name) || !typ.IsNumeric() {
		return f
	}

	f.Kind = core.FieldMetric
	f.Aggregation = core.DefaultAggregation
	rounding := 2
	if typ.Family() == core.FamilyInteger {
		rounding = 0
	}
	f.Rounding = &rounding
	return f
}
