// Package datasource builds schema sources: one physical schema, its field
// bindings and its join graph.
//
// Construction runs a fixed state machine:
//
//	uninitialized -> reflecting (optional) -> binding -> join-linking -> ready
//
// Any fatal condition moves the source to failed and New returns the error.
// A ready source is immutable.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapmetrics/internal/binder"
	"github.com/leapstack-labs/leapmetrics/internal/dag"
	"github.com/leapstack-labs/leapmetrics/internal/registry"
	"github.com/leapstack-labs/leapmetrics/pkg/adapter"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// State is a construction state of a DataSource.
type State int

// Construction states.
const (
	StateUninitialized State = iota
	StateReflecting
	StateBinding
	StateJoinLinking
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReflecting:
		return "reflecting"
	case StateBinding:
		return "binding"
	case StateJoinLinking:
		return "join-linking"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures New.
type Option func(*options)

type options struct {
	adapter  core.Adapter
	connect  *core.ConnectConfig
	schema   *core.Schema
	config   *core.DataSourceConfig
	scope    binder.FieldScope
	logger   *slog.Logger
	only     []string
	hook     func(from, to State)
	cleanups []func() error
	dialect  string
}

// WithAdapter reflects through an already connected adapter.
// The caller keeps ownership of the connection.
func WithAdapter(a core.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// WithConnect creates, connects and owns an adapter from the registry.
// It takes precedence over the connect section of WithConfig.
func WithConnect(cfg core.ConnectConfig) Option {
	return func(o *options) { o.connect = &cfg }
}

// WithSchema supplies a pre-built schema. Its tables win over reflected ones.
func WithSchema(s *core.Schema) Option {
	return func(o *options) { o.schema = s }
}

// WithConfig applies the per-table overlay and source-level fields.
func WithConfig(cfg core.DataSourceConfig) Option {
	return func(o *options) { o.config = &cfg }
}

// WithScope makes fields defined outside the source (warehouse level)
// visible to binding, so synthesis never shadows them.
func WithScope(scope binder.FieldScope) Option {
	return func(o *options) { o.scope = scope }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReflectOnly limits reflection to the named tables.
func WithReflectOnly(tables ...string) Option {
	return func(o *options) { o.only = append(o.only, tables...) }
}

// WithDialect names the SQL dialect of a source built from a schema alone.
// A reflecting adapter's dialect takes precedence.
func WithDialect(name string) Option {
	return func(o *options) { o.dialect = name }
}

// WithStateHook observes every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(o *options) { o.hook = fn }
}

// WithCleanup registers a release step that Close runs exactly once.
// Cleanups also run when construction fails.
func WithCleanup(fn func() error) Option {
	return func(o *options) { o.cleanups = append(o.cleanups, fn) }
}

// DataSource is a ready schema source.
type DataSource struct {
	name   string
	state  State
	hook   func(from, to State)
	logger *slog.Logger

	tables map[string]*core.Table
	// order lists active tables parents first
	order  []string
	graph  *dag.Graph
	fields *registry.FieldRegistry

	adapter     core.Adapter
	ownsAdapter bool
	dialect     string

	closeOnce sync.Once
	closeErr  error
	cleanups  []func() error
}

// New constructs a schema source. An empty name generates one.
// On failure no partially built source is returned.
func New(ctx context.Context, name string, opts ...Option) (*DataSource, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if name == "" {
		name = GenerateName()
	} else if !core.ValidIdentifier(name) {
		err := core.ErrConfig(core.ErrInvalidConfig, "invalid datasource name %q", name)
		runCleanups(o.cleanups)
		return nil, err
	}

	ds := &DataSource{
		name:     name,
		state:    StateUninitialized,
		hook:     o.hook,
		logger:   logger.With("datasource", name),
		tables:   make(map[string]*core.Table),
		fields:   registry.NewFieldRegistry(),
		cleanups: o.cleanups,
		dialect:  o.dialect,
	}

	if err := ds.build(ctx, o); err != nil {
		ds.transition(StateFailed)
		ds.logger.Debug("datasource construction failed", "error", err)
		_ = ds.Close()
		return nil, err
	}
	return ds, nil
}

func runCleanups(fns []func() error) {
	for i := len(fns) - 1; i >= 0; i-- {
		_ = fns[i]()
	}
}

func (ds *DataSource) transition(to State) {
	from := ds.state
	ds.state = to
	ds.logger.Debug("datasource state", "from", from.String(), "to", to.String())
	if ds.hook != nil {
		ds.hook(from, to)
	}
}

func (ds *DataSource) build(ctx context.Context, o *options) error {
	connect := o.connect
	var cfg core.DataSourceConfig
	if o.config != nil {
		cfg = *o.config
		if connect == nil {
			connect = cfg.Connect
		}
	}
	if o.adapter == nil && connect == nil && o.schema == nil && len(cfg.Tables) == 0 {
		return core.ErrConfig(core.ErrInvalidConfig,
			"datasource needs a connection, a schema or table config").At(ds.name, "", "")
	}

	var reflected *core.Schema
	if o.adapter != nil || connect != nil {
		ds.transition(StateReflecting)
		var err error
		if reflected, err = ds.reflect(ctx, o.adapter, connect, o.only); err != nil {
			return err
		}
	}

	tables := mergeSchemas(o.schema, reflected)
	for _, t := range tables {
		ds.tables[t.Name] = t
	}
	if err := applyOverlay(ds.name, ds.tables, cfg.Tables, ds.logger); err != nil {
		return err
	}

	ds.transition(StateBinding)
	if err := ds.bind(cfg, o.scope); err != nil {
		return err
	}

	ds.transition(StateJoinLinking)
	graph, err := buildGraph(ds.name, ds.activeTables(), ds.logger)
	if err != nil {
		return err
	}
	ds.graph = graph

	ds.transition(StateReady)
	ds.logger.Debug("datasource ready",
		"tables", len(ds.order), "fields", ds.fields.Count(), "joins", graph.EdgeCount())
	return nil
}

func (ds *DataSource) reflect(ctx context.Context, a core.Adapter, connect *core.ConnectConfig, only []string) (*core.Schema, error) {
	if a == nil {
		var err error
		a, err = adapter.NewAdapter(*connect, ds.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create adapter for datasource %s: %w", ds.name, err)
		}
		// Owned from here on so Close releases it even when Connect fails.
		ds.ownsAdapter = true
		ds.adapter = a
		if err := a.Connect(ctx, *connect); err != nil {
			return nil, fmt.Errorf("failed to connect datasource %s: %w", ds.name, err)
		}
	}
	ds.adapter = a

	schema, err := a.Reflect(ctx, only)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect datasource %s: %w", ds.name, err)
	}
	ds.logger.Debug("reflected schema", "dialect", a.DialectName(), "tables", len(schema.Tables))
	return schema, nil
}

// bind registers source-level fields, then binds tables parents first so
// join keys inherit their parent's fields.
func (ds *DataSource) bind(cfg core.DataSourceConfig, scope binder.FieldScope) error {
	if err := ds.registerConfigFields(cfg); err != nil {
		return err
	}

	active := ds.activeTables()
	links := structuralLinks(active)
	ds.order = bindOrder(active, links)

	lookup := registry.Chain{scope, ds.fields}
	for _, name := range ds.order {
		t := ds.tables[name]
		res, err := binder.Bind(t, binder.Options{
			Scope:      lookup,
			Parents:    parentTables(name, links, ds.tables),
			Tables:     active,
			DataSource: ds.name,
			Dialect:    ds.Dialect(),
			Logger:     ds.logger,
		})
		if err != nil {
			return err
		}
		for _, f := range res.Created {
			if _, err := ds.fields.Register(f, ds.name); err != nil {
				return locate(err, ds.name, name)
			}
		}
	}
	return nil
}

func (ds *DataSource) registerConfigFields(cfg core.DataSourceConfig) error {
	register := func(fcs []core.FieldConfig, kind core.FieldKind) error {
		for _, fc := range fcs {
			if !core.ValidFieldName(fc.Name) {
				return core.ErrConfig(core.ErrInvalidConfig, "invalid %s name %q", kind, fc.Name).At(ds.name, "", "")
			}
			added, err := ds.fields.Register(fc.ToField(kind), ds.name)
			if err != nil {
				return locate(err, ds.name, "")
			}
			if !added {
				return core.ErrConfig(core.ErrInvalidConfig, "%s %q defined twice", kind, fc.Name).At(ds.name, "", "")
			}
		}
		return nil
	}
	if err := register(cfg.Metrics, core.FieldMetric); err != nil {
		return err
	}
	return register(cfg.Dimensions, core.FieldDimension)
}

// locate attaches the source and table to a config error.
func locate(err error, datasource, table string) error {
	var ce *core.ConfigError
	if errors.As(err, &ce) {
		ce.At(datasource, table, "")
	}
	return err
}

func (ds *DataSource) activeTables() []*core.Table {
	names := make([]string, 0, len(ds.tables))
	for name, t := range ds.tables {
		if t.Active {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]*core.Table, len(names))
	for i, name := range names {
		out[i] = ds.tables[name]
	}
	return out
}

// Name returns the source name.
func (ds *DataSource) Name() string { return ds.name }

// State returns the construction state. A returned source is always ready.
func (ds *DataSource) State() State { return ds.state }

// Tables returns copies of the active tables sorted by name.
func (ds *DataSource) Tables() []*core.Table { return cloneTables(ds.activeTables()) }

// BindOrder returns the active table names, parents before children.
func (ds *DataSource) BindOrder() []string { return append([]string(nil), ds.order...) }

// Table returns a copy of the named table, active or not.
func (ds *DataSource) Table(name string) (*core.Table, bool) {
	t, ok := ds.tables[name]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// DimensionTables returns copies of the active DIMENSION tables sorted by name.
func (ds *DataSource) DimensionTables() []*core.Table {
	return cloneTables(ds.tablesOfType(core.TableDimension))
}

// MetricTables returns copies of the active METRIC tables sorted by name.
func (ds *DataSource) MetricTables() []*core.Table {
	return cloneTables(ds.tablesOfType(core.TableMetric))
}

func (ds *DataSource) tablesOfType(typ core.TableType) []*core.Table {
	var out []*core.Table
	for _, t := range ds.activeTables() {
		if typ == "" || t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

// TablesWithField returns copies of the active tables of the given type with
// an active column binding field. An empty type matches both.
func (ds *DataSource) TablesWithField(field string, typ core.TableType) []*core.Table {
	var out []*core.Table
	for _, t := range ds.tablesOfType(typ) {
		if t.HasField(field) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func cloneTables(tables []*core.Table) []*core.Table {
	out := make([]*core.Table, len(tables))
	for i, t := range tables {
		out[i] = t.Clone()
	}
	return out
}

// Dialect names the SQL dialect of the reflecting adapter. Sources built
// without one report the WithDialect value, possibly "".
func (ds *DataSource) Dialect() string {
	if ds.adapter == nil {
		return ds.dialect
	}
	return ds.adapter.DialectName()
}

// Graph returns a copy of the join graph over active tables.
func (ds *DataSource) Graph() *dag.Graph { return ds.graph.Clone() }

// Fields returns a read-only view of the fields defined by this source:
// source-level config fields plus synthesized ones.
func (ds *DataSource) Fields() registry.View { return ds.fields.View() }

// Close releases the owned connection and runs cleanups. It is safe to call
// more than once; only the first call does work.
func (ds *DataSource) Close() error {
	ds.closeOnce.Do(func() {
		var errs []error
		if ds.ownsAdapter && ds.adapter != nil {
			if err := ds.adapter.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close adapter: %w", err))
			}
		}
		for i := len(ds.cleanups) - 1; i >= 0; i-- {
			if err := ds.cleanups[i](); err != nil {
				errs = append(errs, err)
			}
		}
		ds.closeErr = errors.Join(errs...)
	})
	return ds.closeErr
}
