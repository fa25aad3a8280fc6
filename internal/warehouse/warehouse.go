// Package warehouse merges schema sources into one field namespace and
// plans table sets over their join graphs.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapmetrics/internal/adhoc"
	"github.com/leapstack-labs/leapmetrics/internal/datasource"
	"github.com/leapstack-labs/leapmetrics/internal/registry"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// origin names warehouse-level field definitions in the registry.
const origin = "warehouse"

// Option configures a Warehouse.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    []core.FieldConfig
	dimensions []core.FieldConfig
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFields adds warehouse-level field definitions. They are registered
// before any source field and win on name collisions.
func WithFields(metrics, dimensions []core.FieldConfig) Option {
	return func(o *options) {
		o.metrics = append(o.metrics, metrics...)
		o.dimensions = append(o.dimensions, dimensions...)
	}
}

// Warehouse is the read-only union of one or more ready schema sources.
// All lookups and planning calls are safe for concurrent use.
type Warehouse struct {
	sources map[string]*datasource.DataSource
	frozen  map[string]*source
	names   []string
	fields  *registry.FieldRegistry
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New builds a warehouse over already constructed sources.
func New(sources []*datasource.DataSource, opts ...Option) (*Warehouse, error) {
	o := newOptions(opts)
	fields, err := warehouseFields(o.metrics, o.dimensions)
	if err != nil {
		return nil, err
	}
	return build(sources, fields, o.logger)
}

// NewFromConfig instantiates every configured source, concurrently, and
// builds a warehouse over them plus any extra sources. Warehouse-level fields
// from cfg are visible to every source while it binds. Sources created here
// are closed again when construction fails.
func NewFromConfig(ctx context.Context, cfg core.WarehouseConfig, extra []*datasource.DataSource, opts ...Option) (*Warehouse, error) {
	o := newOptions(append([]Option{WithFields(cfg.Metrics, cfg.Dimensions)}, opts...))
	fields, err := warehouseFields(o.metrics, o.dimensions)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.DataSources))
	for name := range cfg.DataSources {
		names = append(names, name)
	}
	sort.Strings(names)

	built := make([]*datasource.DataSource, len(names))
	closeBuilt := func() {
		for _, ds := range built {
			if ds != nil {
				_ = ds.Close()
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		dsCfg := cfg.DataSources[name]
		g.Go(func() error {
			ds, err := newSource(gctx, name, dsCfg, cfg.AdhocDir, fields, o.logger)
			if err != nil {
				return fmt.Errorf("failed to build datasource %s: %w", name, err)
			}
			built[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeBuilt()
		return nil, err
	}

	wh, err := build(append(built, extra...), fields, o.logger)
	if err != nil {
		closeBuilt()
		return nil, err
	}
	return wh, nil
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// newSource picks the construction route for one configured source.
func newSource(ctx context.Context, name string, cfg core.DataSourceConfig, adhocDir string, scope *registry.FieldRegistry, logger *slog.Logger) (*datasource.DataSource, error) {
	opts := []datasource.Option{datasource.WithScope(scope), datasource.WithLogger(logger)}
	if cfg.DataURL != "" {
		return adhoc.NewDataSourceFromURL(ctx, name, adhocDir, cfg, opts...)
	}
	if adhoc.HasAdhocTables(cfg) {
		return adhoc.NewDataSourceFromConfig(ctx, name, adhocDir, cfg, opts...)
	}
	return datasource.New(ctx, name, append(opts, datasource.WithConfig(cfg))...)
}

func warehouseFields(metrics, dimensions []core.FieldConfig) (*registry.FieldRegistry, error) {
	fields := registry.NewFieldRegistry()
	register := func(fcs []core.FieldConfig, kind core.FieldKind) error {
		for _, fc := range fcs {
			if !core.ValidFieldName(fc.Name) {
				return core.ErrConfig(core.ErrInvalidConfig, "invalid %s name %q", kind, fc.Name)
			}
			added, err := fields.Register(fc.ToField(kind), origin)
			if err != nil {
				return err
			}
			if !added {
				return core.ErrConfig(core.ErrInvalidConfig, "%s %q defined twice", kind, fc.Name)
			}
		}
		return nil
	}
	if err := register(metrics, core.FieldMetric); err != nil {
		return nil, err
	}
	if err := register(dimensions, core.FieldDimension); err != nil {
		return nil, err
	}
	return fields, nil
}

func build(sources []*datasource.DataSource, fields *registry.FieldRegistry, logger *slog.Logger) (*Warehouse, error) {
	if len(sources) == 0 {
		return nil, core.ErrConfig(core.ErrInvalidConfig, "warehouse needs at least one datasource")
	}

	wh := &Warehouse{
		sources: make(map[string]*datasource.DataSource, len(sources)),
		frozen:  make(map[string]*source, len(sources)),
		fields:  fields,
		logger:  logger,
	}
	for _, ds := range sources {
		if _, dup := wh.sources[ds.Name()]; dup {
			return nil, core.ErrConfig(core.ErrInvalidConfig, "duplicate datasource name").At(ds.Name(), "", "")
		}
		wh.sources[ds.Name()] = ds
		wh.frozen[ds.Name()] = snapshot(ds)
		wh.names = append(wh.names, ds.Name())
	}
	sort.Strings(wh.names)

	for _, name := range wh.names {
		if err := wh.fields.Merge(wh.sources[name].Fields()); err != nil {
			var ce *core.ConfigError
			if errors.As(err, &ce) {
				ce.At(name, "", "")
			}
			return nil, err
		}
	}
	if err := wh.validate(); err != nil {
		return nil, err
	}

	logger.Debug("warehouse ready",
		"datasources", wh.names,
		"metrics", len(wh.fields.MetricNames()),
		"dimensions", len(wh.fields.DimensionNames()))
	return wh, nil
}

// validate checks every binding against the merged registry.
func (wh *Warehouse) validate() error {
	for _, name := range wh.names {
		src := wh.frozen[name]
		for _, tn := range src.names {
			t := src.tables[tn]
			for _, c := range t.ActiveColumns() {
				for _, f := range c.Fields {
					field, ok := wh.fields.GetField(f)
					if !ok {
						return core.ErrConfig(core.ErrUnknownField, "%q is not defined in any registry", f).At(name, t.Name, c.Name)
					}
					if t.Type == core.TableDimension && field.IsMetric() {
						return core.ErrConfig(core.ErrFieldConflict, "dimension table binds metric %q", f).At(name, t.Name, c.Name)
					}
				}
			}
			for _, k := range t.PrimaryKey {
				c, _ := t.ActiveColumn(k)
				if !wh.bindsDimension(c) {
					return core.ErrConfig(core.ErrMissingKeyDimension, "bind a dimension to the key column").At(name, t.Name, k)
				}
			}
		}
	}
	return nil
}

func (wh *Warehouse) bindsDimension(c *core.Column) bool {
	if c == nil {
		return false
	}
	for _, f := range c.Fields {
		if wh.fields.HasDimension(f) {
			return true
		}
	}
	return false
}

// Fields returns a read-only view of the merged registry.
func (wh *Warehouse) Fields() registry.View { return wh.fields.View() }

// HasField reports whether a field of either kind exists.
func (wh *Warehouse) HasField(name string) bool { return wh.fields.HasField(name) }

// HasMetric reports whether name is a metric.
func (wh *Warehouse) HasMetric(name string) bool { return wh.fields.HasMetric(name) }

// HasDimension reports whether name is a dimension.
func (wh *Warehouse) HasDimension(name string) bool { return wh.fields.HasDimension(name) }

// GetField returns a copy of a field of either kind.
func (wh *Warehouse) GetField(name string) (*core.Field, bool) { return wh.Fields().GetField(name) }

// GetMetric returns a copy of the named metric.
func (wh *Warehouse) GetMetric(name string) (*core.Field, bool) { return wh.Fields().GetMetric(name) }

// GetDimension returns a copy of the named dimension.
func (wh *Warehouse) GetDimension(name string) (*core.Field, bool) {
	return wh.Fields().GetDimension(name)
}

// GetMetricNames returns the sorted metric names.
func (wh *Warehouse) GetMetricNames() []string { return wh.fields.MetricNames() }

// GetDimensionNames returns the sorted dimension names.
func (wh *Warehouse) GetDimensionNames() []string { return wh.fields.DimensionNames() }

// GetDataSourceNames returns the sorted source names.
func (wh *Warehouse) GetDataSourceNames() []string { return append([]string(nil), wh.names...) }

// GetDataSource returns the named source.
func (wh *Warehouse) GetDataSource(name string) (*datasource.DataSource, bool) {
	ds, ok := wh.sources[name]
	return ds, ok
}

// Close closes every source. Only the first call does work.
func (wh *Warehouse) Close() error {
	wh.closeOnce.Do(func() {
		var errs []error
		for _, name := range wh.names {
			if err := wh.sources[name].Close(); err != nil {
				errs = append(errs, fmt.Errorf("datasource %s: %w", name, err))
			}
		}
		wh.closeErr = errors.Join(errs...)
	})
	return wh.closeErr
}
