// Package adhoc turns tabular data (files, URLs, in-memory records) into a
// schema source backed by a local SQLite file.
//
// Each table comes from a Source and carries its own table config. The
// backing store is released when the returned DataSource is closed.
package adhoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/leapstack-labs/leapmetrics/internal/datasource"
	"github.com/leapstack-labs/leapmetrics/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Source produces the rows, column schema and primary key of one table.
type Source interface {
	// Name is the table name in the backing store.
	Name() string
	Load(ctx context.Context) (*Data, error)
}

// Data is a loaded table.
type Data struct {
	Columns []ColumnSpec
	Rows    [][]any

	// PrimaryKey is used when the table config declares none.
	PrimaryKey []string
}

// ColumnSpec describes one column. An empty Type is inferred from the rows.
type ColumnSpec struct {
	Name string
	Type string
}

// DataTable pairs a source with its table config (type, primary key,
// columns, if_exists).
type DataTable struct {
	Source Source
	Config core.TableConfig
}

// Config controls the backing store.
type Config struct {
	// Dir holds <name>.db. When empty a temporary directory is created and
	// removed on close.
	Dir string

	Logger *slog.Logger

	// Metrics and Dimensions are source-level field definitions.
	Metrics    []core.FieldConfig
	Dimensions []core.FieldConfig
}

// HasAdhocTables reports whether any configured table loads from a data URL.
func HasAdhocTables(cfg core.DataSourceConfig) bool {
	for _, tc := range cfg.Tables {
		if tc.DataURL != "" {
			return true
		}
	}
	return false
}

// NewDataSourceFromConfig builds an ad hoc source from a datasource config
// whose tables all declare a data_url.
func NewDataSourceFromConfig(ctx context.Context, name, dir string, cfg core.DataSourceConfig, opts ...datasource.Option) (*datasource.DataSource, error) {
	if cfg.Connect != nil {
		return nil, core.ErrConfig(core.ErrInvalidConfig, "data_url tables cannot be combined with connect").At(name, "", "")
	}

	names := make([]string, 0, len(cfg.Tables))
	for table := range cfg.Tables {
		names = append(names, table)
	}
	sort.Strings(names)

	tables := make([]DataTable, 0, len(names))
	for _, table := range names {
		tc := cfg.Tables[table]
		if tc.DataURL == "" {
			return nil, core.ErrConfig(core.ErrInvalidConfig, "ad hoc table has no data_url").At(name, table, "")
		}
		src, err := FromConfig(table, tc)
		if err != nil {
			return nil, err
		}
		tables = append(tables, DataTable{Source: src, Config: tc})
	}

	return NewDataSource(ctx, name, tables, Config{
		Dir:        dir,
		Metrics:    cfg.Metrics,
		Dimensions: cfg.Dimensions,
	}, opts...)
}

// NewDataSource loads every table into <dir>/<name>.db and builds a schema
// source over it. The returned source owns the backing store: Close
// releases it exactly once, and a failed construction releases it before
// returning.
func NewDataSource(ctx context.Context, name string, tables []DataTable, cfg Config, opts ...datasource.Option) (*datasource.DataSource, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if name == "" {
		name = datasource.GenerateName()
	} else if !core.ValidIdentifier(name) {
		return nil, core.ErrConfig(core.ErrInvalidConfig, "invalid datasource name %q", name)
	}
	if len(tables) == 0 {
		return nil, core.ErrConfig(core.ErrInvalidConfig, "no ad hoc tables").At(name, "", "")
	}

	var cleanups []func() error
	release := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			_ = cleanups[i]()
		}
	}

	dir := cfg.Dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "leapmetrics-adhoc-")
		if err != nil {
			return nil, fmt.Errorf("failed to create ad hoc directory: %w", err)
		}
		dir = tmp
		cleanups = append(cleanups, func() error { return os.RemoveAll(tmp) })
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ad hoc directory: %w", err)
	}

	path := filepath.Join(dir, name+".db")
	adp := sqlite.New(logger)
	if err := adp.Connect(ctx, core.ConnectConfig{Type: "sqlite", Database: path}); err != nil {
		release()
		return nil, err
	}
	cleanups = append(cleanups, adp.Close)

	overlay := make(map[string]core.TableConfig, len(tables))
	only := make([]string, 0, len(tables))
	for _, dt := range tables {
		table := dt.Source.Name()
		if _, dup := overlay[table]; dup {
			release()
			return nil, core.ErrConfig(core.ErrInvalidConfig, "duplicate ad hoc table").At(name, table, "")
		}
		if err := load(ctx, adp, dt, logger); err != nil {
			release()
			var ce *core.ConfigError
			if errors.As(err, &ce) {
				return nil, ce.At(name, table, "")
			}
			return nil, fmt.Errorf("failed to load ad hoc table %s: %w", table, err)
		}
		overlay[table] = tableConfig(dt.Config)
		only = append(only, table)
	}

	logger.Debug("loaded ad hoc tables", "datasource", name, "path", path, "tables", only)

	dsOpts := []datasource.Option{
		datasource.WithAdapter(adp),
		datasource.WithReflectOnly(only...),
		datasource.WithConfig(core.DataSourceConfig{
			Metrics:    cfg.Metrics,
			Dimensions: cfg.Dimensions,
			Tables:     overlay,
		}),
	}
	for _, fn := range cleanups {
		dsOpts = append(dsOpts, datasource.WithCleanup(fn))
	}
	return datasource.New(ctx, name, append(dsOpts, opts...)...)
}

// tableConfig strips loader settings and defaults create_fields to true.
func tableConfig(tc core.TableConfig) core.TableConfig {
	tc.DataURL = ""
	tc.IfExists = ""
	tc.AdhocOptions = nil
	if tc.CreateFields == nil {
		tc.CreateFields = core.Bool(true)
	}
	return tc
}
