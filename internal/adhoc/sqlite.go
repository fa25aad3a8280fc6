package adhoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapmetrics/internal/datasource"
	"github.com/leapstack-labs/leapmetrics/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// sqliteHeader opens every SQLite 3 database file.
var sqliteHeader = []byte("SQLite format 3\x00")

// NewDataSourceFromURL builds a source over a ready SQLite database fetched
// from cfg.DataURL into <dir>/<name>.db. cfg.IfExists decides what happens
// when that file is already present: fail, replace it, or ignore the URL
// and reflect the existing file. The tables overlay of cfg applies as for
// any reflected source.
func NewDataSourceFromURL(ctx context.Context, name, dir string, cfg core.DataSourceConfig, opts ...datasource.Option) (*datasource.DataSource, error) {
	if cfg.Connect != nil {
		return nil, core.ErrConfig(core.ErrInvalidConfig, "data_url cannot be combined with connect").At(name, "", "")
	}
	if cfg.DataURL == "" {
		return nil, core.ErrConfig(core.ErrInvalidConfig, "datasource has no data_url").At(name, "", "")
	}
	if name == "" {
		name = datasource.GenerateName()
	} else if !core.ValidIdentifier(name) {
		return nil, core.ErrConfig(core.ErrInvalidConfig, "invalid datasource name %q", name)
	}
	policy, ok := core.ParseIfExists(cfg.IfExists)
	if !ok {
		return nil, core.ErrConfig(core.ErrInvalidConfig,
			"invalid if_exists %q (expected fail, replace or ignore)", cfg.IfExists).At(name, "", "")
	}

	var cleanups []datasource.Option
	if dir == "" {
		tmp, err := os.MkdirTemp("", "leapmetrics-adhoc-")
		if err != nil {
			return nil, fmt.Errorf("failed to create ad hoc directory: %w", err)
		}
		dir = tmp
		cleanups = append(cleanups, datasource.WithCleanup(func() error { return os.RemoveAll(tmp) }))
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ad hoc directory: %w", err)
	}

	path := filepath.Join(dir, name+".db")
	if err := fetchDatabase(ctx, cfg.DataURL, path, policy); err != nil {
		if len(cleanups) > 0 {
			_ = os.RemoveAll(dir)
		}
		var ce *core.ConfigError
		if errors.As(err, &ce) {
			return nil, ce.At(name, "", "")
		}
		return nil, fmt.Errorf("failed to fetch database for datasource %s: %w", name, err)
	}

	overlay := cfg
	overlay.DataURL = ""
	overlay.IfExists = ""
	dsOpts := append(cleanups,
		datasource.WithConnect(core.ConnectConfig{Type: "sqlite", Database: path}),
		datasource.WithConfig(overlay),
	)
	return datasource.New(ctx, name, append(dsOpts, opts...)...)
}

// fetchDatabase stores the database behind dataURL at path. The download
// lands in a sibling file first so a failed fetch never leaves a partial
// database behind.
func fetchDatabase(ctx context.Context, dataURL, path string, policy core.IfExists) error {
	if _, err := os.Stat(path); err == nil {
		switch policy {
		case core.IfExistsFail:
			return core.ErrConfig(core.ErrInvalidConfig, "database file %s already exists (if_exists: fail)", path)
		case core.IfExistsIgnore:
			return nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	raw, err := openURL(ctx, dataURL)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(raw, sqliteHeader) {
		return fmt.Errorf("%s is not a SQLite database", dataURL)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// parseSQLite copies one table out of a SQLite database file. The table is
// Options.Table, which FromConfig defaults to the ad hoc table name.
// Column types and the primary key come from the file's own schema.
func parseSQLite(ctx context.Context, raw []byte, opts Options) (*Data, error) {
	if !bytes.HasPrefix(raw, sqliteHeader) {
		return nil, errors.New("not a SQLite database")
	}
	f, err := os.CreateTemp("", "leapmetrics-sqlite-*.db")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(f.Name()) }()
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	adp := sqlite.New(slog.New(slog.DiscardHandler))
	if err := adp.Connect(ctx, core.ConnectConfig{Type: "sqlite", Database: f.Name()}); err != nil {
		return nil, err
	}
	defer func() { _ = adp.Close() }()

	schema, err := adp.Reflect(ctx, []string{opts.Table})
	if err != nil {
		return nil, err
	}
	t, ok := schema.Table(opts.Table)
	if !ok {
		return nil, fmt.Errorf("table %s not found", opts.Table)
	}

	data := &Data{PrimaryKey: t.PrimaryKey}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		data.Columns = append(data.Columns, ColumnSpec{Name: c.Name, Type: c.Type.String()})
		names[i] = quoteIdent(c.Name)
	}

	rows, err := adp.DB.QueryContext(ctx,
		"SELECT "+strings.Join(names, ", ")+" FROM "+quoteIdent(t.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		row := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		data.Rows = append(data.Rows, row)
	}
	return data, rows.Err()
}
