package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/adapter"
	"github.com/leapstack-labs/leapmetrics/pkg/core"

	_ "modernc.org/sqlite" // sqlite driver
)

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "sqlite"
}

// Connect opens the database file, creating it when missing.
// An empty path opens an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildDSN(cfg)
	a.Logger.Debug("connecting to sqlite", slog.String("dsn", dsn))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}
	// In-memory databases are per connection.
	if cfg.Database == "" || cfg.Database == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

func buildDSN(cfg adapter.Config) string {
	path := cfg.Database
	if path == "" {
		path = ":memory:"
	}
	if len(cfg.Options) == 0 {
		return path
	}
	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	params := make([]string, 0, len(keys))
	for _, k := range keys {
		params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(cfg.Options[k]))
	}
	return path + "?" + strings.Join(params, "&")
}

// Reflect reads every user table through the table_info pragma.
// SQLite has no information_schema.
func (a *Adapter) Reflect(ctx context.Context, only []string) (*core.Schema, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	rows, err := a.DB.QueryContext(ctx, `
		SELECT m.name, p.name, p.type, p."notnull", p.cid, p.pk
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type pkPart struct {
		column string
		seq    int
	}
	var cols []adapter.ReflectedColumn
	parts := make(map[string][]pkPart)
	for rows.Next() {
		var col adapter.ReflectedColumn
		var notNull, cid, pk int
		if err := rows.Scan(&col.Table, &col.Name, &col.Type, &notNull, &cid, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		col.Nullable = notNull == 0
		col.Position = cid + 1
		cols = append(cols, col)
		if pk > 0 {
			parts[col.Table] = append(parts[col.Table], pkPart{column: col.Name, seq: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table info: %w", err)
	}

	pks := make(map[string][]string, len(parts))
	for table, ps := range parts {
		sort.Slice(ps, func(i, j int) bool { return ps[i].seq < ps[j].seq })
		for _, p := range ps {
			pks[table] = append(pks[table], p.column)
		}
	}

	return adapter.AssembleSchema(cols, pks, only), nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
