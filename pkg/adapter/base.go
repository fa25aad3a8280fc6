package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Placeholder formats the n-th (1-based) bind parameter of a dialect.
type Placeholder func(n int) string

// QuestionPlaceholder renders "?" (DuckDB, SQLite).
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n" (PostgreSQL).
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec and information_schema reflection.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		err := b.DB.Close()
		b.DB = nil
		return err
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	_, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// ReflectedColumn is one row of column metadata as read from the catalog.
type ReflectedColumn struct {
	Table    string
	Name     string
	Type     string
	Nullable bool
	Position int
	Length   int
}

// ReflectInformationSchema reads every table of one schema with two batch
// queries against information_schema: columns, then primary key usage.
func (b *BaseSQLAdapter) ReflectInformationSchema(ctx context.Context, schema string, ph Placeholder, only []string) (*core.Schema, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	// The placeholders come from the adapter and are safe (? or $N)
	//nolint:gosec // Placeholders are safe
	columnsQuery := fmt.Sprintf(`
		SELECT
			table_name,
			column_name,
			data_type,
			is_nullable,
			ordinal_position,
			character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = %s
		ORDER BY table_name, ordinal_position
	`, ph(1))

	rows, err := b.DB.QueryContext(ctx, columnsQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []ReflectedColumn
	for rows.Next() {
		var col ReflectedColumn
		var nullable string
		var length sql.NullInt64
		if err := rows.Scan(&col.Table, &col.Name, &col.Type, &nullable, &col.Position, &length); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		if length.Valid {
			col.Length = int(length.Int64)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	//nolint:gosec // Placeholders are safe
	pkQuery := fmt.Sprintf(`
		SELECT
			kcu.table_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = %s
		ORDER BY kcu.table_name, kcu.ordinal_position
	`, ph(1))

	pkRows, err := b.DB.QueryContext(ctx, pkQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary keys: %w", err)
	}
	defer func() { _ = pkRows.Close() }()

	pks := make(map[string][]string)
	for pkRows.Next() {
		var table, column string
		if err := pkRows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan primary key: %w", err)
		}
		pks[table] = append(pks[table], column)
	}
	if err := pkRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating primary keys: %w", err)
	}

	s := AssembleSchema(cols, pks, only)
	if b.Logger != nil {
		b.Logger.Debug("reflected schema", slog.String("schema", schema), slog.Int("tables", len(s.Tables)))
	}
	return s, nil
}

// AssembleSchema groups reflected columns into tables, keeping catalog order
// for columns and sorting tables by name. When only is non-empty, other
// tables are dropped.
func AssembleSchema(cols []ReflectedColumn, pks map[string][]string, only []string) *core.Schema {
	var keep map[string]bool
	if len(only) > 0 {
		keep = make(map[string]bool, len(only))
		for _, name := range only {
			keep[name] = true
		}
	}

	byName := make(map[string]*core.Table)
	for _, rc := range cols {
		if keep != nil && !keep[rc.Table] {
			continue
		}
		t, ok := byName[rc.Table]
		if !ok {
			t = &core.Table{Name: rc.Table, Active: true, PrimaryKey: append([]string(nil), pks[rc.Table]...)}
			byName[rc.Table] = t
		}
		typ := core.ParseDataType(rc.Type)
		if typ.Length == 0 {
			typ.Length = rc.Length
		}
		t.Columns = append(t.Columns, &core.Column{
			Name:       rc.Name,
			Type:       typ,
			Nullable:   rc.Nullable,
			Position:   rc.Position,
			PrimaryKey: t.IsPrimaryKey(rc.Name),
			Active:     true,
		})
	}

	s := &core.Schema{Tables: make([]*core.Table, 0, len(byName))}
	for _, t := range byName {
		s.Tables = append(s.Tables, t)
	}
	sort.Slice(s.Tables, func(i, j int) bool {
		return s.Tables[i].Name < s.Tables[j].Name
	})
	return s
}
