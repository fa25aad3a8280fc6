package adhoc

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmetrics/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// load writes one table into the backing store, honoring if_exists.
func load(ctx context.Context, adp *sqlite.Adapter, dt DataTable, logger *slog.Logger) error {
	table := dt.Source.Name()
	if !core.ValidIdentifier(table) {
		return core.ErrConfig(core.ErrInvalidConfig, "invalid table name %q", table)
	}
	policy, ok := core.ParseIfExists(dt.Config.IfExists)
	if !ok {
		return core.ErrConfig(core.ErrInvalidConfig, "invalid if_exists %q (expected fail, replace or ignore)", dt.Config.IfExists)
	}

	exists, err := tableExists(ctx, adp.DB, table)
	if err != nil {
		return err
	}
	if exists {
		switch policy {
		case core.IfExistsFail:
			return core.ErrConfig(core.ErrInvalidConfig, "table already exists in the backing store (if_exists: fail)")
		case core.IfExistsIgnore:
			logger.Debug("keeping existing ad hoc table", "table", table)
			return nil
		case core.IfExistsReplace:
			if err := adp.Exec(ctx, "DROP TABLE "+quoteIdent(table)); err != nil {
				return err
			}
		}
	}

	data, err := dt.Source.Load(ctx)
	if err != nil {
		return err
	}
	if len(data.Columns) == 0 {
		return core.ErrConfig(core.ErrInvalidConfig, "source produced no columns")
	}
	pk := dt.Config.PrimaryKey
	if len(pk) == 0 {
		pk = data.PrimaryKey
	}

	types := make([]string, len(data.Columns))
	for i, c := range data.Columns {
		if !core.ValidIdentifier(c.Name) {
			return core.ErrConfig(core.ErrInvalidConfig, "invalid column name %q", c.Name)
		}
		types[i] = c.Type
		if types[i] == "" {
			types[i] = inferType(data.Rows, i)
		}
	}

	if err := adp.Exec(ctx, createTableSQL(table, data.Columns, types, pk)); err != nil {
		return err
	}
	if err := insertRows(ctx, adp.DB, table, data.Columns, types, data.Rows); err != nil {
		return err
	}
	logger.Debug("loaded ad hoc table", "table", table, "rows", len(data.Rows), "primary_key", pk)
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

func createTableSQL(table string, cols []ColumnSpec, types, pk []string) string {
	defs := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		defs = append(defs, quoteIdent(c.Name)+" "+types[i])
	}
	if len(pk) > 0 {
		quoted := make([]string, len(pk))
		for i, k := range pk {
			quoted[i] = quoteIdent(k)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return "CREATE TABLE " + quoteIdent(table) + " (" + strings.Join(defs, ", ") + ")"
}

func insertRows(ctx context.Context, db *sql.DB, table string, cols []ColumnSpec, types []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(cols))
	for n, row := range rows {
		if len(row) > len(cols) {
			return fmt.Errorf("row %d has %d values for %d columns", n+1, len(row), len(cols))
		}
		for i := range cols {
			args[i] = nil
			if i < len(row) {
				args[i] = convert(row[i], types[i])
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", n+1, err)
		}
	}
	return tx.Commit()
}

// inferType picks INTEGER, REAL, BOOLEAN, TIMESTAMP or TEXT for column i.
// Null and empty values are ignored.
func inferType(rows [][]any, i int) string {
	typ := ""
	widen := func(t string) {
		switch {
		case typ == "" || typ == t:
			typ = t
		case (typ == "INTEGER" && t == "REAL") || (typ == "REAL" && t == "INTEGER"):
			typ = "REAL"
		default:
			typ = "TEXT"
		}
	}
	for _, row := range rows {
		if i >= len(row) || row[i] == nil {
			continue
		}
		switch v := row[i].(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			widen("INTEGER")
		case float32:
			widen("REAL")
		case float64:
			if v == float64(int64(v)) {
				widen("INTEGER")
			} else {
				widen("REAL")
			}
		case bool:
			widen("BOOLEAN")
		case time.Time:
			widen("TIMESTAMP")
		case string:
			if v == "" {
				continue
			}
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				widen("INTEGER")
			} else if _, err := strconv.ParseFloat(v, 64); err == nil {
				widen("REAL")
			} else {
				widen("TEXT")
			}
		default:
			widen("TEXT")
		}
	}
	if typ == "" {
		return "TEXT"
	}
	return typ
}

// convert coerces a raw value to the column type. Empty strings are null.
func convert(v any, typ string) any {
	s, ok := v.(string)
	if !ok {
		if f, isFloat := v.(float64); isFloat && typ == "INTEGER" {
			return int64(f)
		}
		return v
	}
	if s == "" {
		return nil
	}
	switch core.ParseDataType(typ).Family() {
	case core.FamilyInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case core.FamilyNumeric:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
