package datasource

import (
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// hasMetadata reports whether a pre-built table already describes fields.
func hasMetadata(t *core.Table) bool {
	if t.HasMetadata || t.Type != "" {
		return true
	}
	for _, c := range t.Columns {
		if len(c.Fields) > 0 {
			return true
		}
	}
	return false
}

// mergeSchemas combines a pre-built schema with a reflected one.
// Pre-built tables keep their bindings; reflected columns and keys fill gaps.
func mergeSchemas(prebuilt, reflected *core.Schema) []*core.Table {
	var out []*core.Table
	byName := make(map[string]*core.Table)

	if prebuilt != nil {
		for _, t := range prebuilt.Tables {
			c := t.Clone()
			c.HasMetadata = hasMetadata(t)
			out = append(out, c)
			byName[c.Name] = c
		}
	}
	if reflected == nil {
		return out
	}

	for _, rt := range reflected.Tables {
		t, ok := byName[rt.Name]
		if !ok {
			c := rt.Clone()
			c.HasMetadata = false
			out = append(out, c)
			byName[c.Name] = c
			continue
		}
		for _, rc := range rt.Columns {
			existing, ok := t.Column(rc.Name)
			if !ok {
				t.Columns = append(t.Columns, rc.Clone())
				continue
			}
			if existing.Type.IsZero() {
				existing.Type = rc.Type
			}
		}
		if len(t.PrimaryKey) == 0 {
			t.PrimaryKey = append([]string(nil), rt.PrimaryKey...)
			markPrimaryKey(t)
		}
	}
	return out
}

func markPrimaryKey(t *core.Table) {
	for _, c := range t.Columns {
		c.PrimaryKey = t.IsPrimaryKey(c.Name)
	}
}

// applyOverlay applies per-table config on top of the merged tables.
// Existing bindings are kept and configured fields are added to them.
// Tables without metadata after the overlay are deactivated.
func applyOverlay(ds string, tables map[string]*core.Table, overlay map[string]core.TableConfig, logger *slog.Logger) error {
	names := make([]string, 0, len(overlay))
	for name := range overlay {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tc := overlay[name]
		t, ok := tables[name]
		if !ok {
			return core.ErrConfig(core.ErrInvalidConfig, "table is configured but not in the schema").At(ds, name, "")
		}
		if err := applyTableConfig(t, tc); err != nil {
			if ce, ok := err.(*core.ConfigError); ok {
				return ce.At(ds, name, "")
			}
			return err
		}
	}

	for _, name := range sortedKeys(tables) {
		t := tables[name]
		if !t.HasMetadata {
			if t.Active {
				logger.Debug("ignoring table without metadata", "table", name)
			}
			t.Active = false
			continue
		}
		if !t.Active {
			continue
		}
		if t.Type == "" {
			return core.ErrConfig(core.ErrInvalidConfig, "table has no type").At(ds, name, "")
		}
		if len(t.PrimaryKey) == 0 {
			return core.ErrConfig(core.ErrInvalidConfig, "table has no primary key").At(ds, name, "")
		}
		for _, pk := range t.PrimaryKey {
			if _, ok := t.ActiveColumn(pk); !ok {
				return core.ErrConfig(core.ErrInvalidConfig, "primary key column is missing or inactive").At(ds, name, pk)
			}
		}
	}
	return nil
}

func applyTableConfig(t *core.Table, tc core.TableConfig) error {
	t.HasMetadata = true
	if tc.Type != "" {
		typ, err := core.ParseTableType(tc.Type)
		if err != nil {
			return core.ErrConfig(core.ErrInvalidConfig, "%v", err)
		}
		t.Type = typ
	}
	t.CreateFields = tc.CreateFieldsOrDefault(t.CreateFields)
	if tc.Active != nil {
		t.Active = *tc.Active
	}
	if len(tc.PrimaryKey) > 0 {
		t.PrimaryKey = append([]string(nil), tc.PrimaryKey...)
		markPrimaryKey(t)
	}
	if tc.Parent != "" {
		t.Parent = tc.Parent
	}
	if len(tc.IncompleteDimensions) > 0 {
		t.IncompleteDimensions = append([]string(nil), tc.IncompleteDimensions...)
	}

	for _, name := range sortedKeys(tc.Columns) {
		cc := tc.Columns[name]
		c, ok := t.Column(name)
		if !ok {
			return core.ErrConfig(core.ErrInvalidConfig, "configured column does not exist").At("", "", name)
		}
		for _, f := range cc.Fields {
			c.AddField(f)
		}
		if cc.Active != nil {
			c.Active = *cc.Active
		}
		if cc.Type != "" {
			dt := core.ParseDataType(cc.Type)
			c.TypeOverride = &dt
		}
		if cc.AllowTypeConversions != nil {
			c.AllowTypeConversions = *cc.AllowTypeConversions
		}
		if cc.TypeConversionPrefix != "" {
			c.TypeConversionPrefix = cc.TypeConversionPrefix
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
