package core

import "strings"

// IfExists controls what happens when an ad hoc table, or a downloaded
// database, is loaded under a name that already exists in its backing store.
type IfExists string

// IfExists policies.
const (
	IfExistsFail    IfExists = "fail"
	IfExistsReplace IfExists = "replace"
	IfExistsIgnore  IfExists = "ignore"
)

// ParseIfExists validates a policy string; empty means IfExistsFail.
func ParseIfExists(s string) (IfExists, bool) {
	switch IfExists(strings.ToLower(strings.TrimSpace(s))) {
	case "", IfExistsFail:
		return IfExistsFail, true
	case IfExistsReplace:
		return IfExistsReplace, true
	case IfExistsIgnore:
		return IfExistsIgnore, true
	}
	return "", false
}

// WarehouseConfig is the top-level configuration file.
type WarehouseConfig struct {
	Metrics     []FieldConfig               `koanf:"metrics"`
	Dimensions  []FieldConfig               `koanf:"dimensions"`
	DataSources map[string]DataSourceConfig `koanf:"datasources"`

	// AdhocDir holds backing stores for ad hoc tables (data_url tables).
	AdhocDir string `koanf:"adhoc_dir"`
}

// DataSourceConfig configures one schema source.
type DataSourceConfig struct {
	Connect *ConnectConfig `koanf:"connect"`

	// DataURL points at a ready SQLite database. It is downloaded into the
	// ad hoc directory and reflected in place of a connection. IfExists
	// decides what happens when the file is already there.
	DataURL  string `koanf:"data_url"`
	IfExists string `koanf:"if_exists"`

	Metrics    []FieldConfig          `koanf:"metrics"`
	Dimensions []FieldConfig          `koanf:"dimensions"`
	Tables     map[string]TableConfig `koanf:"tables"`
}

// ConnectConfig is the connection descriptor used for reflection.
type ConnectConfig struct {
	Type string `koanf:"type"` // duckdb, postgres, sqlite

	// File-based databases (DuckDB, SQLite)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, settings)
	Params map[string]any `koanf:"params"`
}

// TableConfig is the per-table overlay.
// Pointer fields distinguish "not set" from an explicit false.
type TableConfig struct {
	Type                 string                  `koanf:"type"`
	CreateFields         *bool                   `koanf:"create_fields"`
	PrimaryKey           []string                `koanf:"primary_key"`
	Parent               string                  `koanf:"parent"`
	Active               *bool                   `koanf:"active"`
	IncompleteDimensions []string                `koanf:"incomplete_dimensions"`
	Columns              map[string]ColumnConfig `koanf:"columns"`

	// Ad hoc tables are loaded from a data URL into a local backing store.
	DataURL      string         `koanf:"data_url"`
	IfExists     string         `koanf:"if_exists"`
	AdhocOptions map[string]any `koanf:"adhoc_table_options"`
}

// ColumnConfig is the per-column overlay.
type ColumnConfig struct {
	Fields []string `koanf:"fields"`
	Active *bool    `koanf:"active"`
	Type   string   `koanf:"type"`

	AllowTypeConversions *bool  `koanf:"allow_type_conversions"`
	TypeConversionPrefix string `koanf:"type_conversion_prefix"`
}

// Defaults for optional overlay settings.
const (
	DefaultCreateFields = false
	DefaultActive       = true
)

// CreateFieldsOrDefault resolves the create_fields setting.
func (c TableConfig) CreateFieldsOrDefault(fallback bool) bool {
	if c.CreateFields == nil {
		return fallback
	}
	return *c.CreateFields
}

// ActiveOrDefault resolves the active setting.
func (c TableConfig) ActiveOrDefault() bool {
	if c.Active == nil {
		return DefaultActive
	}
	return *c.Active
}

// ActiveOrDefault resolves the active setting.
func (c ColumnConfig) ActiveOrDefault() bool {
	if c.Active == nil {
		return DefaultActive
	}
	return *c.Active
}

// Bool returns a pointer to b, for building overlays in code.
func Bool(b bool) *bool {
	return &b
}
