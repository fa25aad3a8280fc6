package config

import (
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// Default configuration values.
const (
	DefaultOutput  = OutputTable
	DefaultEnvFile = ".env"
	DefaultPGPort  = 5432
)

// DefaultSchemaForType returns the schema reflected when connect.schema is
// not set.
func DefaultSchemaForType(dbType string) string {
	switch strings.ToLower(dbType) {
	case "postgres", "postgresql":
		return "public"
	default:
		return "main"
	}
}

// ApplyConnectDefaults fills unset connection settings and expands ${VAR}
// references in credentials and locations.
func ApplyConnectDefaults(c *core.ConnectConfig) {
	if c == nil {
		return
	}
	c.Type = strings.ToLower(c.Type)
	c.Host = expandEnvVars(c.Host)
	c.User = expandEnvVars(c.User)
	c.Password = expandEnvVars(c.Password)
	c.Database = expandEnvVars(c.Database)

	if c.Schema == "" {
		c.Schema = DefaultSchemaForType(c.Type)
	}
	if c.Type == "postgres" && c.Port == 0 {
		c.Port = DefaultPGPort
	}
}

// ApplyDefaults applies connection defaults to every datasource and
// resolves file paths against root.
func ApplyDefaults(c *core.WarehouseConfig, root string) {
	if c == nil {
		return
	}
	c.AdhocDir = resolvePathRelativeTo(expandEnvVars(c.AdhocDir), root)

	for name, ds := range c.DataSources {
		if ds.Connect != nil {
			ApplyConnectDefaults(ds.Connect)
			if isFileDatabase(ds.Connect.Type) && ds.Connect.Database != ":memory:" {
				ds.Connect.Database = resolvePathRelativeTo(ds.Connect.Database, root)
			}
		}
		if ds.DataURL != "" && !strings.Contains(ds.DataURL, "://") {
			ds.DataURL = resolvePathRelativeTo(expandEnvVars(ds.DataURL), root)
		}
		for table, tc := range ds.Tables {
			if tc.DataURL != "" && !strings.Contains(tc.DataURL, "://") {
				tc.DataURL = resolvePathRelativeTo(expandEnvVars(tc.DataURL), root)
				ds.Tables[table] = tc
			}
		}
		c.DataSources[name] = ds
	}
}

func isFileDatabase(dbType string) bool {
	return dbType == "duckdb" || dbType == "sqlite"
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
