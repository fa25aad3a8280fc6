// Package config loads warehouse configuration for the CLI and other tools.
//
// Values are layered with koanf: defaults, then leapmetrics.yaml, then
// LEAPMETRICS_ environment variables (after an optional .env file), then
// explicitly set command-line flags.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmetrics/pkg/adapter"
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Config is the loaded configuration: the warehouse definition plus CLI
// settings.
type Config struct {
	core.WarehouseConfig `koanf:",squash"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`
	EnvFile      string `koanf:"env_file"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// Validate checks the parts of the configuration that can be checked
// without connecting anywhere.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("invalid output format %q (expected table, json or yaml)", c.OutputFormat)
	}

	names := make([]string, 0, len(c.DataSources))
	for name := range c.DataSources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ValidateDataSource(name, c.DataSources[name]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDataSource checks one datasource entry: its name, its connection
// type and that a database data_url is not mixed with a connection.
func ValidateDataSource(name string, ds core.DataSourceConfig) error {
	if !core.ValidIdentifier(name) {
		return core.ErrConfig(core.ErrInvalidConfig, "invalid datasource name %q", name)
	}
	if ds.DataURL != "" {
		if ds.Connect != nil {
			return core.ErrConfig(core.ErrInvalidConfig, "data_url cannot be combined with connect").At(name, "", "")
		}
		if _, ok := core.ParseIfExists(ds.IfExists); !ok {
			return core.ErrConfig(core.ErrInvalidConfig, "invalid if_exists %q", ds.IfExists).At(name, "", "")
		}
	}
	if ds.Connect == nil {
		return nil
	}
	if ds.Connect.Type == "" {
		return core.ErrConfig(core.ErrInvalidConfig, "connect.type is required").At(name, "", "")
	}
	if !adapter.IsRegistered(strings.ToLower(ds.Connect.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      ds.Connect.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}
