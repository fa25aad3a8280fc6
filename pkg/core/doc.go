// Package core defines the shared language of the leapmetrics system.
//
// This package contains:
//   - Metadata entities (Field, Table, Column, Schema)
//   - Service interfaces (Adapter)
//   - Configuration types (WarehouseConfig, DataSourceConfig, TableConfig)
//   - Error kinds (ConfigError, UnsupportedGrainError)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
