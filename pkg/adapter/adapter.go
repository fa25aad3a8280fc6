// Package adapter provides the reflection adapter contract and registry.
//
// An adapter turns a connection descriptor into a schema snapshot: tables,
// columns and primary keys. Concrete adapter implementations are in
// pkg/adapters/ subdirectories and register themselves from init().
package adapter

import (
	"github.com/leapstack-labs/leapmetrics/pkg/core"
)

// Type aliases so adapter implementations need only this package.
type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.ConnectConfig.
	Config = core.ConnectConfig
)
