package core

import (
	"context"
)

// Adapter defines the interface that all reflection adapters must implement.
// An adapter turns a connection descriptor into a schema snapshot.
type Adapter interface {
	// Connect establishes a connection to the database.
	Connect(ctx context.Context, cfg ConnectConfig) error

	// Close closes the database connection.
	Close() error

	// Reflect reads table and column metadata. When only is non-empty,
	// tables outside that list are skipped.
	Reflect(ctx context.Context, only []string) (*Schema, error)

	// DialectName returns the name of the SQL dialect the adapter speaks.
	DialectName() string
}
