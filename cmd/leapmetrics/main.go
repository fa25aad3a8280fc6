// Package main provides the CLI for LeapMetrics.
package main

import (
	"os"

	"github.com/leapstack-labs/leapmetrics/internal/cli"

	// Register reflection adapters
	_ "github.com/leapstack-labs/leapmetrics/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapmetrics/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapmetrics/pkg/adapters/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
