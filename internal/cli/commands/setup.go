package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmetrics/internal/config"
	"github.com/leapstack-labs/leapmetrics/internal/warehouse"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	Warehouse *warehouse.Warehouse
	Renderer  *Renderer
}

// NewCommandContext builds the warehouse from the loaded configuration.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := config.GetConfig(cmd.Context())
	if cfg == nil {
		return nil, nil, fmt.Errorf("no configuration loaded")
	}
	if len(cfg.DataSources) == 0 {
		return nil, nil, fmt.Errorf("no datasources configured\nHint: add a datasources section to %s", config.ConfigFileName)
	}
	logger := config.GetLogger(cmd.Context())

	wh, err := warehouse.NewFromConfig(cmd.Context(), cfg.WarehouseConfig, nil, warehouse.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := wh.Close(); err != nil {
			logger.Warn("failed to close warehouse", "error", err)
		}
	}

	return &CommandContext{
		Cfg:       cfg,
		Logger:    logger,
		Warehouse: wh,
		Renderer:  NewRenderer(cmd.OutOrStdout(), cfg.OutputFormat),
	}, cleanup, nil
}

// splitList splits comma-separated flag values and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
