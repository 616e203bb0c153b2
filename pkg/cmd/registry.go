// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/ruleflow/pkg/builtin"
	"github.com/dukex/ruleflow/pkg/registry"
)

// NewRegistry registers the built-in extensions and then loads plugins from
// pluginsPath, so a plugin can replace a built-in type.
func NewRegistry(logger *slog.Logger, pluginsPath string, deps builtin.Deps) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	if err := builtin.RegisterDefaults(reg, deps); err != nil {
		return nil, fmt.Errorf("failed to register built-in extensions: %w", err)
	}

	if pluginsPath == "" {
		return reg, nil
	}

	loaded, err := reg.LoadPlugins(pluginsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load plugins from %s: %w", pluginsPath, err)
	}

	logger.Info("Loaded plugins", "path", pluginsPath, "count", loaded)

	return reg, nil
}
