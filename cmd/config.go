package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulschiretz/pgl-dirsync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-dirsync/pkg/config"
	"github.com/paulschiretz/pgl-dirsync/pkg/flagparse"
	"github.com/paulschiretz/pgl-dirsync/pkg/lockfile"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
)

// loadRunConfig resolves, loads, merges and validates the configuration for command.
func loadRunConfig(command flagparse.Command, flagMap map[string]any) (config.Config, error) {
	explicit, _ := flagMap["config"].(string)
	path, err := config.ResolvePath(explicit)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid config path: %w", err)
	}

	loadedConfig, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Merge the flag values over the loaded config.
	runConfig := config.MergeConfigWithFlags(command, loadedConfig, flagMap)

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(); err != nil {
		return config.Config{}, err
	}

	// Set the global log level.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	plog.SetQuiet(runConfig.Runtime.Quiet)
	return runConfig, nil
}

// acquireConfigLock locks the configuration file against concurrent runs and
// edits. A nil release function without error means another process holds
// the lock and the command should end quietly.
func acquireConfigLock(ctx context.Context, command flagparse.Command, configPath string) (func(), error) {
	owner := fmt.Sprintf("%s:%s", buildinfo.AppID, command)

	plog.Debug("Attempting to acquire lock", "config", configPath)
	lock, err := lockfile.Acquire(ctx, configPath, owner)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Configuration is in use by another process, skipping.", "details", lockErr.Error())
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired successfully.", "path", lock.Path())
	return lock.Release, nil
}
