package cmd

import (
	"context"
	"fmt"

	"github.com/paulschiretz/pgl-dirsync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-dirsync/pkg/config"
	"github.com/paulschiretz/pgl-dirsync/pkg/flagparse"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
)

// RunEdit handles the logic for the edit command: it applies the settings
// flags and the requested definition edits, then saves the configuration.
func RunEdit(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Edit, flagMap)
	if err != nil {
		return err
	}

	release, err := acquireConfigLock(ctx, flagparse.Edit, runConfig.Runtime.Path)
	if err != nil {
		return err
	}
	if release == nil {
		return nil
	}
	defer release()

	if err := applyEdits(&runConfig, flagMap); err != nil {
		return err
	}
	if err := config.Save(runConfig, runConfig.Runtime.Path); err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" configuration saved.", "path", runConfig.Runtime.Path)
	return nil
}

// applyEdits runs the definition edits in a fixed order: copy options, swap, enable all.
func applyEdits(c *config.Config, flagMap map[string]any) error {
	if from, ok := flagMap["copy-options-from"].(string); ok && from != "" {
		enabledOnly, _ := flagMap["enabled-only"].(bool)
		if err := c.CopyOptionsTo(from, enabledOnly); err != nil {
			return fmt.Errorf("cannot copy options: %w", err)
		}
		plog.Info("Copied options", "from", from, "enabled_only", enabledOnly)
	}
	if swap, _ := flagMap["swap"].(bool); swap {
		c.SwapSourceAndDestination()
		plog.Info("Swapped source and destination", "directories", len(c.Directories))
	}
	if enableAll, _ := flagMap["enable-all"].(bool); enableAll {
		c.EnableAll()
		plog.Info("Enabled all directories", "directories", len(c.Directories))
	}
	return nil
}
