package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-dirsync/pkg/config"
	"github.com/paulschiretz/pgl-dirsync/pkg/flagparse"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// RunInit handles the logic for the 'init' command. It writes a default
// configuration with one empty directory definition; settings flags are
// applied on top.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	explicit, _ := flagMap["config"].(string)
	path, err := config.ResolvePath(explicit)
	if err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	force, _ := flagMap["force"].(bool)
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(stdout, "WARNING: Configuration file already exists at %s.\n", path)
		fmt.Fprintf(stdout, "Initializing will overwrite it with default values. All directory definitions will be lost.\n")
		if !PromptForConfirmation("Are you sure you want to continue?", false) {
			plog.Info(buildinfo.Name + " init operation canceled.")
			return nil
		}
	}

	base := config.NewDefault()
	base.Runtime.Path = path
	runConfig := config.MergeConfigWithFlags(flagparse.Init, base, flagMap)
	if err := runConfig.Validate(); err != nil {
		return err
	}
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	// The lock lives next to the configuration, so its directory must exist first.
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	release, err := acquireConfigLock(ctx, flagparse.Init, path)
	if err != nil {
		return err
	}
	if release == nil {
		return nil
	}
	defer release()

	if err := config.Save(runConfig, path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	plog.Info(buildinfo.Name+" configuration successfully initialized.", "path", path)
	return nil
}

// PromptForConfirmation asks a yes/no question on the terminal and reads one line of input.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	fmt.Fprintf(stdout, "%s %s: ", prompt, answerHint(defaultYes))

	response, _ := bufio.NewReader(stdin).ReadString('\n')
	return parseAnswer(response, defaultYes)
}

func answerHint(defaultYes bool) string {
	if defaultYes {
		return "[Y/n]"
	}
	return "[y/N]"
}

// parseAnswer interprets a yes/no response. An empty response selects the default.
func parseAnswer(response string, defaultYes bool) bool {
	response = strings.ToLower(strings.TrimSpace(response))
	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
