package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/paulschiretz/pgl-dirsync/pkg/config"
	"github.com/paulschiretz/pgl-dirsync/pkg/flagparse"
)

// RunList handles the logic for the list command.
func RunList(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.List, flagMap)
	if err != nil {
		return err
	}
	enabledOnly, _ := flagMap["enabled-only"].(bool)
	return printDirectories(stdout, runConfig, enabledOnly)
}

func printDirectories(w io.Writer, c config.Config, enabledOnly bool) error {
	fmt.Fprintf(w, "Configuration: %s\n", c.Runtime.Path)
	fmt.Fprintf(w, "Directories:   %d (%d enabled)\n\n", len(c.Directories), c.NumberOfEnabled())

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "NAME", "ENABLED", "SOURCE", "DESTINATION", "MODES")
	for i, d := range c.Directories {
		if enabledOnly && !d.Enabled {
			continue
		}
		t.Row(strconv.Itoa(i+1), d.Name, strconv.FormatBool(d.Enabled), d.Source, d.Destination, modes(d))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// modes summarizes the copy and delete switches of d, e.g. "new,modified,delete-files".
func modes(d config.Directory) string {
	var parts []string
	for _, m := range []struct {
		on   bool
		name string
	}{
		{d.CopyAll, "all"},
		{d.CopyNew, "new"},
		{d.CopyModified, "modified"},
		{d.CopyLarger, "larger"},
		{d.CopyLargerModified, "larger-modified"},
		{d.DeleteFiles, "delete-files"},
		{d.DeleteDirs, "delete-dirs"},
		{d.WithSubfolders, "subfolders"},
		{d.Verify, "verify"},
	} {
		if m.on {
			parts = append(parts, m.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
