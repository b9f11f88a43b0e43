package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-dirsync/pkg/logarchive"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	Config   *string
	LogLevel *string
	Quiet    *bool

	// Shared: Sync / Preview / Init / Edit
	SkipLinks          *bool
	TimestampWriteBack *bool
	TimestampDiff      *int
	GlobalLog          *string
	LogArchive         *string

	// Sync / Preview specific
	Quit        *bool
	Interactive *bool
	Dirs        *string

	// Preview specific
	SyncAfter *bool

	// Init specific
	Force *bool

	// Edit specific
	Swap            *bool
	EnableAll       *bool
	CopyOptionsFrom *string

	// Shared: List / Edit
	EnabledOnly *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Config = fs.String("config", "", "Path of the configuration file (.xml or .json). Defaults to ./dirsync.xml, then the user config directory.")
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.Quiet = fs.Bool("quiet", false, "Suppress informational output; only warnings and errors are printed.")
}

func registerSettingsFlags(fs *flag.FlagSet, f *cliFlags) {
	f.SkipLinks = fs.Bool("skip-links", false, "Ignore symbolic links in the source directories.")
	f.TimestampWriteBack = fs.Bool("timestamp-write-back", false, "After a copy, write the destination's modification time back to the source.")
	f.TimestampDiff = fs.Int("timestamp-diff", 0, "Largest modification time difference in seconds still treated as equal (0-60).")
	f.GlobalLog = fs.String("global-log", "", "Path of the global run log. Supports <date>, <time>, <YYYY>, <MM>, <DD>, <hh>, <mm> and <ss>.")
	f.LogArchive = fs.String("log-archive", "", "Archive the previous run log before it is overwritten: 'none', 'gzip' or 'zstd'.")
}

func registerRunFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Quit = fs.Bool("quit", false, "Exit with status 1 right after a run that finished with errors.")
	f.Interactive = fs.Bool("interactive", false, "Read 'p' (pause/resume), 's' (stop) and 'q' (quit after the run) from standard input.")
	f.Dirs = fs.String("dirs", "", "Comma-separated list of directory definition names to run. Defaults to all enabled definitions.")
}

func registerPreviewFlags(fs *flag.FlagSet, f *cliFlags) {
	f.SyncAfter = fs.Bool("sync-after", false, "After the preview, ask for confirmation and synchronize the definitions that still have work to do.")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Force = fs.Bool("force", false, "Overwrite an existing configuration file.")
}

func registerListFlags(fs *flag.FlagSet, f *cliFlags) {
	f.EnabledOnly = fs.Bool("enabled-only", false, "Only consider enabled directory definitions.")
}

func registerEditFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Swap = fs.Bool("swap", false, "Swap source and destination of every directory definition.")
	f.EnableAll = fs.Bool("enable-all", false, "Enable every directory definition.")
	f.CopyOptionsFrom = fs.String("copy-options-from", "", "Copy the copy modes, subfolder, verify and delete options of the named definition to the others.")
	f.EnabledOnly = fs.Bool("enabled-only", false, "With -copy-options-from, only change enabled definitions.")
}

var commandDescriptions = map[Command]string{
	Sync:    "Synchronize all enabled directory definitions.",
	Preview: "Show what a synchronization would do without changing anything.",
	Init:    "Write a new configuration file with one empty directory definition.",
	List:    "List the directory definitions of a configuration.",
	Edit:    "Change a configuration file and save it.",
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the action and config map.
func Parse(args []string) (Command, map[string]any, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}
	if command == Version {
		return command, nil, nil
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	registerGlobalFlags(fs, f)

	switch command {
	case Sync:
		registerSettingsFlags(fs, f)
		registerRunFlags(fs, f)
	case Preview:
		registerSettingsFlags(fs, f)
		registerRunFlags(fs, f)
		registerPreviewFlags(fs, f)
	case Init:
		registerSettingsFlags(fs, f)
		registerInitFlags(fs, f)
	case List:
		registerListFlags(fs, f)
	case Edit:
		registerSettingsFlags(fs, f)
		registerEditFlags(fs, f)
	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}

	// Custom usage for the subcommand
	fs.Usage = func() {
		printSubcommandUsage(command, commandDescriptions[command], fs)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return command, nil, err
	}
	if fs.NArg() > 0 {
		return command, nil, fmt.Errorf("unexpected arguments for %s: %s", command, strings.Join(fs.Args(), " "))
	}

	flagMap, err := flagsToMap(fs, f)
	return command, flagMap, err
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]any, error) {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	// This map is used to selectively override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "config", f.Config)
	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "quiet", f.Quiet)

	addIfUsed(flagMap, usedFlags, "skip-links", f.SkipLinks)
	addIfUsed(flagMap, usedFlags, "timestamp-write-back", f.TimestampWriteBack)
	addIfUsed(flagMap, usedFlags, "timestamp-diff", f.TimestampDiff)
	addIfUsed(flagMap, usedFlags, "global-log", f.GlobalLog)

	addIfUsed(flagMap, usedFlags, "quit", f.Quit)
	addIfUsed(flagMap, usedFlags, "interactive", f.Interactive)
	addIfUsed(flagMap, usedFlags, "sync-after", f.SyncAfter)

	addIfUsed(flagMap, usedFlags, "force", f.Force)

	addIfUsed(flagMap, usedFlags, "swap", f.Swap)
	addIfUsed(flagMap, usedFlags, "enable-all", f.EnableAll)
	addIfUsed(flagMap, usedFlags, "copy-options-from", f.CopyOptionsFrom)
	addIfUsed(flagMap, usedFlags, "enabled-only", f.EnabledOnly)

	// Handle flags that require parsing/validation.
	addParsedIfUsed(flagMap, usedFlags, "dirs", f.Dirs, ParseNameList)

	if f.LogArchive != nil && usedFlags["log-archive"] {
		format, err := logarchive.ParseFormat(*f.LogArchive)
		if err != nil {
			return nil, err
		}
		flagMap["log-archive"] = format
	}

	if f.TimestampDiff != nil && usedFlags["timestamp-diff"] && (*f.TimestampDiff < 0 || *f.TimestampDiff > 60) {
		return nil, fmt.Errorf("invalid value for -timestamp-diff: %d. Must be between 0 and 60", *f.TimestampDiff)
	}

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "One-way directory synchronization.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  sync        Synchronize all enabled directory definitions\n")
	fmt.Fprintf(fs.Output(), "  preview     Show what a synchronization would do\n")
	fmt.Fprintf(fs.Output(), "  init        Write a new configuration file\n")
	fmt.Fprintf(fs.Output(), "  list        List the directory definitions\n")
	fmt.Fprintf(fs.Output(), "  edit        Change and save a configuration file\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "One-way directory synchronization.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseNameList parses a comma-separated list of directory definition names.
// Single (') or double (") quotes group names that contain commas; the
// quotes themselves are removed. Items are trimmed and empty items dropped.
func ParseNameList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	// Helper to add the current buffered item to the list after trimming whitespace.
	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	for _, r := range s {
		switch {
		case r == '\'' || r == '"':
			if quoteChar == 0 { // Start of a new quoted section.
				quoteChar = r
			} else if quoteChar == r { // End of the current quoted section.
				quoteChar = 0
			} else { // A different quote character inside an existing quoted section.
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
