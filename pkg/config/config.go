package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"

	"github.com/paulschiretz/pgl-dirsync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-dirsync/pkg/flagparse"
	"github.com/paulschiretz/pgl-dirsync/pkg/logarchive"
	"github.com/paulschiretz/pgl-dirsync/pkg/pathcopy"
	"github.com/paulschiretz/pgl-dirsync/pkg/pattern"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// ConfigFileName is the name of the configuration file looked up when no path is given.
const ConfigFileName = "dirsync.xml"

// appDirName is the directory below the user's config home holding the configuration.
const appDirName = "pgl-dirsync"

// MaxTimestampDiff is the largest accepted modification time tolerance in seconds.
const MaxTimestampDiff = 60

// ErrUnknownDirectory is returned when a directory definition name does not exist.
var ErrUnknownDirectory = errors.New("unknown directory definition")

// Directory is one source to destination definition.
type Directory struct {
	Name        string `json:"name"`
	Source      string `json:"src"`
	Destination string `json:"dst"`
	// LogFile is the optional per-directory log. Besides the date and time
	// wildcards it supports <global> and <name>.
	LogFile string `json:"logfile"`

	WithSubfolders bool `json:"withSubfolders"`
	Verify         bool `json:"verify"`

	// Note: empty include lists mean "*", empty exclude lists mean nothing.
	FileInclude string `json:"include"`
	FileExclude string `json:"exclude"`
	DirInclude  string `json:"dirInclude"`
	DirExclude  string `json:"dirExclude"`

	CopyAll            bool `json:"copyAll"`
	CopyNew            bool `json:"copyNew"`
	CopyModified       bool `json:"copyModified"`
	CopyLarger         bool `json:"copyLarger"`
	CopyLargerModified bool `json:"copyLargerModified"`

	DeleteFiles bool `json:"deleteFiles"`
	DeleteDirs  bool `json:"deleteDirs"`

	Enabled bool `json:"enabled"`
}

// NewDirectory returns an enabled definition that includes everything and copies nothing.
func NewDirectory(name string) Directory {
	return Directory{
		Name:        name,
		FileInclude: pattern.MatchAll,
		DirInclude:  pattern.MatchAll,
		Enabled:     true,
	}
}

// UnmarshalJSON decodes a definition on top of NewDirectory so missing fields keep their defaults.
func (d *Directory) UnmarshalJSON(data []byte) error {
	type plain Directory
	decoded := plain(NewDirectory(""))
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*d = Directory(decoded)
	return nil
}

// Policy returns the copy rules of the definition.
func (d Directory) Policy() pathcopy.Policy {
	return pathcopy.Policy{
		All:            d.CopyAll,
		New:            d.CopyNew,
		Modified:       d.CopyModified,
		Larger:         d.CopyLarger,
		LargerModified: d.CopyLargerModified,
	}
}

// Patterns are the compiled filters of a definition.
type Patterns struct {
	FileInclude pattern.Set
	FileExclude pattern.Set
	DirInclude  pattern.Set
	DirExclude  pattern.Set
}

// Compile compiles the definition's filters.
func (d Directory) Compile() Patterns {
	return Patterns{
		FileInclude: pattern.Include(d.FileInclude),
		FileExclude: pattern.Exclude(d.FileExclude),
		DirInclude:  pattern.Include(d.DirInclude),
		DirExclude:  pattern.Exclude(d.DirExclude),
	}
}

// CopyOptions copies the copy modes, the subfolder and verify switches and
// the delete switches of from into d.
func (d *Directory) CopyOptions(from Directory) {
	d.CopyAll = from.CopyAll
	d.CopyNew = from.CopyNew
	d.CopyModified = from.CopyModified
	d.CopyLarger = from.CopyLarger
	d.CopyLargerModified = from.CopyLargerModified

	d.WithSubfolders = from.WithSubfolders
	d.Verify = from.Verify

	d.DeleteFiles = from.DeleteFiles
	d.DeleteDirs = from.DeleteDirs
}

type RuntimeConfig struct {
	// Path is the file the configuration was loaded from or will be saved to.
	Path        string
	Quiet       bool
	Quit        bool
	Interactive bool
	// SyncAfter follows a preview with a synchronization of the definitions
	// the preview did not disable.
	SyncAfter bool
	// Dirs restricts a run to the named definitions. Empty means all.
	Dirs []string
}

type Config struct {
	Version            string            `json:"version"`
	LogFile            string            `json:"logFile"`
	SkipLinks          bool              `json:"skipLinks"`
	WriteTimestampBack bool              `json:"writeTimestampBack"`
	TimestampDiff      int               `json:"timestampDiff" comment:"Largest modification time difference in seconds still treated as equal (0-60)."`
	LogLevel           string            `json:"logLevel"`
	LogArchive         logarchive.Format `json:"logArchive"`
	BufferSizeKB       int               `json:"bufferSizeKB"`
	Directories        []Directory       `json:"directories"`
	Runtime            RuntimeConfig     `json:"-"` // Never added to config file
}

// NewDefault creates and returns a Config with one empty directory definition.
func NewDefault() Config {
	return Config{
		Version:            buildinfo.Version,
		LogFile:            "",     // No global log file unless configured.
		SkipLinks:          false,  // Follow symbolic links by default.
		WriteTimestampBack: false,  // Never touch the source by default.
		TimestampDiff:      0,      // Exact second match.
		LogLevel:           "info", // Default log level.
		LogArchive:         logarchive.None,
		BufferSizeKB:       256, // Keep it between 64KB-4MB
		Directories:        []Directory{NewDirectory("Directory")},
	}
}

// ClampTimestampDiff maps values outside 0..MaxTimestampDiff to 0.
func ClampTimestampDiff(n int) int {
	if n < 0 || n > MaxTimestampDiff {
		return 0
	}
	return n
}

// userConfigDir returns the per-user configuration directory. Overridden in tests.
var userConfigDir = func() string {
	return filepath.Join(xdg.ConfigHome, appDirName)
}

// ResolvePath returns the configuration file to use. An explicit path wins;
// otherwise ./dirsync.xml is used if it exists, then the file in the user's
// config directory. If neither exists the local path is returned.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		expanded, err := util.ExpandPath(explicit)
		if err != nil {
			return "", err
		}
		return filepath.Abs(expanded)
	}

	local, err := filepath.Abs(ConfigFileName)
	if err != nil {
		return "", fmt.Errorf("could not determine absolute path for %s: %w", ConfigFileName, err)
	}
	candidates := []string{local, filepath.Join(userConfigDir(), ConfigFileName)}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return local, nil
}

// isJSON reports whether path selects the JSON encoding.
func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Load reads the configuration at path. The encoding is chosen by extension:
// ".json" is JSON, everything else is the XML layout.
// If the file doesn't exist, it returns the default config without an error.
// If the file exists but fails to parse, it returns an error and a zero-value config.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for config file %s: %w", path, err)
	}

	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			config := NewDefault()
			config.Runtime.Path = absPath
			return config, nil // Config file doesn't exist, which is a normal case.
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", absPath, err)
	}

	plog.Info("Loading configuration", "path", absPath)
	var config Config
	if isJSON(absPath) {
		config, err = loadJSON(absPath)
	} else {
		config, err = LoadXML(absPath)
	}
	if err != nil {
		return Config{}, err
	}

	config.TimestampDiff = ClampTimestampDiff(config.TimestampDiff)
	config.Runtime.Path = absPath
	config.Version = buildinfo.Version
	return config, nil
}

func loadJSON(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("error opening config file %s: %w", path, err)
	}
	defer file.Close()

	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	config.Directories = nil
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return config, nil
}

// Save writes c to path, choosing the encoding by extension like Load.
func Save(c Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.Version = buildinfo.Version
	if isJSON(path) {
		if err := saveJSON(c, path); err != nil {
			return err
		}
	} else if err := SaveXML(c, path); err != nil {
		return err
	}

	plog.Info("Successfully saved config file", "path", path)
	return nil
}

func saveJSON(c Config, path string) error {
	jsonData, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}
	if err := os.WriteFile(path, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for logical errors. Unusable source or
// destination paths are not checked here; a run reports them per definition.
func (c *Config) Validate() error {
	if c.TimestampDiff < 0 || c.TimestampDiff > MaxTimestampDiff {
		return fmt.Errorf("timestampDiff must be between 0 and %d", MaxTimestampDiff)
	}
	if c.BufferSizeKB <= 0 {
		return fmt.Errorf("bufferSizeKB must be greater than 0")
	}
	if _, err := logarchive.ParseFormat(string(c.LogArchive)); err != nil {
		return err
	}
	for i, d := range c.Directories {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("directory definition #%d has no name", i+1)
		}
	}
	for _, name := range c.Runtime.Dirs {
		if _, ok := c.Find(name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownDirectory, name)
		}
	}
	return nil
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	logArgs := []any{
		"path", c.Runtime.Path,
		"log_level", c.LogLevel,
		"log_file", c.LogFile,
		"log_archive", c.LogArchive,
		"skip_links", c.SkipLinks,
		"timestamp_write_back", c.WriteTimestampBack,
		"timestamp_diff", c.TimestampDiff,
		"buffer_size", util.ByteCountIEC(int64(c.BufferSizeKB)*1024),
		"directories", len(c.Directories),
		"enabled", c.NumberOfEnabled(),
	}
	if len(c.Runtime.Dirs) > 0 {
		logArgs = append(logArgs, "selected", strings.Join(c.Runtime.Dirs, ", "))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// Find returns the index of the first definition called name.
func (c *Config) Find(name string) (int, bool) {
	for i, d := range c.Directories {
		if d.Name == name {
			return i, true
		}
	}
	return -1, false
}

// NumberOfEnabled counts the enabled definitions.
func (c *Config) NumberOfEnabled() int {
	count := 0
	for _, d := range c.Directories {
		if d.Enabled {
			count++
		}
	}
	return count
}

// ShouldRun reports whether d takes part in a run: it is enabled and, if a
// selection was given, selected by name.
func (c *Config) ShouldRun(d Directory) bool {
	if !d.Enabled {
		return false
	}
	return len(c.Runtime.Dirs) == 0 || slices.Contains(c.Runtime.Dirs, d.Name)
}

// NumberToRun counts the definitions ShouldRun accepts.
func (c *Config) NumberToRun() int {
	count := 0
	for _, d := range c.Directories {
		if c.ShouldRun(d) {
			count++
		}
	}
	return count
}

// SwapSourceAndDestination swaps source and destination of every definition.
func (c *Config) SwapSourceAndDestination() {
	for i := range c.Directories {
		d := &c.Directories[i]
		d.Source, d.Destination = d.Destination, d.Source
	}
}

// EnableAll enables every definition.
func (c *Config) EnableAll() {
	for i := range c.Directories {
		c.Directories[i].Enabled = true
	}
}

// CopyOptionsTo copies the options of the definition called from to every
// definition, or with enabledOnly to every enabled one.
func (c *Config) CopyOptionsTo(from string, enabledOnly bool) error {
	idx, ok := c.Find(from)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDirectory, from)
	}
	source := c.Directories[idx]
	for i := range c.Directories {
		if enabledOnly && !c.Directories[i].Enabled {
			continue
		}
		c.Directories[i].CopyOptions(source)
	}
	return nil
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "log-level":
			merged.LogLevel = value.(string)
		case "quiet":
			merged.Runtime.Quiet = value.(bool)
		case "skip-links":
			merged.SkipLinks = value.(bool)
		case "timestamp-write-back":
			merged.WriteTimestampBack = value.(bool)
		case "timestamp-diff":
			merged.TimestampDiff = ClampTimestampDiff(value.(int))
		case "global-log":
			merged.LogFile = value.(string)
		case "log-archive":
			merged.LogArchive = value.(logarchive.Format)
		case "quit":
			merged.Runtime.Quit = value.(bool)
		case "interactive":
			merged.Runtime.Interactive = value.(bool)
		case "sync-after":
			merged.Runtime.SyncAfter = value.(bool)
		case "dirs":
			switch command {
			case flagparse.Sync, flagparse.Preview:
				merged.Runtime.Dirs = value.([]string)
			default:
			}
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
