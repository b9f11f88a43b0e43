package runlog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// Style tags a run log message with its meaning. Sinks map styles to
// presentation or ignore them.
type Style int

const (
	// Plain is an unstyled line, e.g. the blank separator after an action.
	Plain Style = iota
	// Sync marks the run start and outcome banners.
	Sync
	// Dir marks the start and end of a directory definition.
	Dir
	// Subdir marks the banners of a directory's own log.
	Subdir
	// Info is an informational line.
	Info
	// Config is a configuration summary line.
	Config
	// Action is a file operation that was (or in preview would be) performed.
	Action
	// Warning is a recoverable problem.
	Warning
	// Error is a per-file or per-directory error.
	Error
)

var styleToString = map[Style]string{
	Plain:   "plain",
	Sync:    "sync",
	Dir:     "dir",
	Subdir:  "subdir",
	Info:    "info",
	Config:  "config",
	Action:  "action",
	Warning: "warning",
	Error:   "error",
}

var stringToStyle map[string]Style

func init() {
	stringToStyle = util.InvertMap(styleToString)
}

func (s Style) String() string {
	if str, ok := styleToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_style(%d)", s)
}

// ParseStyle parses the textual form of a Style.
func ParseStyle(s string) (Style, error) {
	if style, ok := stringToStyle[strings.ToLower(s)]; ok {
		return style, nil
	}
	return Plain, fmt.Errorf("invalid log style: %q", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (s Style) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *Style) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("Style should be a string, got %s", data)
	}
	style, err := ParseStyle(str)
	if err != nil {
		return err
	}
	*s = style
	return nil
}
