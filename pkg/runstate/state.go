package runstate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// State is the execution state of a synchronization session.
type State int

const (
	// Stop means no run is active.
	Stop State = iota
	// Start means a run is active.
	Start
	// Pause means a run is active but suspended at the next file or directory boundary.
	Pause
	// Stopping means a stop was requested and the active run is unwinding.
	Stopping
)

var stateToString = map[State]string{
	Stop:     "stop",
	Start:    "start",
	Pause:    "pause",
	Stopping: "stopping",
}

var stringToState map[string]State

func init() {
	stringToState = util.InvertMap(stateToString)
	stringToLevel = util.InvertMap(levelToString)
}

func (s State) String() string {
	if str, ok := stateToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_state(%d)", s)
}

// ParseState parses the textual form of a State.
func ParseState(s string) (State, error) {
	if state, ok := stringToState[strings.ToLower(s)]; ok {
		return state, nil
	}
	return Stop, fmt.Errorf("invalid run state: %q. Must be 'stop', 'start', 'pause' or 'stopping'", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("State should be a string, got %s", data)
	}
	parsed, err := ParseState(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ErrorLevel classifies the worst problem seen during a run. Levels are ordered;
// a higher value is more severe.
type ErrorLevel int32

const (
	// NoError means the run has been clean so far.
	NoError ErrorLevel = iota
	// Warning means a recoverable per-file problem occurred.
	Warning
	// ErrorThisDirectory means the directory being processed hit an error.
	// It suppresses that directory's delete phase.
	ErrorThisDirectory
	// ErrorOtherDirectory means an earlier directory of the same run hit an error.
	ErrorOtherDirectory
)

var levelToString = map[ErrorLevel]string{
	NoError:             "none",
	Warning:             "warning",
	ErrorThisDirectory:  "error-this-directory",
	ErrorOtherDirectory: "error-other-directory",
}

var stringToLevel map[string]ErrorLevel

func (l ErrorLevel) String() string {
	if str, ok := levelToString[l]; ok {
		return str
	}
	return fmt.Sprintf("unknown_error_level(%d)", l)
}

// ParseErrorLevel parses the textual form of an ErrorLevel.
func ParseErrorLevel(s string) (ErrorLevel, error) {
	if level, ok := stringToLevel[strings.ToLower(s)]; ok {
		return level, nil
	}
	return NoError, fmt.Errorf("invalid error level: %q", s)
}

// IsError reports whether the level is one of the two error levels.
func (l ErrorLevel) IsError() bool {
	return l >= ErrorThisDirectory
}
