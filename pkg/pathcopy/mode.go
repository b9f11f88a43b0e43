package pathcopy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// Mode is the copy rule that selected a file for copying.
type Mode int

const (
	// ModeNone means no rule matched and the file is skipped.
	ModeNone Mode = iota
	// ModeAll copies unconditionally.
	ModeAll
	// ModeNew copies files missing from the destination.
	ModeNew
	// ModeModified copies files newer than their destination counterpart.
	ModeModified
	// ModeLarger copies files larger than their destination counterpart.
	ModeLarger
	// ModeLargerModified copies files that are both newer and larger.
	ModeLargerModified
)

// Modes lists every copying mode in precedence order.
var Modes = []Mode{ModeAll, ModeNew, ModeModified, ModeLarger, ModeLargerModified}

var modeToString = map[Mode]string{
	ModeNone:           "none",
	ModeAll:            "all",
	ModeNew:            "new",
	ModeModified:       "modified",
	ModeLarger:         "larger",
	ModeLargerModified: "larger-modified",
}

var modeToLabel = map[Mode]string{
	ModeNone:           "Skip",
	ModeAll:            "Copy All",
	ModeNew:            "Copy New",
	ModeModified:       "Copy Modified",
	ModeLarger:         "Copy Larger",
	ModeLargerModified: "Copy Larger&Modified",
}

var stringToMode map[string]Mode

func init() {
	stringToMode = util.InvertMap(modeToString)
}

// String returns the string representation of a Mode.
func (m Mode) String() string {
	if str, ok := modeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_mode(%d)", m)
}

// Label returns the name used for the mode in the run log, e.g. "Copy New".
func (m Mode) Label() string {
	if label, ok := modeToLabel[m]; ok {
		return label
	}
	return m.String()
}

// ParseMode parses a string and returns the corresponding Mode.
func ParseMode(s string) (Mode, error) {
	if mode, ok := stringToMode[strings.ToLower(s)]; ok {
		return mode, nil
	}
	return ModeNone, fmt.Errorf("invalid copy mode: %q. Must be 'all', 'new', 'modified', 'larger' or 'larger-modified'", s)
}

// MarshalJSON implements the json.Marshaler interface for Mode.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Mode.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Mode should be a string, got %s", data)
	}
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
