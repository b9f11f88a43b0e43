package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// Mode selects between a real run and a preview.
type Mode int

const (
	// ModeSynchronize copies and deletes.
	ModeSynchronize Mode = iota
	// ModePreview logs and counts what a synchronization would do.
	ModePreview
)

var modeToString = map[Mode]string{
	ModeSynchronize: "synchronize",
	ModePreview:     "preview",
}

var stringToMode map[string]Mode

func init() {
	stringToMode = util.InvertMap(modeToString)
}

func (m Mode) String() string {
	if str, ok := modeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_mode(%d)", m)
}

// ParseMode parses the textual form of a Mode.
func ParseMode(s string) (Mode, error) {
	if mode, ok := stringToMode[strings.ToLower(s)]; ok {
		return mode, nil
	}
	return ModeSynchronize, fmt.Errorf("invalid run mode: %q. Must be 'synchronize' or 'preview'", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("Mode should be a string, got %s", data)
	}
	parsed, err := ParseMode(str)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// prefix returns "preview of " (or "Preview of ") in preview mode.
func (m Mode) prefix(capital bool) string {
	if m != ModePreview {
		return ""
	}
	if capital {
		return "Preview of "
	}
	return "preview of "
}
