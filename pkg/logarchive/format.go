package logarchive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// Format selects how a run log is archived before it gets truncated.
type Format string

const (
	// None keeps no copy; the old log is simply overwritten.
	None Format = "none"
	// Gzip archives with parallel gzip.
	Gzip Format = "gzip"
	// Zstd archives with zstandard.
	Zstd Format = "zstd"
)

var formatToString = map[Format]string{
	None: "none",
	Gzip: "gzip",
	Zstd: "zstd",
}

var formatToExtension = map[Format]string{
	Gzip: ".gz",
	Zstd: ".zst",
}

var stringToFormat map[string]Format

func init() {
	stringToFormat = util.InvertMap(formatToString)
}

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_log_archive_format(%s)", string(f))
}

// Extension returns the file name suffix of archives in this format.
func (f Format) Extension() string {
	return formatToExtension[f]
}

// ParseFormat parses a format name. An empty string means None.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return None, nil
	}
	if format, ok := stringToFormat[strings.ToLower(s)]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid log archive format: %q. Must be 'none', 'gzip', or 'zstd'", s)
}

// MarshalJSON implements the json.Marshaler interface for Format.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Format.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("log archive format should be a string, got %s", data)
	}
	format, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}
