// Package pattern compiles DOS style wildcard lists such as "*.txt;*.doc"
// into anchored regular expressions and matches file names against them.
package pattern

import (
	"regexp"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// MatchAll is the include list used when none is configured.
const MatchAll = "*"

// Set is a compiled wildcard list. The zero value matches nothing.
type Set struct {
	raw      string
	patterns []*regexp.Regexp
}

// Compile parses a comma or semicolon separated wildcard list. Matching is
// case-insensitive on Windows and case-sensitive on every other OS.
func Compile(raw string) Set {
	return CompileWithCase(raw, util.IsHostWindows())
}

// CompileWithCase is Compile with an explicit case sensitivity switch.
func CompileWithCase(raw string, caseInsensitive bool) Set {
	set := Set{raw: raw}

	// Tokens are taken verbatim: " *.txt" only matches names with a leading blank.
	tokens := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	for _, token := range tokens {
		expr := "^(?s:" + wildcardToRegexp(token) + ")$"
		if caseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			// Every literal rune is quoted, so this only fires on invalid UTF-8 input.
			plog.Warn("Ignoring invalid wildcard pattern", "pattern", token, "error", err)
			continue
		}
		set.patterns = append(set.patterns, re)
	}
	return set
}

// wildcardToRegexp translates one DOS wildcard token. '?' stands for zero or one
// character and '*' for any run of characters; everything else is literal.
func wildcardToRegexp(token string) string {
	var sb strings.Builder
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			sb.WriteString(regexp.QuoteMeta(literal.String()))
			literal.Reset()
		}
	}

	for _, r := range token {
		switch r {
		case '?':
			flush()
			sb.WriteString(".?")
		case '*':
			flush()
			sb.WriteString(".*")
		default:
			literal.WriteRune(r)
		}
	}
	flush()
	return sb.String()
}

// Match reports whether name matches at least one pattern of the set.
func (s Set) Match(name string) bool {
	for _, re := range s.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Len returns the number of compiled patterns.
func (s Set) Len() int {
	return len(s.patterns)
}

// IsEmpty reports whether the set has no patterns and therefore matches nothing.
func (s Set) IsEmpty() bool {
	return len(s.patterns) == 0
}

// String returns the wildcard list the set was compiled from.
func (s Set) String() string {
	return s.raw
}

// Include compiles an include list, treating an empty list as MatchAll.
func Include(raw string) Set {
	if raw == "" {
		return Compile(MatchAll)
	}
	return Compile(raw)
}

// Exclude compiles an exclude list. An empty list matches nothing.
func Exclude(raw string) Set {
	return Compile(raw)
}
