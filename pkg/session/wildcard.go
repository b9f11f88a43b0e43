package session

import (
	"path/filepath"
	"strings"
	"time"
)

// ExpandTime replaces the date and time wildcards in s with the values of t:
//
//	<date> 2006-01-02    <time> 15-04-05
//	<YYYY> <MM> <DD>     <hh> <mm> <ss>
func ExpandTime(s string, t time.Time) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return strings.NewReplacer(
		"<date>", t.Format("2006-01-02"),
		"<time>", t.Format("15-04-05"),
		"<YYYY>", t.Format("2006"),
		"<MM>", t.Format("01"),
		"<DD>", t.Format("02"),
		"<hh>", t.Format("15"),
		"<mm>", t.Format("04"),
		"<ss>", t.Format("05"),
	).Replace(s)
}

const (
	wildcardGlobal = "<global>"
	wildcardName   = "<name>"
)

// expandLog resolves a directory's log path. <global> is the directory of the
// global log and <name> the definition name. ok is false if <global> was used
// without a global log; it is then replaced by "".
func expandLog(s, globalLog, name string, t time.Time) (path string, ok bool) {
	ok = true
	if strings.Contains(s, wildcardGlobal) {
		global := ""
		if globalLog != "" {
			global = filepath.Dir(globalLog)
		} else {
			ok = false
		}
		s = strings.ReplaceAll(s, wildcardGlobal, global)
	}
	s = strings.ReplaceAll(s, wildcardName, name)
	return ExpandTime(s, t), ok
}
