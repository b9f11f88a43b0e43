package pathcopy

import "github.com/paulschiretz/pgl-dirsync/pkg/pathlist"

// Policy holds the five copy rules of a directory definition.
type Policy struct {
	All            bool
	New            bool
	Modified       bool
	Larger         bool
	LargerModified bool
}

// Any reports whether at least one rule is enabled.
func (p Policy) Any() bool {
	return p.All || p.New || p.Modified || p.Larger || p.LargerModified
}

// Decide returns the first rule that selects src for copying to dst, or
// ModeNone. dst is nil if the destination file does not exist.
//
// Rules are checked in the order All, New, Modified, Larger, LargerModified.
// LargerModified is only consulted when neither Larger nor Modified is
// enabled, whatever those two would decide for this particular file.
func (p Policy) Decide(src pathlist.Entry, dst *pathlist.Entry, toleranceSeconds int64) Mode {
	switch {
	case p.All:
		return ModeAll
	case p.New && dst == nil:
		return ModeNew
	case p.Modified && IsNewer(src, dst, toleranceSeconds):
		return ModeModified
	case p.Larger && IsLarger(src, dst):
		return ModeLarger
	case p.LargerModified && !p.Larger && !p.Modified &&
		IsNewer(src, dst, toleranceSeconds) && IsLarger(src, dst):
		return ModeLargerModified
	}
	return ModeNone
}

// IsNewer reports whether src was modified more than toleranceSeconds after
// dst. Sub-second precision is discarded first. A missing dst is never older.
func IsNewer(src pathlist.Entry, dst *pathlist.Entry, toleranceSeconds int64) bool {
	if dst == nil {
		return false
	}
	return src.ModTime.Unix() > dst.ModTime.Unix()+toleranceSeconds
}

// IsLarger reports whether src has more bytes than dst. A missing dst is never smaller.
func IsLarger(src pathlist.Entry, dst *pathlist.Entry) bool {
	if dst == nil {
		return false
	}
	return src.Size > dst.Size
}
